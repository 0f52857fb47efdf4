package blocking

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/vitalregistry/linkage/internal/domain"
	"github.com/vitalregistry/linkage/internal/domain/criterion"
	"github.com/vitalregistry/linkage/internal/domain/query"
)

func mustSet(t *testing.T, values map[criterion.Kind][]string) criterion.Set {
	t.Helper()
	set, err := criterion.NewSet(criterion.Input{Values: values})
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	return set
}

func bodyJSON(t *testing.T, q query.Query) string {
	t.Helper()
	raw, err := json.Marshal(q.Body())
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return string(raw)
}

func TestBuild_IDBypassesEverything(t *testing.T) {
	set := mustSet(t, map[criterion.Kind][]string{
		criterion.KindID:       {"a1b2c3"},
		criterion.KindLastName: {"pompidou"},
	})

	q, err := Build(set, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	body := bodyJSON(t, q)
	if !strings.Contains(body, `"ids"`) {
		t.Errorf("id criterion must produce an ids query, got %s", body)
	}
	if strings.Contains(body, "pompidou") {
		t.Errorf("id query must bypass other criteria, got %s", body)
	}
}

func TestBuild_EmptySetRejected(t *testing.T) {
	_, err := Build(criterion.Set{}, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty criteria = %v, want validation error", err)
	}
}

func TestBuild_FreeTextConflictsWithStructured(t *testing.T) {
	set := mustSet(t, map[criterion.Kind][]string{
		criterion.KindFullText: {"georges pompidou"},
		criterion.KindLastName: {"pompidou"},
	})

	_, err := Build(set, nil)
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("free text plus structured = %v, want conflict error", err)
	}
}

func TestBuild_FreeTextTwoTokensAndDate(t *testing.T) {
	set := mustSet(t, map[criterion.Kind][]string{
		criterion.KindFullText: {"georges de pompidou 01/11/1969"},
	})

	q, err := Build(set, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	body := bodyJSON(t, q)

	if !strings.Contains(body, `"function_score"`) {
		t.Errorf("date token must add a function-score booster, got %s", body)
	}
	if !strings.Contains(body, "19691101") {
		t.Errorf("date token must normalize to 8 digits, got %s", body)
	}
	if strings.Contains(body, `"de"`) {
		t.Errorf("stop word must be dropped, got %s", body)
	}
	// two remaining name tokens: both (first,last) orderings present
	if strings.Count(body, `"name.first"`) != 2 || strings.Count(body, `"name.last"`) != 2 {
		t.Errorf("expected both name orderings in the disjunction, got %s", body)
	}
}

func TestBuild_AdvancedMatchIsAllMust(t *testing.T) {
	set := mustSet(t, map[criterion.Kind][]string{
		criterion.KindLastName:  {"martin"},
		criterion.KindBirthDate: {"19420715"},
		criterion.KindSex:       {"F"},
	})

	q, err := Build(set, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	root, ok := q.Root.(query.BoolClause)
	if !ok {
		t.Fatalf("root = %T, want bool clause", q.Root)
	}
	if len(root.MustClauses) != 3 || len(root.ShouldClauses) != 0 {
		t.Errorf("advanced match wants 3 independent musts, got %d must / %d should",
			len(root.MustClauses), len(root.ShouldClauses))
	}
}

func TestBuild_BlockScopeBecomesShouldWithMinimum(t *testing.T) {
	set := mustSet(t, map[criterion.Kind][]string{
		criterion.KindLastName:  {"martin"},
		criterion.KindBirthCity: {"lyon"},
		criterion.KindSex:       {"F"},
	})
	block := &BlockSpec{
		Scope:                    []criterion.Kind{criterion.KindLastName, criterion.KindBirthCity},
		MinimumMatch:             1,
		IncludeRemainderAsShould: true,
	}

	q, err := Build(set, block)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	root, ok := q.Root.(query.BoolClause)
	if !ok {
		t.Fatalf("root = %T, want bool clause", q.Root)
	}
	if len(root.MustClauses) != 1 {
		t.Fatalf("blocked query wants one nested must group, got %d", len(root.MustClauses))
	}
	inner, ok := root.MustClauses[0].(query.BoolClause)
	if !ok || len(inner.ShouldClauses) != 2 || inner.MinShouldMatch != 1 {
		t.Errorf("scope group = %+v, want 2 shoulds with minimum 1", root.MustClauses[0])
	}
	if len(root.ShouldClauses) != 1 {
		t.Errorf("remainder wants 1 optional should, got %d", len(root.ShouldClauses))
	}
}

func TestBuild_AdaptiveRangeDateAndDeathShould(t *testing.T) {
	set := mustSet(t, map[criterion.Kind][]string{
		criterion.KindFirstName: {"georges"},
		criterion.KindLastName:  {"pompidou"},
		criterion.KindBirthDate: {"1920-1930"},
		criterion.KindDeathDate: {"19740402"},
	})
	block := &BlockSpec{Scope: []criterion.Kind{
		criterion.KindFirstName, criterion.KindLastName, criterion.KindBirthDate,
	}}

	q, err := Build(set, block)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	root, ok := q.Root.(query.BoolClause)
	if !ok {
		t.Fatalf("root = %T, want bool clause", q.Root)
	}

	var mustHasRange, mustHasDeath bool
	for _, m := range root.MustClauses {
		raw, _ := json.Marshal(m.Map())
		if strings.Contains(string(raw), `"range":{"birth.date"`) {
			mustHasRange = true
		}
		if strings.Contains(string(raw), "death.date") {
			mustHasDeath = true
		}
	}
	if !mustHasRange {
		t.Errorf("range birth date must render as a must range clause: %s", bodyJSON(t, q))
	}
	if mustHasDeath {
		t.Errorf("non-range death date must never be a must clause: %s", bodyJSON(t, q))
	}

	var shouldHasDeath bool
	for _, s := range root.ShouldClauses {
		raw, _ := json.Marshal(s.Map())
		if strings.Contains(string(raw), "death.date") {
			shouldHasDeath = true
		}
	}
	if !shouldHasDeath {
		t.Errorf("death date must still contribute as a should clause: %s", bodyJSON(t, q))
	}
}

func TestBuild_AdaptiveExactDateUsesDecadeDisjunction(t *testing.T) {
	set := mustSet(t, map[criterion.Kind][]string{
		criterion.KindFirstName: {"georges"},
		criterion.KindLastName:  {"pompidou"},
		criterion.KindBirthDate: {"19691101"},
	})
	block := &BlockSpec{Scope: []criterion.Kind{
		criterion.KindFirstName, criterion.KindLastName, criterion.KindBirthDate,
	}}

	q, err := Build(set, block)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	body := bodyJSON(t, q)
	if !strings.Contains(body, `"prefix":{"birth.date":"196"`) {
		t.Errorf("exact date wants a decade prefix alternative, got %s", body)
	}
	if !strings.Contains(body, `"fuzziness":"auto"`) {
		t.Errorf("exact date wants a fuzzy match alternative, got %s", body)
	}
	if !strings.Contains(body, `"name.full"`) {
		t.Errorf("adaptive blocking wants the concatenated-name must clause, got %s", body)
	}
}

func TestBuildSort_FixedTable(t *testing.T) {
	sorts := BuildSort([]SortSpec{
		{Field: "birthDate", Direction: "ASC"},
		{Field: "score", Direction: "desc"},
		{Field: "shoeSize", Direction: "asc"}, // unmapped
		{Field: "lastName", Direction: "sideways"},
	})
	if len(sorts) != 2 {
		t.Fatalf("got %d sorts, want 2", len(sorts))
	}
	if sorts[0].Field != "birth.date" || sorts[0].Direction != "asc" {
		t.Errorf("sorts[0] = %+v", sorts[0])
	}
	if sorts[1].Field != "_score" || sorts[1].Direction != "desc" {
		t.Errorf("sorts[1] = %+v", sorts[1])
	}
}

func TestBuildAggregation_SingleAndComposite(t *testing.T) {
	set := mustSet(t, map[criterion.Kind][]string{criterion.KindLastName: {"martin"}})

	single, err := BuildAggregation(set, []string{"birthDate"}, 20, nil)
	if err != nil {
		t.Fatalf("BuildAggregation: %v", err)
	}
	body := bodyJSON(t, single)
	if !strings.Contains(body, `"date_histogram"`) {
		t.Errorf("one date dimension wants a date histogram, got %s", body)
	}
	if strings.Contains(body, `"composite"`) {
		t.Errorf("one dimension must not page through a composite, got %s", body)
	}
	// the rendered body must carry an explicit zero size, otherwise the
	// backend returns its default hit page alongside the buckets
	if !strings.Contains(body, `"size":0`) {
		t.Errorf("aggregation body must suppress hits with \"size\":0, got %s", body)
	}

	multi, err := BuildAggregation(set, []string{"sex", "birthDepartment"}, 20,
		map[string]any{"sex": "F", "birthDepartment": "15"})
	if err != nil {
		t.Fatalf("BuildAggregation: %v", err)
	}
	body = bodyJSON(t, multi)
	if !strings.Contains(body, `"composite"`) || !strings.Contains(body, `"after"`) {
		t.Errorf("several dimensions want a composite with an after cursor, got %s", body)
	}

	if _, err := BuildAggregation(set, []string{"shoeSize"}, 20, nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown dimension = %v, want validation error", err)
	}
}
