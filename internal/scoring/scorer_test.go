package scoring

import (
	"testing"

	"github.com/vitalregistry/linkage/internal/domain/person"
	"github.com/vitalregistry/linkage/internal/domain/score"
)

func pompidouCandidate() person.Record {
	return person.Record{
		ID:   "abc",
		Name: person.Name{First: []string{"Georges"}, Last: []string{"Pompidou"}},
		Sex:  "M",
		Birth: person.Event{
			Date: "19691101",
		},
	}
}

func TestScore_ReferencePair(t *testing.T) {
	in := Input{
		FirstName: []string{"georges"},
		LastName:  []string{"pompidous"},
		BirthDate: "19691101",
	}

	v := Score(in, pompidouCandidate(), Options{})
	if v.Pruned() {
		t.Fatalf("unexpected prune at %s", v.PrunedAt)
	}
	if v.Date != 1 {
		t.Errorf("date score = %v, want 1", v.Date)
	}
	if v.Name != 0.89 {
		t.Errorf("name score = %v, want 0.89", v.Name)
	}
	if v.Sex != 1 {
		t.Errorf("sex score = %v, want 1 (blind: input sex missing)", v.Sex)
	}
	if v.Location != 1 {
		t.Errorf("location score = %v, want 1 (neutral: no locations)", v.Location)
	}
	if v.Final != 0.89 {
		t.Errorf("final score = %v, want 0.89", v.Final)
	}
}

func TestScore_DateFormatDoesNotChangeResult(t *testing.T) {
	native := Input{
		FirstName: []string{"georges"},
		LastName:  []string{"pompidous"},
		BirthDate: "19691101",
	}
	formatted := Input{
		FirstName: []string{"georges"},
		LastName:  []string{"pompidous"},
		BirthDate: "01/11/1969",
	}

	a := Score(native, pompidouCandidate(), Options{})
	b := Score(formatted, pompidouCandidate(), Options{DateFormat: "dd/MM/yyyy"})
	if a != b {
		t.Errorf("format normalization changed the result: %+v vs %+v", a, b)
	}
}

func TestScore_Deterministic(t *testing.T) {
	in := Input{FirstName: []string{"jean"}, LastName: []string{"martin"}, BirthDate: "19420715"}
	cand := person.Record{
		Name:  person.Name{First: []string{"Jean", "Pierre"}, Last: []string{"Martin"}},
		Birth: person.Event{Date: "19420715"},
	}
	first := Score(in, cand, Options{})
	for i := 0; i < 10; i++ {
		if got := Score(in, cand, Options{}); got != first {
			t.Fatalf("score changed across calls: %+v vs %+v", got, first)
		}
	}
}

func TestScoreDate_BlindCandidate(t *testing.T) {
	if got := scoreDate("19691101", person.UnknownDate); got != 0.8 {
		t.Errorf("unknown candidate date = %v, want blind 0.8", got)
	}
	if got := scoreDate("19691101", ""); got != 0.8 {
		t.Errorf("empty candidate date = %v, want blind 0.8", got)
	}
}

func TestScoreDate_Range(t *testing.T) {
	if got := scoreDate("1920-1930", "19250607"); got != 0.7 {
		t.Errorf("in-range candidate = %v, want 0.7", got)
	}
	if got := scoreDate("1920-1930", "19500101"); got != 0.2 {
		t.Errorf("out-of-range candidate = %v, want 0.2", got)
	}
	if got := scoreDate("0000-1930", "19500101"); got != 0.7 {
		t.Errorf("unknown range bound = %v, want 0.7", got)
	}
	if got := scoreDate(">1920", "19500101"); got != 0.7 {
		t.Errorf("after-bound hit = %v, want 0.7", got)
	}
	if got := scoreDate("<1930", "19500101"); got != 0.2 {
		t.Errorf("before-bound miss = %v, want 0.2", got)
	}
}

func TestScoreDate_PartialDiscount(t *testing.T) {
	full := scoreDate("19691101", "19691101")
	partial := scoreDate("1969", "19691101")
	if full != 1 {
		t.Errorf("exact match = %v, want 1", full)
	}
	if partial >= full {
		t.Errorf("year-only comparison (%v) must be discounted below full match (%v)", partial, full)
	}
}

func TestScoreName_SwappedTokens(t *testing.T) {
	cand := person.Name{First: []string{"Georges"}, Last: []string{"Pompidou"}}
	got := scoreName([]string{"pompidou"}, []string{"georges"}, cand)
	if got != 0.5 {
		t.Errorf("swapped name score = %v, want 0.5 (inversion penalty)", got)
	}
}

func TestScoreName_Blind(t *testing.T) {
	if got := scoreName(nil, nil, person.Name{Last: []string{"Martin"}}); got != 0.7 {
		t.Errorf("no input name = %v, want blind 0.7", got)
	}
	if got := scoreName([]string{"jean"}, []string{"martin"}, person.Name{}); got != 0.7 {
		t.Errorf("no candidate name = %v, want blind 0.7", got)
	}
}

func TestScoreName_LegalNameFallback(t *testing.T) {
	cand := person.Name{
		First: []string{"Marie"},
		Last:  []string{"Durand"},
		Legal: []string{"Lefebvre"},
	}
	got := scoreName([]string{"marie"}, []string{"lefebvre"}, cand)
	if got != 1 {
		t.Errorf("legal name match = %v, want 1", got)
	}
}

func TestScoreSex(t *testing.T) {
	if got := scoreSex("", "M"); got != 1 {
		t.Errorf("missing input sex = %v, want blind 1", got)
	}
	if got := scoreSex("F", ""); got != 1 {
		t.Errorf("missing candidate sex = %v, want blind 1", got)
	}
	if got := scoreSex("M", "M"); got != 1 {
		t.Errorf("matching sex = %v, want 1", got)
	}
	if got := scoreSex("M", "F"); got != 0.5 {
		t.Errorf("mismatched sex = %v, want 0.5", got)
	}
}

func TestScoreLocation(t *testing.T) {
	cand := person.Location{
		City:       []string{"Montboudif"},
		Department: "15",
		Country:    []string{"France"},
	}

	exact := scoreLocation(LocationInput{
		City:       []string{"montboudif"},
		Department: "15",
		Country:    "france",
	}, cand)
	if exact != 1 {
		t.Errorf("exact location = %v, want 1", exact)
	}

	deptMiss := scoreLocation(LocationInput{Department: "75"}, cand)
	// city and country one-sided (0.8 each), department mismatch 0.2
	if deptMiss != round2(0.8*0.2*0.8) {
		t.Errorf("department mismatch = %v, want %v", deptMiss, round2(0.8*0.2*0.8))
	}

	oneSided := scoreLocation(LocationInput{City: []string{"lyon"}}, person.Location{})
	if oneSided != round2(0.8) {
		t.Errorf("one-sided city = %v, want 0.8", oneSided)
	}
}

func TestScoreLocation_GeoDistance(t *testing.T) {
	lat1, lon1 := 45.0, 2.0
	lat2, lon2 := 46.0, 2.0 // ~111 km due north
	in := LocationInput{Latitude: &lat1, Longitude: &lon1}
	cand := person.Location{Latitude: &lat2, Longitude: &lon2}

	got := scoreLocation(in, cand)
	if got != 0.47 {
		t.Errorf("geo score at ~111km = %v, want 0.47", got)
	}

	same := scoreLocation(in, person.Location{Latitude: &lat1, Longitude: &lon1})
	if same != 1 {
		t.Errorf("geo score at 0km = %v, want 1", same)
	}
}

func TestScore_PruneRecordsStage(t *testing.T) {
	in := Input{
		FirstName: []string{"georges"},
		LastName:  []string{"pompidous"},
		BirthDate: "1920-1930",
	}
	cand := pompidouCandidate() // born outside the range

	v := Score(in, cand, Options{})
	if !v.Pruned() || v.PrunedAt != score.StageDate {
		t.Fatalf("expected prune at date stage, got %+v", v)
	}
	if v.Final != 0 {
		t.Errorf("pruned final score = %v, want 0", v.Final)
	}
	if v.Name != 0 || v.Sex != 0 || v.Location != 0 {
		t.Errorf("sub-scores after the pruned stage must stay zero: %+v", v)
	}
}

func TestScoreResults_PruningMonotonicity(t *testing.T) {
	in := Input{
		FirstName: []string{"georges"},
		LastName:  []string{"pompidous"},
		BirthDate: "19691101",
	}

	candidates := []Candidate{
		{IndexScore: 10, Record: pompidouCandidate()},
		{IndexScore: 8, Record: person.Record{
			Name:  person.Name{First: []string{"Georgette"}, Last: []string{"Pomme"}},
			Birth: person.Event{Date: "19691101"},
		}},
		{IndexScore: 5, Record: person.Record{
			Name:  person.Name{First: []string{"Henri"}, Last: []string{"Dupont"}},
			Birth: person.Event{Date: "18500101"},
		}},
	}

	counts := make([]int, 0, 3)
	for _, th := range []float64{0.9, 0.3, 0.01} {
		got := ScoreResults(in, candidates, Options{PruneThreshold: th})
		counts = append(counts, len(got))
	}
	if counts[0] > counts[1] || counts[1] > counts[2] {
		t.Errorf("lowering the threshold must never shrink the survivor set: %v", counts)
	}
}

func TestScoreResults_SortsAndOverwritesScore(t *testing.T) {
	in := Input{
		FirstName: []string{"georges"},
		LastName:  []string{"pompidou"},
		BirthDate: "19691101",
	}

	exact := pompidouCandidate()
	fuzzy := pompidouCandidate()
	fuzzy.ID = "def"
	fuzzy.Name.Last = []string{"Pompidous"}

	candidates := []Candidate{
		{IndexScore: 9, Record: fuzzy},  // higher index score, worse name
		{IndexScore: 6, Record: exact},  // lower index score, perfect name
		{IndexScore: 0, Record: exact},  // non-positive index scores are dropped
		{IndexScore: -1, Record: exact}, // non-positive index scores are dropped
	}

	got := ScoreResults(in, candidates, Options{})
	if len(got) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(got))
	}
	if got[0].Record.ID != "abc" {
		t.Errorf("final score must outrank index score, got %q first", got[0].Record.ID)
	}
	if got[0].Record.Score != got[0].Vector.Final {
		t.Errorf("record score %v must be overwritten with final %v", got[0].Record.Score, got[0].Vector.Final)
	}
	if got[1].Vector.Index != 1 {
		t.Errorf("best index hit must scale to 1, got %v", got[1].Vector.Index)
	}
}

func TestLevSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"pompidou", "pompidou", 1},
		{"Pompidou", "pompidou", 1}, // case folded
		{"Hélène", "helene", 1},     // diacritics folded
		{"abc", "xyz", 0},
	}
	for _, tt := range tests {
		if got := levSimilarity(tt.a, tt.b); got != tt.want {
			t.Errorf("levSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}

	partial := levSimilarity("pompidous", "pompidou")
	if partial <= 0.8 || partial >= 1 {
		t.Errorf("levSimilarity(pompidous, pompidou) = %v, want in (0.8, 1)", partial)
	}
}

func TestEnrichLocations(t *testing.T) {
	hint := func(city string) (float64, float64, bool) {
		if city == "montboudif" {
			return 45.3394, 2.7847, true
		}
		return 0, 0, false
	}

	in := Input{BirthLocation: LocationInput{City: []string{"montboudif"}}}
	EnrichLocations(&in, hint)
	if in.BirthLocation.Latitude == nil || *in.BirthLocation.Latitude != 45.3394 {
		t.Errorf("coordinates not filled from the dictionary: %+v", in.BirthLocation)
	}

	lat, lon := 1.0, 2.0
	in = Input{BirthLocation: LocationInput{City: []string{"montboudif"}, Latitude: &lat, Longitude: &lon}}
	EnrichLocations(&in, hint)
	if *in.BirthLocation.Latitude != 1.0 || *in.BirthLocation.Longitude != 2.0 {
		t.Errorf("explicit geo point must win over the dictionary: %+v", in.BirthLocation)
	}

	in = Input{DeathLocation: LocationInput{City: []string{"atlantis"}}}
	EnrichLocations(&in, hint)
	if in.DeathLocation.Latitude != nil {
		t.Errorf("unknown city must stay coordinate-less")
	}
}
