package artifact

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), "0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	payload := strings.Repeat("georges;pompidou;19691101\n", 1000)

	w, err := s.Create("job1.in")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := io.WriteString(w, payload); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := s.Open("job1.in")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close reader: %v", err)
	}
	if string(got) != payload {
		t.Errorf("round trip lost data: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestStore_AtRestIsNotPlaintext(t *testing.T) {
	s := newTestStore(t)
	w, err := s.Create("job1.in")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	io.WriteString(w, "georges;pompidou;19691101\n")
	w.Close()

	raw, err := os.ReadFile(s.Path("job1.in"))
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if bytes.Contains(raw, []byte("pompidou")) {
		t.Errorf("plaintext visible in the at-rest artifact")
	}
}

func TestStore_FreshIVPerArtifact(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"a", "b"} {
		w, err := s.Create(name)
		if err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
		io.WriteString(w, "same payload")
		w.Close()
	}

	ivA, err := s.ReadIV("a")
	if err != nil {
		t.Fatalf("ReadIV: %v", err)
	}
	ivB, err := s.ReadIV("b")
	if err != nil {
		t.Fatalf("ReadIV: %v", err)
	}
	if bytes.Equal(ivA, ivB) {
		t.Errorf("iv reused across artifacts")
	}

	rawA, _ := os.ReadFile(s.Path("a"))
	rawB, _ := os.ReadFile(s.Path("b"))
	if bytes.Equal(rawA[20:], rawB[20:]) {
		t.Errorf("identical plaintexts must encrypt differently under fresh ivs")
	}
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	w, _ := s.Create("gone")
	w.Close()

	if err := s.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("gone"); err != nil {
		t.Errorf("second Delete: %v, want nil", err)
	}
	if _, err := s.Open("gone"); err == nil {
		t.Errorf("deleted artifact still opens")
	}
}

func TestStore_RejectsBadKey(t *testing.T) {
	if _, err := NewStore(t.TempDir(), "short"); err == nil {
		t.Errorf("short key accepted")
	}
	if _, err := NewStore(t.TempDir(), strings.Repeat("zz", 32)); err == nil {
		t.Errorf("non-hex 64-char key accepted")
	}
}
