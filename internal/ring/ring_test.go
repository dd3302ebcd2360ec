package ring

import (
	"reflect"
	"testing"
)

func TestRing_PushSplitsLines(t *testing.T) {
	r := New(16)
	r.Push([]byte("one\ntwo\nthree"))
	got := r.Tail(10)
	want := []string{"one", "two"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRing_PartialLineAcrossPushes(t *testing.T) {
	r := New(16)
	r.Push([]byte("hel"))
	r.Push([]byte("lo\n"))
	got := r.Tail(10)
	want := []string{"hello"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRing_BoundAtCapacity(t *testing.T) {
	r := New(3)
	for i := 0; i < 10; i++ {
		r.Push([]byte("line\n"))
	}
	if got := r.Len(); got != 3 {
		t.Fatalf("expected 3 lines retained, got %d", got)
	}
}

func TestRing_AbsoluteLineNumbersSurviveEviction(t *testing.T) {
	r := New(2)
	for i := 0; i < 5; i++ {
		r.Push([]byte{byte('a' + i), '\n'})
	}
	// Retained lines are "d" (line 3) and "e" (line 4), 0-indexed.
	hits, total, truncated, err := r.Search("e", true, false, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || truncated {
		t.Fatalf("expected 1 untruncated hit, got total=%d truncated=%v", total, truncated)
	}
	if hits[0].LineNumber != 4 {
		t.Fatalf("expected absolute line number 4, got %d", hits[0].LineNumber)
	}
}

func TestRing_TailMoreThanTotal(t *testing.T) {
	r := New(16)
	r.Push([]byte("a\nb\n"))
	got := r.Tail(100)
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRing_TailZero(t *testing.T) {
	r := New(16)
	r.Push([]byte("a\nb\n"))
	got := r.Tail(0)
	if len(got) != 0 {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestRing_SearchEmptyQuery(t *testing.T) {
	r := New(16)
	r.Push([]byte("hello world\n"))
	hits, total, _, err := r.Search("", true, false, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 0 || len(hits) != 0 {
		t.Fatalf("expected no matches for empty query, got %d", total)
	}
}

func TestRing_SearchCaseInsensitive(t *testing.T) {
	r := New(16)
	r.Push([]byte("Hello World\n"))
	hits, total, _, err := r.Search("hello", false, false, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 match, got %d", total)
	}
	if hits[0].MatchStart != 0 || hits[0].MatchEnd != 5 {
		t.Fatalf("unexpected match columns: %+v", hits[0])
	}
}

func TestRing_SearchRegexInvalid(t *testing.T) {
	r := New(16)
	r.Push([]byte("abc\n"))
	_, _, _, err := r.Search("(", true, true, 10, 0)
	if err == nil {
		t.Fatalf("expected error for invalid regex")
	}
}

func TestRing_SearchTruncation(t *testing.T) {
	r := New(16)
	for i := 0; i < 5; i++ {
		r.Push([]byte("match\n"))
	}
	hits, total, truncated, err := r.Search("match", true, false, 2, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 5 {
		t.Fatalf("expected total=5, got %d", total)
	}
	if !truncated || len(hits) != 2 {
		t.Fatalf("expected truncated with 2 returned hits, got truncated=%v len=%d", truncated, len(hits))
	}
}

func TestRing_Range(t *testing.T) {
	r := New(16)
	r.Push([]byte("a\nb\nc\nd\n"))
	got := r.Range(1, 3)
	want := []string{"b", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
