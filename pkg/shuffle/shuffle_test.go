package shuffle

import (
	"sort"
	"testing"
)

func TestNewIsPermutation(t *testing.T) {
	for n := 0; n <= 20; n++ {
		s := make([]string, n)
		for i := range s {
			s[i] = string(rune('a' + i))
		}
		got := append([]string(nil), s...)
		Strings(New(int64(n+1)), got)
		sort.Strings(got)
		for i := range s {
			if got[i] != s[i] {
				t.Fatalf("Strings(%d) = %v; want permutation of %v", n, got, s)
			}
		}
	}
}

func TestNewIsDeterministic(t *testing.T) {
	a := []string{"a", "b", "c", "d", "e", "f", "g"}
	b := append([]string(nil), a...)
	Strings(New(42), a)
	Strings(New(42), b)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("seeded shuffles differ: %v != %v", a, b)
		}
	}
}

func TestNewCoversAllPositions(t *testing.T) {
	// Every element should be able to land on every index.
	seen := map[[2]int]bool{}
	f := New(7)
	for k := 0; k < 2000; k++ {
		s := []int{0, 1, 2, 3}
		f(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
		for pos, v := range s {
			seen[[2]int{pos, v}] = true
		}
	}
	if len(seen) != 16 {
		t.Fatalf("positions seen = %d; want 16", len(seen))
	}
}

func TestNone(t *testing.T) {
	s := []string{"a", "b", "c"}
	Strings(None, s)
	if s[0] != "a" || s[1] != "b" || s[2] != "c" {
		t.Fatalf("Strings(None) = %v; want [a b c]", s)
	}
}
