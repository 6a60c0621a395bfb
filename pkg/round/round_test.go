package round

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/igolaizola/tunequiz/pkg/catalog"
	"github.com/igolaizola/tunequiz/pkg/shuffle"
)

func pool(titles ...string) catalog.Pool {
	var p catalog.Pool
	for i, title := range titles {
		p = append(p, &catalog.Track{ID: fmt.Sprintf("id%d", i), Title: title})
	}
	return p
}

func contains(options []string, s string) bool {
	for _, o := range options {
		if o == s {
			return true
		}
	}
	return false
}

func TestDeriveProperties(t *testing.T) {
	for n := 1; n <= 12; n++ {
		var titles []string
		for i := 0; i < n; i++ {
			titles = append(titles, fmt.Sprintf("Title %d", i))
		}
		p := pool(titles...)
		for seed := int64(1); seed <= 5; seed++ {
			for _, current := range p {
				r, err := Derive(p, current, shuffle.New(seed), 1)
				if err != nil {
					t.Fatalf("Derive() = %v; want nil", err)
				}
				if r.CorrectAnswer != current.Title {
					t.Fatalf("CorrectAnswer = %q; want %q", r.CorrectAnswer, current.Title)
				}
				if !contains(r.Options, r.CorrectAnswer) {
					t.Fatalf("Options %v don't contain %q", r.Options, r.CorrectAnswer)
				}
				want := n
				if want > Size {
					want = Size
				}
				if len(r.Options) != want {
					t.Fatalf("len(Options) = %d; want %d", len(r.Options), want)
				}
				seen := map[string]bool{}
				for _, o := range r.Options {
					if seen[o] {
						t.Fatalf("duplicate option %q in %v", o, r.Options)
					}
					seen[o] = true
				}
			}
		}
	}
}

func TestDeriveScenarioFourTracks(t *testing.T) {
	p := pool("A", "B", "C", "D")
	r, err := Derive(p, p[0], shuffle.New(11), 1)
	if err != nil {
		t.Fatalf("Derive() = %v; want nil", err)
	}
	if r.CorrectAnswer != "A" {
		t.Fatalf("CorrectAnswer = %q; want A", r.CorrectAnswer)
	}
	if len(r.Options) != 4 {
		t.Fatalf("Options = %v; want 4 options", r.Options)
	}
	for _, want := range []string{"A", "B", "C", "D"} {
		if !contains(r.Options, want) {
			t.Fatalf("Options %v don't contain %q", r.Options, want)
		}
	}
}

func TestDeriveSingleTrack(t *testing.T) {
	p := pool("A")
	r, err := Derive(p, p[0], shuffle.New(1), 1)
	if err != nil {
		t.Fatalf("Derive() = %v; want nil", err)
	}
	if len(r.Options) != 1 || r.Options[0] != "A" || r.CorrectAnswer != "A" {
		t.Fatalf("Derive() = %+v; want options [A] answer A", r)
	}
}

func TestDeriveDeduplicatesTitles(t *testing.T) {
	p := pool("Same", "same", "SAME ", "Other", "Other", "Third")
	for seed := int64(1); seed <= 20; seed++ {
		r, err := Derive(p, p[0], shuffle.New(seed), 1)
		if err != nil {
			t.Fatalf("Derive() = %v; want nil", err)
		}
		seen := map[string]bool{}
		for _, o := range r.Options {
			k := strings.ToLower(strings.TrimSpace(o))
			if seen[k] {
				t.Fatalf("Options %v contain duplicate title %q", r.Options, o)
			}
			seen[k] = true
		}
		if len(r.Options) != 3 {
			t.Fatalf("Options = %v; want 3 distinct titles", r.Options)
		}
	}
}

func TestDeriveErrors(t *testing.T) {
	p := pool("A", "B")
	if _, err := Derive(nil, p[0], nil, 1); !errors.Is(err, ErrInvalidPool) {
		t.Fatalf("Derive(nil pool) = %v; want ErrInvalidPool", err)
	}
	other := &catalog.Track{ID: "x", Title: "X"}
	if _, err := Derive(p, other, nil, 1); !errors.Is(err, ErrNotInPool) {
		t.Fatalf("Derive(foreign track) = %v; want ErrNotInPool", err)
	}
}

func TestCheck(t *testing.T) {
	r := Round{CorrectAnswer: "Title"}
	tests := []struct {
		guess string
		want  bool
	}{
		{"TITLE", true},
		{"title", true},
		{"Title", true},
		{" title ", true},
		{"Titles", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := r.Check(tt.guess); got != tt.want {
			t.Errorf("Check(%q) = %v; want %v", tt.guess, got, tt.want)
		}
	}
}

func TestOption(t *testing.T) {
	r := Round{Options: []string{"a", "b"}}
	if got, err := r.Option(2); err != nil || got != "b" {
		t.Fatalf("Option(2) = %q, %v; want b, nil", got, err)
	}
	for _, n := range []int{0, 3, -1} {
		if _, err := r.Option(n); !errors.Is(err, ErrInvalidOption) {
			t.Fatalf("Option(%d) = %v; want ErrInvalidOption", n, err)
		}
	}
}
