package textsim

import (
	"reflect"
	"testing"
)

func TestNormalizeWhitespace(t *testing.T) {
	got := NormalizeWhitespace("  Paris \t is\n\nthe   capital  ")
	if got != "Paris is the capital" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeFact_KeepsPunctuation(t *testing.T) {
	got := NormalizeFact("  The Tower IS 330m tall. ")
	if got != "the tower is 330m tall." {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeText(t *testing.T) {
	got := NormalizeText("The Eiffel-Tower, is  TALL!")
	if got != "the eiffeltower is tall" {
		t.Errorf("got %q", got)
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"a b c", "a b c", 1},
		{"a b", "c d", 0},
		{"a b c d", "a b", 0.5},
		{"", "", 0},
		{"a", "", 0},
	}

	for _, tt := range tests {
		if got := Jaccard(tt.a, tt.b); got != tt.want {
			t.Errorf("Jaccard(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestExtractNumbers(t *testing.T) {
	got := ExtractNumbers("Built in 1889, it is 330m tall and weighs 10,100 tonnes (about 7.3 kt)")
	want := []string{"1889", "330", "10100", "7.3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if nums := ExtractNumbers("no numbers here"); len(nums) != 0 {
		t.Errorf("expected no numbers, got %v", nums)
	}
}

func TestFactsAreSimilar(t *testing.T) {
	tests := []struct {
		name   string
		f1, f2 string
		want   bool
	}{
		{"identical", "Paris is the capital of France", "Paris is the capital of France", true},
		{"case and spacing", "paris  is the CAPITAL of France", "Paris is the capital of France", true},
		{"differing numeral", "Paris has 2 million people", "Paris has 3 million people", false},
		{"number missing on one side", "Paris has 2 million people", "Paris has million people", false},
		{"same numbers", "The tower is 330 m tall", "the tower is 330 m tall", true},
		{"low overlap", "Paris is the capital of France", "Berlin hosts many museums", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FactsAreSimilar(tt.f1, tt.f2); got != tt.want {
				t.Errorf("FactsAreSimilar(%q, %q) = %v, want %v", tt.f1, tt.f2, got, tt.want)
			}
		})
	}
}

func TestTextsAreEquivalent(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"case and punctuation", "The Eiffel Tower is tall", "the eiffel tower is tall.", true},
		{"containment", "Paris is the capital of France", "Paris is the capital of France.", true},
		{"length ratio too low", "Paris", "Paris is the capital of France", false},
		{"one typo", "paris is the capital of france", "paris is the capitol of france", true},
		{"different text", "paris is the capital of france", "berlin is a city in germany!!", false},
		{"empty side", "", "something", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TextsAreEquivalent(tt.a, tt.b); got != tt.want {
				t.Errorf("TextsAreEquivalent(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
