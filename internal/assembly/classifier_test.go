package assembly

import (
	"context"
	"testing"
)

func TestCategorizePrefersStoredTags(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	repo.categories = []string{"business", "networking"}

	c := NewKeywordClassifier(repo)
	got, err := c.Categorize(context.Background(), []int64{1, 2}, "let's date")
	if err != nil {
		t.Fatalf("Categorize failed: %v", err)
	}
	if len(got) != 2 || got[0] != "business" || got[1] != "networking" {
		t.Fatalf("expected stored tags, got %v", got)
	}
}

func TestCategorizeFallsBackToGoalInference(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	c := NewKeywordClassifier(repo)

	got, err := c.Categorize(context.Background(), nil, "Let's Date soon")
	if err != nil {
		t.Fatalf("Categorize failed: %v", err)
	}
	if len(got) != 2 || got[0] != "dating" || got[1] != "romance" {
		t.Fatalf(`expected [dating romance] for "let's date", got %v`, got)
	}
}

func TestInferCategories(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		goal string
		want []string
	}{
		{"dating keyword", "find a date", []string{"dating", "romance"}},
		{"business keywords", "pitch the investment fund", []string{"business", "investment"}},
		{"friendship keyword", "become friends", []string{"friendship", "networking"}},
		{"mixed keywords", "a romantic business trip", []string{"dating", "romance", "business", "investment"}},
		{"case insensitive", "RELATIONSHIP advice", []string{"dating", "romance"}},
		{"no keyword", "just chatting", []string{"general"}},
		{"empty goal", "", []string{"general"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := InferCategories(tt.goal)
			if len(got) != len(tt.want) {
				t.Fatalf("InferCategories(%q) = %v, want %v", tt.goal, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("InferCategories(%q) = %v, want %v", tt.goal, got, tt.want)
				}
			}
		})
	}
}

func TestInferCategoriesIsDeterministic(t *testing.T) {
	t.Parallel()

	goal := "a romantic business connection"
	first := InferCategories(goal)
	for i := 0; i < 10; i++ {
		again := InferCategories(goal)
		if len(again) != len(first) {
			t.Fatalf("inference order changed: %v vs %v", first, again)
		}
		for j := range again {
			if again[j] != first[j] {
				t.Fatalf("inference order changed: %v vs %v", first, again)
			}
		}
	}
}
