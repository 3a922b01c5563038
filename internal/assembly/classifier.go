package assembly

import (
	"context"
	"strings"

	"github.com/akulov/convopilot/internal/store"
)

// Classifier determines the topical categories of a conversation. The
// default implementation reads previously-computed tags and falls back to
// keyword inference; a learned classifier can replace it without touching
// the sampler or formatter.
type Classifier interface {
	Categorize(ctx context.Context, dialogIDs []int64, goal string) ([]string, error)
}

// keywordRule maps a goal-text keyword to its categories. Rules are matched
// in order so inference stays deterministic.
type keywordRule struct {
	keyword    string
	categories []string
}

var keywordRules = []keywordRule{
	{"date", []string{"dating", "romance"}},
	{"romantic", []string{"dating", "romance"}},
	{"relationship", []string{"dating", "romance"}},
	{"investment", []string{"business", "investment"}},
	{"fund", []string{"business", "investment"}},
	{"business", []string{"business", "investment"}},
	{"friend", []string{"friendship", "networking"}},
	{"connection", []string{"friendship", "networking"}},
	{"sell", []string{"sales"}},
	{"product", []string{"sales"}},
	{"support", []string{"support"}},
	{"help", []string{"support"}},
}

// fallbackCategory is used when no keyword matches the goal text.
const fallbackCategory = "general"

// KeywordClassifier is the default Classifier: stored tags first, keyword
// inference from the goal text when no history is tagged yet.
type KeywordClassifier struct {
	repo store.Repository
}

// NewKeywordClassifier creates the default classifier.
func NewKeywordClassifier(repo store.Repository) *KeywordClassifier {
	return &KeywordClassifier{repo: repo}
}

// Categorize returns the distinct categories previously tagged on the
// dialogs, ordered by descending relevance with name ties deterministic.
// When none exist it infers categories from the goal text. Inference is
// pure: case-insensitive substring matching against a fixed table, with
// "general" as the last resort.
func (c *KeywordClassifier) Categorize(ctx context.Context, dialogIDs []int64, goal string) ([]string, error) {
	if len(dialogIDs) > 0 {
		categories, err := c.repo.CategoriesForDialogs(ctx, dialogIDs)
		if err != nil {
			return nil, err
		}
		if len(categories) > 0 {
			return categories, nil
		}
	}
	return InferCategories(goal), nil
}

// InferCategories maps free-text goal wording onto categories using the
// fixed keyword table. Deterministic and side-effect free.
func InferCategories(goal string) []string {
	lowered := strings.ToLower(goal)

	var categories []string
	seen := make(map[string]bool)
	for _, rule := range keywordRules {
		if !strings.Contains(lowered, rule.keyword) {
			continue
		}
		for _, cat := range rule.categories {
			if !seen[cat] {
				seen[cat] = true
				categories = append(categories, cat)
			}
		}
	}

	if len(categories) == 0 {
		return []string{fallbackCategory}
	}
	return categories
}
