// Package resolve binds the hints of an extracted transaction to concrete
// directory entities: a category, a credit card and the person a transaction
// is shared with. A hint is never silently dropped or guessed.
package resolve

import (
	"strings"

	"github.com/zhouzirui/finchat/backend/internal/analysis/text"
	"github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
)

// Category picks the category for suggested among the user's categories of
// kind: exact name, then substring, then the first category of that kind.
func Category(suggested string, kind ledger.Kind, categories []ledger.Category) (ledger.Category, error) {
	candidates := filterCategories(categories, kind)
	if len(candidates) == 0 {
		return ledger.Category{}, intake.NewError(intake.ErrNoCategories, "", nil)
	}

	if match, ok := matchCategory(suggested, candidates); ok {
		return match, nil
	}
	return candidates[0], nil
}

// MatchCategory is the strict form used for corrections: no first-of-kind
// fallback.
func MatchCategory(name string, kind ledger.Kind, categories []ledger.Category) (ledger.Category, error) {
	candidates := filterCategories(categories, kind)
	if len(candidates) == 0 {
		return ledger.Category{}, intake.NewError(intake.ErrNoCategories, "", nil)
	}

	if match, ok := matchCategory(name, candidates); ok {
		return match, nil
	}
	return ledger.Category{}, intake.NewError(intake.ErrNoMatchingCategory, "", nil)
}

func matchCategory(name string, candidates []ledger.Category) (ledger.Category, bool) {
	want := text.Fold(name)
	if want == "" {
		return ledger.Category{}, false
	}

	for _, c := range candidates {
		if text.Fold(c.Name) == want {
			return c, true
		}
	}
	for _, c := range candidates {
		have := text.Fold(c.Name)
		if have != "" && (strings.Contains(have, want) || strings.Contains(want, have)) {
			return c, true
		}
	}
	return ledger.Category{}, false
}

func filterCategories(categories []ledger.Category, kind ledger.Kind) []ledger.Category {
	out := make([]ledger.Category, 0, len(categories))
	for _, c := range categories {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}
