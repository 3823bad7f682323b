// Package extraction reads a candidate transaction out of a chat message with
// an ordered table of language-specific rules and keyword heuristics.
package extraction

import (
	"regexp"
	"strings"

	"github.com/zhouzirui/finchat/backend/internal/analysis/text"
	"github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
)

// fallbackConfidence applies when no rule matched but an amount was found.
const fallbackConfidence = 0.5

// countSuffixRe spots a rule amount that is really an installment count or a
// percentage.
var countSuffixRe = regexp.MustCompile(`(?i)^\s*(?:%|x\b|vezes|times|parcelas|installments)`)

// Extractor evaluates a rule table, first match wins.
type Extractor struct {
	rules []Rule
}

// NewExtractor builds an extractor over rules; nil means DefaultRules.
func NewExtractor(rules []Rule) *Extractor {
	if rules == nil {
		rules = DefaultRules
	}
	return &Extractor{rules: rules}
}

// Extract runs the default rule table.
func Extract(msg string, categories []ledger.Category, locale intake.Locale) (intake.ExtractedTransaction, error) {
	return NewExtractor(nil).Extract(msg, categories, locale)
}

// Extract turns msg into a validated candidate transaction.
func (e *Extractor) Extract(msg string, categories []ledger.Category, locale intake.Locale) (intake.ExtractedTransaction, error) {
	var (
		match      Match
		kind       ledger.Kind
		confidence float64
		matched    bool
	)
	for _, rule := range orderedRules(e.rules, locale) {
		m, ok := rule.Apply(msg)
		if !ok {
			continue
		}
		if _, valid := ParseAmount(m.Amount); !valid {
			continue
		}
		match, kind, confidence, matched = m, rule.Kind, rule.Confidence, true
		break
	}

	out := intake.ExtractedTransaction{
		RawDescription: strings.TrimSpace(msg),
		Source:         intake.SourceHeuristic,
	}

	if matched && !countSuffixRe.MatchString(match.After) {
		amount, _ := ParseAmount(match.Amount)
		out.Amount = amount
	} else if matched {
		amount, ok := FirstAmount(msg)
		if !ok {
			return out, intake.NewError(intake.ErrExtractionFailed, intake.ReasonNoAmount, nil)
		}
		out.Amount = amount
	} else {
		amount, ok := FirstAmount(msg)
		if !ok {
			return out, intake.NewError(intake.ErrExtractionFailed, intake.ReasonNoAmount, nil)
		}
		out.Amount = amount
		match = Match{After: msg}
		confidence = fallbackConfidence
	}
	if !out.Amount.IsPositive() {
		return out, intake.NewError(intake.ErrExtractionFailed, intake.ReasonNoAmount, nil)
	}

	if kind == "" {
		kind = inferKind(msg)
	}
	out.Kind = kind
	out.Confidence = confidence

	out.Installments = DetectInstallments(msg)
	out.PaymentMethod = DetectPaymentMethod(msg, out.Installments != nil)

	share, err := DetectShare(msg, out.Amount)
	if err != nil {
		return out, err
	}
	out.Share = share

	out.Description = CleanDescription(match.After)
	if out.Description == "" {
		out.Description = CleanDescription(match.Before)
	}
	if out.Description == "" {
		out.Description = PlaceholderDescription(locale)
		out.Confidence = PlaceholderConfidence
	}

	out.SuggestedCategory = SuggestCategory(msg, out.Kind, categories, locale)

	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}

// HasTransactionVerb reports whether msg uses an expense or income verb in
// either language.
func HasTransactionVerb(msg string) bool {
	for _, verbs := range [][]string{englishExpenseVerbs, englishIncomeVerbs, portugueseExpenseVerbs, portugueseIncomeVerbs} {
		if text.ContainsAny(msg, verbs) {
			return true
		}
	}
	return false
}

func inferKind(msg string) ledger.Kind {
	if text.ContainsAny(msg, englishIncomeVerbs) || text.ContainsAny(msg, portugueseIncomeVerbs) || text.ContainsAny(msg, incomeNouns) {
		return ledger.Income
	}
	return ledger.Expense
}
