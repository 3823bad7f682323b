// Package extraction reads a candidate transaction out of a message with the
// language model and falls back to the rule table when the model cannot
// answer.
package extraction

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	heuristics "github.com/zhouzirui/finchat/backend/internal/analysis/extraction"
	"github.com/zhouzirui/finchat/backend/internal/logger"
	"github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
	"github.com/zhouzirui/finchat/backend/internal/service/llm"
)

// Config controls the extraction service.
type Config struct {
	Timeout time.Duration
}

// Service is the two-tier extractor.
type Service struct {
	completer llm.Completer
	rules     *heuristics.Extractor
	timeout   time.Duration
}

// NewService creates the extractor. completer may be nil.
func NewService(completer llm.Completer, cfg Config) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		completer: completer,
		rules:     heuristics.NewExtractor(nil),
		timeout:   timeout,
	}
}

// Extract returns a validated candidate for msg. A model answer that reports
// failure or low confidence is final; transport, timeout and format problems
// fall through to the rule table.
func (s *Service) Extract(ctx context.Context, msg string, categories []ledger.Category, locale intake.Locale) (intake.ExtractedTransaction, error) {
	if s.completer == nil {
		return s.rules.Extract(msg, categories, locale)
	}

	log := logger.FromContext(ctx)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content, err := s.completer.Complete(callCtx, llm.Request{
		System: buildSystemPrompt(categories, locale),
		Query:  strings.TrimSpace(msg),
	})
	if err != nil {
		log.Warn().Err(err).Msg("llm extraction failed, using rule table")
		return s.rules.Extract(msg, categories, locale)
	}

	var payload extractionPayload
	if err := llm.DecodeJSON(content, &payload); err != nil {
		log.Warn().Err(err).Msg("llm extraction output rejected, using rule table")
		return s.rules.Extract(msg, categories, locale)
	}

	if !payload.Success || payload.Confidence < intake.MinLLMConfidence {
		return intake.ExtractedTransaction{}, intake.NewError(intake.ErrExtractionFailed, intake.ReasonLowConfidence, nil)
	}

	candidate, err := payload.toCandidate(msg, categories, locale)
	if err != nil {
		if intake.KindOf(err) != "" {
			return candidate, err
		}
		log.Warn().Err(err).Msg("llm extraction invalid, using rule table")
		return s.rules.Extract(msg, categories, locale)
	}
	return candidate, nil
}

type sharePayload struct {
	Target   string           `json:"target"`
	Division string           `json:"division"`
	Value    *decimal.Decimal `json:"value"`
}

type extractionPayload struct {
	Success       bool            `json:"success"`
	Kind          string          `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	PaymentMethod string          `json:"payment_method"`
	Category      string          `json:"category"`
	Share         *sharePayload   `json:"share"`
	Installments  int             `json:"installments"`
	Confidence    float64         `json:"confidence"`
}

func (p extractionPayload) toCandidate(msg string, categories []ledger.Category, locale intake.Locale) (intake.ExtractedTransaction, error) {
	kind, ok := ledger.ParseKind(p.Kind)
	if !ok {
		return intake.ExtractedTransaction{}, fmt.Errorf("invalid kind %q", p.Kind)
	}

	out := intake.ExtractedTransaction{
		Kind:           kind,
		Amount:         p.Amount.Round(2),
		RawDescription: strings.TrimSpace(msg),
		Confidence:     p.Confidence,
		Source:         intake.SourceLLM,
	}

	if p.Installments >= intake.MinInstallments {
		out.Installments = &intake.InstallmentSpec{Count: p.Installments}
	}

	if method, ok := ledger.ParsePaymentMethod(p.PaymentMethod); ok {
		out.PaymentMethod = method
	} else {
		out.PaymentMethod = heuristics.DetectPaymentMethod(msg, out.Installments != nil)
	}

	if p.Share != nil {
		division, ok := ledger.ParseDivisionKind(p.Share.Division)
		if !ok {
			return out, fmt.Errorf("invalid division %q", p.Share.Division)
		}
		out.Share = &intake.ShareSpec{
			Target:   strings.TrimSpace(p.Share.Target),
			Division: division,
			Value:    p.Share.Value,
		}
	}

	out.Description = heuristics.CleanDescription(p.Description)
	if out.Description == "" {
		out.Description = heuristics.PlaceholderDescription(locale)
		out.Confidence = heuristics.PlaceholderConfidence
	}

	out.SuggestedCategory = strings.TrimSpace(p.Category)
	if out.SuggestedCategory == "" {
		out.SuggestedCategory = heuristics.SuggestCategory(msg, kind, categories, locale)
	}

	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}

func buildSystemPrompt(categories []ledger.Category, locale intake.Locale) string {
	var b strings.Builder
	b.WriteString(extractionSystemPrompt)

	b.WriteString("\n\nThe user's categories:\n")
	if len(categories) == 0 {
		b.WriteString("(none)\n")
	}
	for _, c := range categories {
		fmt.Fprintf(&b, "- %s (%s)\n", c.Name, c.Kind)
	}

	b.WriteString("\nWrite the description in ")
	if locale == intake.LocaleENUS {
		b.WriteString("English.")
	} else {
		b.WriteString("Brazilian Portuguese.")
	}
	return b.String()
}

const extractionSystemPrompt = `You extract one financial transaction from a chat message sent to a personal finance assistant.
Rules:
- kind is EXPENSE or INCOME.
- amount is the total value as a number with a dot as decimal separator. Brazilian messages use "1.234,56".
- description has at most three words and no payment method, bank name or amount.
- payment_method is one of PIX, CREDIT, DEBIT, CASH, TRANSFER. Installments always mean CREDIT. Default PIX.
- category is the best matching name from the user's categories for that kind, or "" when none fits.
- share is null unless the message says the amount was shared or split with someone. target is the @handle or name of that person exactly as written. division is HALF, PERCENTAGE (value 0-100, the user's part) or FIXED_AMOUNT (value is what the user pays).
- installments is the number of installments (2-24) or 0.
- confidence is how sure you are (0-1). Set success to false when the message is not a transaction or the amount is unclear.
Return ONLY a raw JSON object, without code fences:
{"success": true, "kind": "EXPENSE", "amount": 0, "description": "", "payment_method": "PIX", "category": "", "share": null, "installments": 0, "confidence": 0.0}`
