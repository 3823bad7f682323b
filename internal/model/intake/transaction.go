// Package intake defines the candidate transaction, intent and error types that
// flow through the conversational intake pipeline.
package intake

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
)

// Locale selects the language used for prompts, heuristics and replies.
type Locale string

const (
	LocalePTBR Locale = "pt-BR"
	LocaleENUS Locale = "en-US"
)

// ParseLocale falls back to pt-BR for anything it does not recognize.
func ParseLocale(raw string) Locale {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "en", "en-us", "en_us":
		return LocaleENUS
	default:
		return LocalePTBR
	}
}

// ExtractionSource records which tier produced a candidate.
type ExtractionSource string

const (
	SourceLLM       ExtractionSource = "llm"
	SourceHeuristic ExtractionSource = "heuristic"
)

// MinInstallments and MaxInstallments bound an installment plan.
const (
	MinInstallments = 2
	MaxInstallments = 24
)

// MinLLMConfidence is the confidence below which an LLM extraction is rejected.
const MinLLMConfidence = 0.6

// ShareSpec names the second participant of a shared expense and how the
// amount is divided.
type ShareSpec struct {
	Target   string              `json:"target"`
	Division ledger.DivisionKind `json:"division"`
	Value    *decimal.Decimal    `json:"value,omitempty"`
}

// InstallmentSpec is the number of monthly installments.
type InstallmentSpec struct {
	Count int `json:"count"`
}

// ExtractedTransaction is the structured reading of one chat message.
type ExtractedTransaction struct {
	Kind              ledger.Kind          `json:"kind"`
	Amount            decimal.Decimal      `json:"amount"`
	RawDescription    string               `json:"rawDescription"`
	Description       string               `json:"description"`
	PaymentMethod     ledger.PaymentMethod `json:"paymentMethod"`
	SuggestedCategory string               `json:"suggestedCategory,omitempty"`
	Share             *ShareSpec           `json:"share,omitempty"`
	Installments      *InstallmentSpec     `json:"installments,omitempty"`
	Confidence        float64              `json:"confidence"`
	Source            ExtractionSource     `json:"source"`
}

// Validate checks the candidate once at the extraction boundary and applies
// the normalizations every tier shares: installment plans are always paid by
// credit, and share divisions must fit inside the amount.
func (e *ExtractedTransaction) Validate() error {
	if e.Kind != ledger.Expense && e.Kind != ledger.Income {
		return fmt.Errorf("invalid kind %q", e.Kind)
	}
	if !e.Amount.IsPositive() {
		return NewError(ErrExtractionFailed, ReasonNoAmount, nil)
	}
	if _, ok := ledger.ParsePaymentMethod(string(e.PaymentMethod)); !ok {
		e.PaymentMethod = ledger.PaymentPix
	}
	if e.Installments != nil {
		if e.Installments.Count < MinInstallments || e.Installments.Count > MaxInstallments {
			e.Installments = nil
		} else {
			e.PaymentMethod = ledger.PaymentCredit
		}
	}
	if e.Share != nil {
		if strings.TrimSpace(e.Share.Target) == "" {
			return NewError(ErrShareTargetNotFound, "", nil)
		}
		if err := e.Share.validate(e.Amount); err != nil {
			return err
		}
	}
	if strings.TrimSpace(e.Description) == "" {
		return fmt.Errorf("empty description")
	}
	if e.Confidence < 0 {
		e.Confidence = 0
	}
	if e.Confidence > 1 {
		e.Confidence = 1
	}
	return nil
}

func (s *ShareSpec) validate(total decimal.Decimal) error {
	switch s.Division {
	case ledger.DivisionHalf:
		s.Value = nil
		return nil
	case ledger.DivisionPercentage:
		if s.Value == nil || s.Value.IsNegative() || s.Value.GreaterThan(decimal.NewFromInt(100)) {
			return NewError(ErrExtractionFailed, ReasonInvalidShare, fmt.Errorf("percentage share must be between 0 and 100"))
		}
		return nil
	case ledger.DivisionFixed:
		if s.Value == nil || s.Value.IsNegative() || s.Value.GreaterThan(total) {
			return NewError(ErrExtractionFailed, ReasonInvalidShare, fmt.Errorf("fixed share must be between 0 and %s", total.StringFixed(2)))
		}
		return nil
	default:
		return fmt.Errorf("unknown division %q", s.Division)
	}
}

// PendingTransaction is a resolved candidate awaiting the user's confirmation.
type PendingTransaction struct {
	Extracted  ExtractedTransaction `json:"extracted"`
	Category   ledger.Category      `json:"category"`
	Card       *ledger.Card         `json:"card,omitempty"`
	SharedWith *ledger.User         `json:"sharedWith,omitempty"`
	Locale     Locale               `json:"locale"`
	CreatedAt  time.Time            `json:"createdAt"`
}

// Expired reports whether the candidate is older than ttl at now.
func (p *PendingTransaction) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.CreatedAt) > ttl
}

// Clone deep-copies the candidate including its optional parts.
func (p *PendingTransaction) Clone() *PendingTransaction {
	if p == nil {
		return nil
	}
	out := *p
	if p.Extracted.Share != nil {
		share := *p.Extracted.Share
		out.Extracted.Share = &share
	}
	if p.Extracted.Installments != nil {
		inst := *p.Extracted.Installments
		out.Extracted.Installments = &inst
	}
	if p.Card != nil {
		card := *p.Card
		out.Card = &card
	}
	if p.SharedWith != nil {
		user := *p.SharedWith
		out.SharedWith = &user
	}
	return &out
}
