// Package ledger holds the directory entities (users, categories, cards) and the
// persisted transaction records produced by the intake pipeline.
package ledger

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind distinguishes money going out from money coming in.
type Kind string

const (
	Expense Kind = "EXPENSE"
	Income  Kind = "INCOME"
)

// ParseKind accepts the canonical names plus the Portuguese words the LLM tends
// to answer with.
func ParseKind(raw string) (Kind, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "EXPENSE", "DESPESA", "GASTO":
		return Expense, true
	case "INCOME", "RECEITA", "ENTRADA":
		return Income, true
	default:
		return "", false
	}
}

// PaymentMethod is how a transaction was settled.
type PaymentMethod string

const (
	PaymentPix      PaymentMethod = "PIX"
	PaymentCredit   PaymentMethod = "CREDIT"
	PaymentDebit    PaymentMethod = "DEBIT"
	PaymentCash     PaymentMethod = "CASH"
	PaymentTransfer PaymentMethod = "TRANSFER"
)

// ParsePaymentMethod normalizes a payment method name.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PIX":
		return PaymentPix, true
	case "CREDIT", "CREDITO", "CRÉDITO", "CREDIT_CARD":
		return PaymentCredit, true
	case "DEBIT", "DEBITO", "DÉBITO", "DEBIT_CARD":
		return PaymentDebit, true
	case "CASH", "DINHEIRO":
		return PaymentCash, true
	case "TRANSFER", "TRANSFERENCIA", "TRANSFERÊNCIA", "TED", "DOC":
		return PaymentTransfer, true
	default:
		return "", false
	}
}

// DivisionKind describes how a shared transaction is split.
type DivisionKind string

const (
	DivisionHalf       DivisionKind = "HALF"
	DivisionPercentage DivisionKind = "PERCENTAGE"
	DivisionFixed      DivisionKind = "FIXED_AMOUNT"
)

// ParseDivisionKind normalizes a division policy name.
func ParseDivisionKind(raw string) (DivisionKind, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "HALF", "":
		return DivisionHalf, true
	case "PERCENTAGE", "PERCENT":
		return DivisionPercentage, true
	case "FIXED_AMOUNT", "FIXED":
		return DivisionFixed, true
	default:
		return "", false
	}
}

// Plan is the subscription tier of a user.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPro     Plan = "pro"
	PlanPremium Plan = "premium"
)

// User is a directory entry reachable by phone, handle or display name.
type User struct {
	ID       string `json:"id"`
	Phone    string `json:"phone"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Plan     Plan   `json:"plan"`
	Locale   string `json:"locale,omitempty"`
}

// Category groups transactions of one kind.
type Category struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
}

// Card is a user's credit card. Brand is the card network ("bandeira").
type Card struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Brand  string `json:"brand"`
}

// Installment links one record of an installment plan to the first record.
type Installment struct {
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	ParentID string `json:"parentId"`
}

// Share is the other participant's part of a shared transaction.
type Share struct {
	UserID   string           `json:"userId"`
	Amount   decimal.Decimal  `json:"amount"`
	Division DivisionKind     `json:"division"`
	Value    *decimal.Decimal `json:"value,omitempty"`
}

// Transaction is one persisted ledger record. Amount is the creator's part;
// TotalAmount is the full value of this record before any split.
type Transaction struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Kind          Kind            `json:"kind"`
	Amount        decimal.Decimal `json:"amount"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Description   string          `json:"description"`
	CategoryID    string          `json:"categoryId"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	CardID        string          `json:"cardId,omitempty"`
	Date          time.Time       `json:"date"`
	Installment   *Installment    `json:"installment,omitempty"`
	Share         *Share          `json:"share,omitempty"`
	Source        string          `json:"source"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// SourceWhatsApp tags records created through the chat intake.
const SourceWhatsApp = "whatsapp"

// ErrNotFound is returned by directory lookups that match nothing.
var ErrNotFound = errors.New("not found")
