package intake

import "strings"

// IntentKind is what the current message means given the session state.
type IntentKind string

const (
	IntentCreate         IntentKind = "CREATE"
	IntentConfirm        IntentKind = "CONFIRM"
	IntentCancel         IntentKind = "CANCEL"
	IntentCorrect        IntentKind = "CORRECT"
	IntentListCategories IntentKind = "LIST_CATEGORIES"
	IntentHelp           IntentKind = "HELP"
	IntentQuestion       IntentKind = "QUESTION"
	IntentUndefined      IntentKind = "UNDEFINED"
)

// ParseIntentKind validates a classifier label.
func ParseIntentKind(raw string) (IntentKind, bool) {
	kind := IntentKind(strings.ToUpper(strings.TrimSpace(raw)))
	switch kind {
	case IntentCreate, IntentConfirm, IntentCancel, IntentCorrect,
		IntentListCategories, IntentHelp, IntentQuestion, IntentUndefined:
		return kind, true
	default:
		return "", false
	}
}

// CorrectionField names the pending field a CORRECT intent targets.
type CorrectionField string

const (
	CorrectAmount        CorrectionField = "amount"
	CorrectDescription   CorrectionField = "description"
	CorrectCategory      CorrectionField = "category"
	CorrectPaymentMethod CorrectionField = "payment_method"
)

// ParseCorrectionField returns "" for unknown fields.
func ParseCorrectionField(raw string) CorrectionField {
	switch CorrectionField(strings.ToLower(strings.TrimSpace(raw))) {
	case CorrectAmount, "valor":
		return CorrectAmount
	case CorrectDescription, "descricao":
		return CorrectDescription
	case CorrectCategory, "categoria":
		return CorrectCategory
	case CorrectPaymentMethod, "payment", "card", "metodo_pagamento":
		return CorrectPaymentMethod
	default:
		return ""
	}
}

// Intent is the classifier verdict for one message.
type Intent struct {
	Kind            IntentKind      `json:"kind"`
	Confidence      float64         `json:"confidence"`
	Rationale       string          `json:"rationale"`
	CorrectionField CorrectionField `json:"correctionField,omitempty"`
}
