package extraction

import (
	"github.com/zhouzirui/finchat/backend/internal/analysis/text"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
)

// explicitPaymentKeywords is checked in order; the first hit wins.
var explicitPaymentKeywords = []struct {
	method   ledger.PaymentMethod
	keywords []string
}{
	{ledger.PaymentCredit, []string{"credito", "credit", "cartao de credito", "credit card", "no credito", "on credit"}},
	{ledger.PaymentDebit, []string{"debito", "debit", "cartao de debito", "debit card", "no debito"}},
	{ledger.PaymentPix, []string{"pix", "via pix", "no pix"}},
	{ledger.PaymentCash, []string{"dinheiro", "cash", "especie", "em especie", "dinheiro vivo"}},
	{ledger.PaymentTransfer, []string{"transferencia", "transfer", "ted", "doc", "wire", "bank transfer"}},
}

var cardKeywords = []string{"cartao", "card"}

var onlineVocabulary = []string{
	"online", "internet", "site", "app", "aplicativo", "amazon", "mercado livre",
	"shopee", "aliexpress", "shein", "ifood", "rappi", "netflix", "spotify",
	"assinatura", "subscription", "ecommerce", "e-commerce", "loja virtual",
}

// DetectPaymentMethod applies the payment rules in priority order: any
// installment plan forces credit, then explicit keywords, then a bare card
// mention (credit when bought online, debit otherwise), then PIX.
func DetectPaymentMethod(msg string, hasInstallments bool) ledger.PaymentMethod {
	if hasInstallments {
		return ledger.PaymentCredit
	}
	if method, ok := explicitPaymentMethod(msg); ok {
		return method
	}
	if text.ContainsAny(msg, cardKeywords) {
		if text.ContainsAny(msg, onlineVocabulary) {
			return ledger.PaymentCredit
		}
		return ledger.PaymentDebit
	}
	return ledger.PaymentPix
}

// MentionedPaymentMethod reports the method msg names, without defaults. A
// bare card mention reads as credit.
func MentionedPaymentMethod(msg string) (ledger.PaymentMethod, bool) {
	if method, ok := explicitPaymentMethod(msg); ok {
		return method, true
	}
	if text.ContainsAny(msg, cardKeywords) {
		return ledger.PaymentCredit, true
	}
	return "", false
}

func explicitPaymentMethod(msg string) (ledger.PaymentMethod, bool) {
	for _, group := range explicitPaymentKeywords {
		if text.ContainsAny(msg, group.keywords) {
			return group.method, true
		}
	}
	return "", false
}
