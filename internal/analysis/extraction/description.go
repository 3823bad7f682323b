package extraction

import (
	"strings"
	"unicode"

	"github.com/zhouzirui/finchat/backend/internal/analysis/text"
	"github.com/zhouzirui/finchat/backend/internal/model/intake"
)

// maxDescriptionWords caps the cleaned description.
const maxDescriptionWords = 3

// PlaceholderConfidence flags a candidate whose description had to be
// replaced by the placeholder.
const PlaceholderConfidence = 0.4

var stopWords = toSet(
	// en
	"a", "an", "the", "on", "for", "at", "in", "to", "of", "from", "my", "our", "some",
	"and", "i", "it", "is", "was", "this", "that", "today", "yesterday", "just", "about",
	"dollars", "dollar", "bucks", "usd", "by", "into",
	// pt
	"o", "os", "as", "um", "uma", "uns", "umas", "no", "na", "nos", "nas", "em", "de",
	"do", "da", "dos", "das", "pra", "pro", "para", "por", "meu", "minha", "meus",
	"minhas", "e", "que", "foi", "hoje", "ontem", "reais", "real", "brl", "r$", "$",
	"ai", "la", "aqui", "agora",
)

var paymentTokens = toSet(
	"pix", "credito", "credit", "debito", "debit", "cartao", "card", "dinheiro", "cash",
	"especie", "transferencia", "transfer", "ted", "via", "vezes", "times", "parcelas",
	"parcela", "parcelado", "parcelada", "installments", "installment", "x", "boleto",
	"nubank", "nu", "itau", "bradesco", "santander", "inter", "c6", "caixa", "bb",
	"banco", "bank", "visa", "master", "mastercard", "elo", "amex", "hipercard",
	"picpay", "mercadopago", "sicredi", "sicoob", "btg", "xp",
)

// cutWords end the description: what follows is sharing or payment detail.
var cutWords = toSet(
	"with", "com", "shared", "split", "splitting", "half", "dividido", "dividida",
	"dividi", "dividimos", "compartilhado", "compartilhada", "metade", "rachei",
	"rachado", "rachada", "parcelado", "parcelada", "using", "usando",
)

func toSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func isStopWord(folded string) bool     { return stopWords[folded] }
func isPaymentToken(folded string) bool { return paymentTokens[folded] }

// CleanDescription keeps up to three meaningful words of fragment, dropping
// stop words, payment and bank tokens and numbers, and capitalizes the result.
// It stops at the first sharing or payment marker that follows a kept word.
func CleanDescription(fragment string) string {
	kept := make([]string, 0, maxDescriptionWords)
	for _, raw := range strings.Fields(fragment) {
		tok := text.CleanToken(raw)
		folded := text.Fold(tok)
		if folded == "" {
			continue
		}
		if cutWords[folded] {
			if len(kept) > 0 {
				break
			}
			continue
		}
		if isStopWord(folded) || isPaymentToken(folded) || hasDigit(folded) {
			continue
		}
		if strings.IndexFunc(folded, unicode.IsLetter) < 0 {
			continue
		}
		kept = append(kept, tok)
		if len(kept) == maxDescriptionWords {
			break
		}
	}
	return text.Capitalize(strings.ToLower(strings.Join(kept, " ")))
}

// PlaceholderDescription is used when nothing meaningful survives cleanup.
func PlaceholderDescription(locale intake.Locale) string {
	if locale == intake.LocaleENUS {
		return "Transaction"
	}
	return "Transação"
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
