package extraction

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/zhouzirui/finchat/backend/internal/analysis/text"
	"github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
)

var shareTriggers = []string{
	"shared", "share", "split", "splitting", "half", "half and half",
	"dividido", "dividida", "dividi", "dividimos", "dividir",
	"compartilhado", "compartilhada", "compartilhei",
	"metade", "meio a meio", "rachei", "rachado", "rachada", "rachamos",
}

const articleOpt = `(?:(?:o|a|my|meu|minha|the)\s+)?`

// targetPatterns are tried in order: the explicit "shared with X" phrase,
// then the last "with/com X" anywhere in the message.
var (
	explicitTargetRe = regexp.MustCompile(`(?i)\b(?:shared|split|divided|splitting|dividid[oa]|dividi|dividimos|compartilhad[oa]|compartilhei|rachei|rachad[oa]|rachamos|half|metade)\b(?:\s+(?:it|this|the bill|a conta|isso|o valor|a compra))?\s+(?:with|com)\s+` + articleOpt + `(@?[\p{L}\d_.]+)`)
	withTargetRe     = regexp.MustCompile(`(?i)\b(?:with|com)\s+` + articleOpt + `(@?[\p{L}\d_.]+)`)

	percentShareRe = regexp.MustCompile(`(?i)(?:my part|my share|minha parte|eu fico com|fico com|i keep|i pay|eu pago)\s*(?:is|é|e|de|of)?\s*(\d{1,3}(?:[.,]\d+)?)\s*%`)
	fixedShareRe   = regexp.MustCompile(`(?i)(?:i pay|i keep|i'll pay|eu pago|pago|fico com|minha parte(?:\s+(?:é|e|de))?|my part(?:\s+is)?)\s*(?:r\$|us\$|\$)?\s*(\d+(?:[.,]\d{1,2})?)(\s*%)?`)
)

// notATarget are words that can follow "with/com" without naming a person.
var notATarget = map[string]bool{
	"cartao": true, "card": true, "credito": true, "credit": true, "debito": true, "debit": true,
	"pix": true, "dinheiro": true, "cash": true, "desconto": true, "discount": true, "juros": true,
	"interest": true, "frete": true, "shipping": true, "taxa": true, "fee": true, "nota": true,
	"it": true, "this": true, "isso": true, "ele": true, "ela": true, "them": true,
}

// ShareTriggered reports whether msg uses sharing vocabulary.
func ShareTriggered(msg string) bool {
	return text.ContainsAny(msg, shareTriggers)
}

// DetectShare extracts the share target and division policy. It returns nil
// when the message carries no sharing vocabulary and a ShareTargetNotFound
// error when it does but names nobody.
func DetectShare(msg string, total decimal.Decimal) (*intake.ShareSpec, error) {
	if !ShareTriggered(msg) {
		return nil, nil
	}

	target := extractTarget(msg)
	if target == "" {
		return nil, intake.NewError(intake.ErrShareTargetNotFound, "", nil)
	}

	spec := &intake.ShareSpec{Target: target, Division: ledger.DivisionHalf}
	if m := percentShareRe.FindStringSubmatch(msg); m != nil {
		if v, ok := ParseAmount(m[1]); ok {
			spec.Division = ledger.DivisionPercentage
			spec.Value = &v
			return spec, nil
		}
	}
	for _, m := range fixedShareRe.FindAllStringSubmatch(msg, -1) {
		if strings.TrimSpace(m[2]) != "" {
			continue
		}
		if v, ok := ParseAmount(m[1]); ok && !v.Equal(total) {
			spec.Division = ledger.DivisionFixed
			spec.Value = &v
			return spec, nil
		}
	}
	return spec, nil
}

func extractTarget(msg string) string {
	if m := explicitTargetRe.FindStringSubmatch(msg); m != nil {
		if t := validTarget(m[1]); t != "" {
			return t
		}
	}
	all := withTargetRe.FindAllStringSubmatch(msg, -1)
	for i := len(all) - 1; i >= 0; i-- {
		if t := validTarget(all[i][1]); t != "" {
			return t
		}
	}
	return ""
}

func validTarget(raw string) string {
	t := text.CleanToken(raw)
	folded := text.Fold(strings.TrimPrefix(t, "@"))
	if folded == "" || notATarget[folded] || isStopWord(folded) || isPaymentToken(folded) {
		return ""
	}
	if strings.IndexFunc(folded, func(r rune) bool { return r < '0' || r > '9' }) < 0 {
		return ""
	}
	return t
}
