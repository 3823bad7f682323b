package extraction

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amountPattern captures one numeric token with an optional currency prefix.
const amountPattern = `(?:r\$|us\$|\$)?\s*(\d+(?:[.,]\d+)*)`

var (
	amountTokenRe = regexp.MustCompile(`(?i)(?:^|[^\w%])(?:r\$|us\$|\$)?\s*(\d+(?:[.,]\d+)*)(\s*(?:%|x\b|vezes|times|parcelas|installments))?`)
)

// ParseAmount reads a Brazilian or US formatted number: "1.234,56",
// "1,234.56", "50,9", "1500".
func ParseAmount(token string) (decimal.Decimal, bool) {
	tok := strings.TrimSpace(token)
	tok = strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(tok), "r$"), "$")
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return decimal.Zero, false
	}

	lastDot := strings.LastIndex(tok, ".")
	lastComma := strings.LastIndex(tok, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			tok = strings.ReplaceAll(tok, ".", "")
			tok = strings.Replace(tok, ",", ".", 1)
		} else {
			tok = strings.ReplaceAll(tok, ",", "")
		}
	case lastComma >= 0:
		tok = normalizeSingleSeparator(tok, ",")
	case lastDot >= 0:
		tok = normalizeSingleSeparator(tok, ".")
	}

	d, err := decimal.NewFromString(tok)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

// normalizeSingleSeparator decides whether sep is a thousands or a decimal
// separator: repeated or followed by exactly three digits means thousands.
func normalizeSingleSeparator(tok, sep string) string {
	if strings.Count(tok, sep) > 1 {
		return strings.ReplaceAll(tok, sep, "")
	}
	idx := strings.Index(tok, sep)
	if len(tok)-idx-1 == 3 {
		return strings.ReplaceAll(tok, sep, "")
	}
	return strings.Replace(tok, sep, ".", 1)
}

// Amounts returns every monetary amount in msg from left to right, skipping
// numbers that are percentages or installment counts.
func Amounts(msg string) []decimal.Decimal {
	var out []decimal.Decimal
	for _, m := range amountTokenRe.FindAllStringSubmatch(msg, -1) {
		if strings.TrimSpace(m[2]) != "" {
			continue
		}
		if d, ok := ParseAmount(m[1]); ok && d.IsPositive() {
			out = append(out, d)
		}
	}
	return out
}

// FirstAmount returns the leftmost monetary amount in msg.
func FirstAmount(msg string) (decimal.Decimal, bool) {
	if amounts := Amounts(msg); len(amounts) > 0 {
		return amounts[0], true
	}
	return decimal.Zero, false
}

// LastAmount returns the rightmost monetary amount in msg; corrections such
// as "não era 50, era 60" name the new value last.
func LastAmount(msg string) (decimal.Decimal, bool) {
	if amounts := Amounts(msg); len(amounts) > 0 {
		return amounts[len(amounts)-1], true
	}
	return decimal.Zero, false
}

// ContainsAmount reports whether msg carries a monetary amount.
func ContainsAmount(msg string) bool {
	_, ok := FirstAmount(msg)
	return ok
}
