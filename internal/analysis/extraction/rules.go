package extraction

import (
	"regexp"
	"strings"

	"github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
)

var (
	englishExpenseVerbs    = []string{"spent", "spend", "paid", "pay", "bought", "buy", "purchased", "ordered"}
	englishIncomeVerbs     = []string{"received", "receive", "earned", "got paid", "got", "made", "sold"}
	portugueseExpenseVerbs = []string{"gastei", "gasto", "gastamos", "paguei", "pagamos", "comprei", "compramos", "torrei", "transferi", "pedi"}
	portugueseIncomeVerbs  = []string{"recebi", "recebemos", "ganhei", "ganhamos", "entrou", "caiu", "vendi"}
)

var incomeNouns = []string{"salary", "paycheck", "income", "salario", "renda", "rendimento", "dividendos", "dividends"}

// Match is what a rule pulled out of a message: the amount token and the text
// on either side of it.
type Match struct {
	Amount string
	Before string
	After  string
}

// Rule is one entry of the ordered extraction table.
type Rule struct {
	Name       string
	Locale     intake.Locale // "" applies to every language
	Kind       ledger.Kind   // "" means infer from vocabulary
	Confidence float64
	Pattern    *regexp.Regexp
	Extract    func(m []string) Match
}

// Apply runs the rule against msg.
func (r Rule) Apply(msg string) (Match, bool) {
	m := r.Pattern.FindStringSubmatch(msg)
	if m == nil {
		return Match{}, false
	}
	return r.Extract(m), true
}

// verbAmountRest reads "<verb> <prefix> <amount> <rest>".
func verbAmountRest(m []string) Match {
	return Match{Before: m[1], Amount: m[2], After: m[3]}
}

// amountRest reads "<amount> <rest>".
func amountRest(m []string) Match {
	return Match{Amount: m[1], After: m[2]}
}

// restAmount reads "<description> <amount>".
func restAmount(m []string) Match {
	return Match{Before: m[1], Amount: m[2]}
}

func verbRule(name string, locale intake.Locale, kind ledger.Kind, verbs []string, confidence float64) Rule {
	alternatives := make([]string, len(verbs))
	for i, v := range verbs {
		alternatives[i] = regexp.QuoteMeta(v)
	}
	pattern := `(?i)\b(?:` + strings.Join(alternatives, "|") + `)\b(\D{0,40}?)` + amountPattern + `(.*)$`
	return Rule{
		Name:       name,
		Locale:     locale,
		Kind:       kind,
		Confidence: confidence,
		Pattern:    regexp.MustCompile(pattern),
		Extract:    verbAmountRest,
	}
}

// DefaultRules is the rule table, in evaluation order within a language.
var DefaultRules = []Rule{
	verbRule("en-income", intake.LocaleENUS, ledger.Income, englishIncomeVerbs, 0.8),
	verbRule("en-expense", intake.LocaleENUS, ledger.Expense, englishExpenseVerbs, 0.8),
	verbRule("pt-income", intake.LocalePTBR, ledger.Income, portugueseIncomeVerbs, 0.8),
	verbRule("pt-expense", intake.LocalePTBR, ledger.Expense, portugueseExpenseVerbs, 0.8),
	{
		Name:       "amount-first",
		Confidence: 0.65,
		Pattern:    regexp.MustCompile(`(?i)^\s*` + amountPattern + `\s*(?:reais|real|dollars|bucks|conto|contos)?\b(.*)$`),
		Extract:    amountRest,
	},
	{
		Name:       "description-first",
		Confidence: 0.6,
		Pattern:    regexp.MustCompile(`(?i)^\s*(\p{L}[\p{L}\s]{0,40}?)\s+` + amountPattern + `\s*(?:reais|real|dollars|bucks)?\s*[.!]?\s*$`),
		Extract:    restAmount,
	},
}

// orderedRules puts the rules for locale first, then the other language,
// then the language-neutral ones.
func orderedRules(rules []Rule, locale intake.Locale) []Rule {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Locale == locale {
			out = append(out, r)
		}
	}
	for _, r := range rules {
		if r.Locale != "" && r.Locale != locale {
			out = append(out, r)
		}
	}
	for _, r := range rules {
		if r.Locale == "" {
			out = append(out, r)
		}
	}
	return out
}
