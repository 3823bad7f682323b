package resolve

import (
	"sort"
	"strings"

	"github.com/zhouzirui/finchat/backend/internal/analysis/text"
	"github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
)

// Card scoring weights.
const (
	scoreFullName    = 10
	scoreNameToken   = 5
	scoreBrand       = 4
	scoreAlias       = 3
	scoreCardPhrase  = 8
	minCardScore     = 3
	minNameTokenSize = 4
)

// brandAliases maps a card network or issuer to the nicknames people use.
var brandAliases = map[string][]string{
	"visa":        {"visa"},
	"mastercard":  {"master", "mastercard", "mc"},
	"elo":         {"elo"},
	"amex":        {"amex", "american express", "american"},
	"hipercard":   {"hiper", "hipercard"},
	"nubank":      {"nubank", "nu", "roxinho", "roxo"},
	"itau":        {"itau", "personnalite", "uniclass"},
	"bradesco":    {"bradesco"},
	"santander":   {"santander"},
	"inter":       {"inter", "banco inter", "laranjinha"},
	"c6":          {"c6", "c6 bank", "carbon", "carbono"},
	"xp":          {"xp"},
	"btg":         {"btg", "btg pactual"},
	"caixa":       {"caixa"},
	"bb":          {"bb", "banco do brasil", "ourocard"},
	"picpay":      {"picpay"},
	"mercadopago": {"mercado pago", "mercadopago"},
}

var aliasOrder = func() []string {
	keys := make([]string, 0, len(brandAliases))
	for k := range brandAliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}()

var cardWords = []string{"cartao", "card"}

// CardScore is one card with its score against a message.
type CardScore struct {
	Card  ledger.Card
	Score int
}

// ScoreCards scores every card against msg, keeping the input order.
func ScoreCards(msg string, cards []ledger.Card) []CardScore {
	folded := " " + strings.Join(text.Words(msg), " ") + " "
	out := make([]CardScore, 0, len(cards))
	for _, card := range cards {
		out = append(out, CardScore{Card: card, Score: scoreCard(folded, card)})
	}
	return out
}

// Card resolves the credit card msg refers to. The highest score wins when
// it reaches the threshold; ties keep the first card. A bare brand or issuer
// nickname scores enough on its own, so "no master" finds the Mastercard.
func Card(msg string, cards []ledger.Card) (ledger.Card, error) {
	if len(cards) == 0 {
		return ledger.Card{}, intake.NewError(intake.ErrCardNotResolved, "", nil)
	}

	best := -1
	bestScore := 0
	for i, s := range ScoreCards(msg, cards) {
		if s.Score > bestScore {
			best, bestScore = i, s.Score
		}
	}
	if best >= 0 && bestScore >= minCardScore {
		return cards[best], nil
	}

	return ledger.Card{}, intake.NewError(intake.ErrCardNotResolved, "", nil)
}

func scoreCard(folded string, card ledger.Card) int {
	name := strings.Join(text.Words(card.Name), " ")
	brand := strings.Join(text.Words(card.Brand), " ")
	score := 0

	if name != "" && containsPhrase(folded, name) {
		score += scoreFullName
	}

	keys := make([]string, 0, 4)
	for _, tok := range text.Words(card.Name) {
		if len([]rune(tok)) < minNameTokenSize {
			continue
		}
		keys = append(keys, tok)
		if containsPhrase(folded, tok) {
			score += scoreNameToken
		}
	}

	if brand != "" {
		keys = append(keys, brand)
		if containsPhrase(folded, brand) {
			score += scoreBrand
		}
	}

	for _, canonical := range cardCanonicals(card) {
		keys = append(keys, canonical)
		for _, alias := range brandAliases[canonical] {
			if containsPhrase(folded, alias) {
				score += scoreAlias
			}
		}
	}

	if mentionsCardPhrase(folded, keys) {
		score += scoreCardPhrase
	}
	return score
}

// cardCanonicals lists the alias-table entries a card belongs to, through its
// brand or a word of its name.
func cardCanonicals(card ledger.Card) []string {
	words := append(text.Words(card.Brand), text.Words(card.Name)...)
	joined := " " + strings.Join(words, " ") + " "

	var out []string
	for _, canonical := range aliasOrder {
		aliases := brandAliases[canonical]
		if strings.Contains(joined, " "+canonical+" ") {
			out = append(out, canonical)
			continue
		}
		for _, alias := range aliases {
			if strings.Contains(joined, " "+alias+" ") {
				out = append(out, canonical)
				break
			}
		}
	}
	return out
}

func mentionsCardPhrase(folded string, keys []string) bool {
	for _, key := range keys {
		if key == "" {
			continue
		}
		for _, word := range cardWords {
			for _, phrase := range []string{
				word + " " + key,
				word + " do " + key,
				word + " da " + key,
				word + " de " + key,
				key + " " + word,
			} {
				if containsPhrase(folded, phrase) {
					return true
				}
			}
		}
	}
	return false
}

// containsPhrase matches a folded phrase as whole words inside a
// space-padded folded text.
func containsPhrase(padded, phrase string) bool {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return false
	}
	return strings.Contains(padded, " "+phrase+" ")
}
