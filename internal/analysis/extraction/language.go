package extraction

import (
	"strings"

	"github.com/zhouzirui/finchat/backend/internal/analysis/text"
	"github.com/zhouzirui/finchat/backend/internal/model/intake"
)

var portugueseMarkers = map[string]int{
	"gastei": 3, "paguei": 3, "comprei": 3, "recebi": 3, "ganhei": 3, "entrou": 2,
	"reais": 3, "real": 1, "r$": 2, "no": 1, "na": 1, "com": 1, "de": 1, "do": 1, "da": 1,
	"para": 1, "pra": 2, "sim": 3, "nao": 2, "cancelar": 3, "cancela": 3, "cartao": 3,
	"credito": 2, "debito": 2, "parcelas": 3, "vezes": 3, "dividido": 3, "metade": 3,
	"ontem": 2, "hoje": 2, "minha": 2, "meu": 2, "uma": 1, "um": 1, "conta": 1,
	"ajuda": 3, "categorias": 3, "confirmar": 3, "confirmo": 3, "isso": 1, "almoco": 2,
	"jantar": 2, "mercado": 1, "salario": 2, "obrigado": 2, "beleza": 2, "pode": 2,
}

var englishMarkers = map[string]int{
	"spent": 3, "paid": 3, "bought": 3, "received": 3, "earned": 3, "got": 1,
	"dollars": 3, "bucks": 3, "on": 1, "for": 1, "with": 1, "the": 2, "my": 2,
	"yes": 3, "cancel": 2, "card": 2, "times": 2, "shared": 3, "split": 3, "half": 3,
	"today": 2, "yesterday": 2, "i": 2, "help": 3, "categories": 3, "confirm": 2,
	"lunch": 2, "dinner": 2, "groceries": 2, "salary": 2, "thanks": 2, "please": 2,
	"yeah": 3, "yep": 3, "nope": 3, "sure": 2, "ok": 0,
}

// DetectLanguage guesses pt-BR or en-US from marker words. Ties go to
// fallback.
func DetectLanguage(msg string, fallback intake.Locale) intake.Locale {
	pt, en := 0, 0
	for _, w := range text.Words(msg) {
		pt += portugueseMarkers[w]
		en += englishMarkers[w]
	}
	if strings.ContainsAny(msg, "ãõçáéíóúâêôÃÕÇÁÉÍÓÚÂÊÔ") {
		pt += 2
	}

	switch {
	case pt > en:
		return intake.LocalePTBR
	case en > pt:
		return intake.LocaleENUS
	default:
		return fallback
	}
}
