// Package intent classifies a chat message with keyword buckets when the
// language model is unavailable.
package intent

import (
	"regexp"
	"strings"

	"github.com/zhouzirui/finchat/backend/internal/analysis/extraction"
	"github.com/zhouzirui/finchat/backend/internal/analysis/text"
	"github.com/zhouzirui/finchat/backend/internal/model/intake"
)

// shortReplyWords is the longest reply still read as a confirm/cancel answer.
const shortReplyWords = 3

type bucket struct {
	kind     intake.IntentKind
	keywords []string
}

var replyBuckets = []bucket{
	{
		kind: intake.IntentConfirm,
		keywords: []string{
			"sim", "s", "yes", "y", "ok", "okay", "confirmo", "confirmar", "confirma", "confirm",
			"pode", "pode salvar", "salva", "salvar", "isso", "isso mesmo", "beleza", "certo",
			"correto", "manda", "bora", "yep", "yeah", "yup", "sure", "save", "go ahead", "correct",
		},
	},
	{
		kind: intake.IntentCancel,
		keywords: []string{
			"nao", "n", "no", "cancel", "cancelar", "cancela", "cancelado", "esquece", "deixa",
			"deixa pra la", "nope", "nah", "stop", "forget it", "never mind", "nevermind", "apaga",
		},
	},
}

var replyEmoji = map[string]intake.IntentKind{
	"👍": intake.IntentConfirm,
	"✅": intake.IntentConfirm,
	"👌": intake.IntentConfirm,
	"👎": intake.IntentCancel,
	"❌": intake.IntentCancel,
}

var commandBuckets = []bucket{
	{
		kind: intake.IntentListCategories,
		keywords: []string{
			"categorias", "categories", "minhas categorias", "my categories", "list categories",
			"listar categorias", "quais categorias", "which categories",
		},
	},
	{
		kind: intake.IntentHelp,
		keywords: []string{
			"ajuda", "help", "menu", "comandos", "commands", "como funciona", "how does it work",
			"como usar", "how to use", "oi", "ola", "hello", "hi", "hey", "bom dia", "boa tarde", "boa noite",
		},
	},
}

var correctionMarkers = []string{
	"corrigir", "corrige", "correcao", "na verdade", "muda", "mudar", "altera", "alterar", "troca",
	"trocar", "nao era", "era", "actually", "change", "correct it", "fix", "wrong", "errado", "instead",
}

var correctionFields = []struct {
	field    intake.CorrectionField
	keywords []string
}{
	{intake.CorrectCategory, []string{"categoria", "category"}},
	{intake.CorrectPaymentMethod, []string{"cartao", "card", "pix", "credito", "credit", "debito", "debit", "dinheiro", "cash", "pagamento", "payment", "transferencia", "transfer"}},
	{intake.CorrectDescription, []string{"descricao", "description", "nome", "name", "titulo", "title"}},
	{intake.CorrectAmount, []string{"valor", "amount", "preco", "price", "total"}},
}

// Analyze classifies msg. hasPending reports whether the session holds a
// candidate awaiting confirmation.
func Analyze(msg string, hasPending bool) intake.Intent {
	trimmed := strings.TrimSpace(msg)
	words := text.Words(trimmed)
	if trimmed == "" {
		return intake.Intent{Kind: intake.IntentUndefined, Rationale: "empty message"}
	}

	if hasPending && len(words) <= shortReplyWords {
		if kind, ok := matchReply(trimmed, words); ok {
			return intake.Intent{Kind: kind, Confidence: 0.9, Rationale: "short reply keyword"}
		}
	}

	if hasPending && text.ContainsAny(trimmed, correctionMarkers) {
		if field := DetectCorrectionField(trimmed); field != "" {
			return intake.Intent{Kind: intake.IntentCorrect, Confidence: 0.7, Rationale: "correction marker", CorrectionField: field}
		}
	}

	// A bare number is not a transaction; with a pending candidate the
	// tie-break still turns it into CREATE.
	if extraction.ContainsAmount(trimmed) && extraction.HasTransactionVerb(trimmed) {
		return intake.Intent{Kind: intake.IntentCreate, Confidence: 0.8, Rationale: "amount with transaction verb"}
	}

	for _, b := range commandBuckets {
		if text.ContainsAny(trimmed, b.keywords) {
			return intake.Intent{Kind: b.kind, Confidence: 0.7, Rationale: "command keyword"}
		}
	}

	if strings.HasSuffix(trimmed, "?") {
		return intake.Intent{Kind: intake.IntentQuestion, Confidence: 0.6, Rationale: "question mark"}
	}
	return intake.Intent{Kind: intake.IntentUndefined, Confidence: 0.3, Rationale: "no rule matched"}
}

// ApplyTieBreak turns an intent into CREATE when a pending candidate exists
// and msg carries a fresh amount. CORRECT, CREATE and LIST_CATEGORIES are
// left alone.
func ApplyTieBreak(in intake.Intent, msg string, hasPending bool) intake.Intent {
	if !hasPending || !extraction.ContainsAmount(msg) {
		return in
	}
	switch in.Kind {
	case intake.IntentConfirm, intake.IntentCancel, intake.IntentUndefined, intake.IntentHelp, intake.IntentQuestion:
		return intake.Intent{
			Kind:       intake.IntentCreate,
			Confidence: in.Confidence,
			Rationale:  "new amount overrides pending confirmation",
		}
	}
	return in
}

// DetectCorrectionField names the pending field msg wants to change. An
// amount without a field keyword is read as an amount correction.
func DetectCorrectionField(msg string) intake.CorrectionField {
	for _, f := range correctionFields {
		if text.ContainsAny(msg, f.keywords) {
			return f.field
		}
	}
	if extraction.ContainsAmount(msg) {
		return intake.CorrectAmount
	}
	return ""
}

func matchReply(raw string, words []string) (intake.IntentKind, bool) {
	for emoji, kind := range replyEmoji {
		if strings.Contains(raw, emoji) {
			return kind, true
		}
	}

	var found intake.IntentKind
	for _, b := range replyBuckets {
		if !text.ContainsAny(raw, b.keywords) {
			continue
		}
		if found != "" {
			return "", false
		}
		found = b.kind
	}
	if found == "" || len(words) == 0 {
		return "", false
	}
	return found, true
}

var correctionValueRe = regexp.MustCompile(`(?i)^.*?(?:(?:^|\s)(?:para|pra|to|is|é|for)\s+|[:=]\s*)(.+)$`)

// correctionFiller are the words dropped when a correction names its new
// value without a connector ("categoria transporte").
var correctionFiller = func() map[string]bool {
	set := map[string]bool{
		"a": true, "o": true, "the": true, "de": true, "da": true, "do": true, "na": true,
		"verdade": true, "it": true, "please": true, "por": true, "favor": true, "pf": true,
	}
	for _, m := range correctionMarkers {
		for _, w := range strings.Fields(m) {
			set[w] = true
		}
	}
	for _, f := range correctionFields {
		if f.field == intake.CorrectPaymentMethod {
			continue
		}
		for _, k := range f.keywords {
			set[k] = true
		}
	}
	return set
}()

// CorrectionValue returns the new value a correction message carries, keeping
// the user's spelling: "muda a categoria para Transporte" yields "Transporte".
func CorrectionValue(msg string) string {
	trimmed := strings.TrimSpace(msg)
	if m := correctionValueRe.FindStringSubmatch(trimmed); m != nil {
		return strings.Trim(strings.TrimSpace(m[1]), ".!?\"'")
	}

	var kept []string
	for _, w := range strings.Fields(trimmed) {
		if correctionFiller[text.Fold(text.CleanToken(w))] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Trim(strings.Join(kept, " "), ".!?\"'")
}
