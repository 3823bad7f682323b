package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	analysis "github.com/zhouzirui/finchat/backend/internal/analysis/intent"
	"github.com/zhouzirui/finchat/backend/internal/logger"
	"github.com/zhouzirui/finchat/backend/internal/model/chat"
	"github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/service/llm"
)

// Config controls the classifier.
type Config struct {
	Timeout      time.Duration
	HistoryLimit int
}

// Service asks the language model what a message means and falls back to
// keyword heuristics when the model is missing, slow or unparseable.
type Service struct {
	completer    llm.Completer
	fallback     func(msg string, hasPending bool) intake.Intent
	timeout      time.Duration
	historyLimit int
}

// NewService creates the classifier. completer may be nil.
func NewService(completer llm.Completer, cfg Config) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = llm.DefaultHistoryLimit
	}

	return &Service{
		completer:    completer,
		fallback:     analysis.Analyze,
		timeout:      timeout,
		historyLimit: historyLimit,
	}
}

// Enabled reports whether the language model tier is available.
func (s *Service) Enabled() bool {
	return s != nil && s.completer != nil
}

// Classify decides what msg means given the session state. The fresh-amount
// tie-break is applied to both tiers.
func (s *Service) Classify(ctx context.Context, msg string, history []chat.Message, hasPending bool, locale intake.Locale) intake.Intent {
	result := s.classify(ctx, msg, history, hasPending, locale)
	return analysis.ApplyTieBreak(result, msg, hasPending)
}

func (s *Service) classify(ctx context.Context, msg string, history []chat.Message, hasPending bool, locale intake.Locale) intake.Intent {
	if !s.Enabled() {
		return s.fallback(msg, hasPending)
	}

	log := logger.FromContext(ctx)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	content, err := s.completer.Complete(callCtx, llm.Request{
		System:       buildSystemPrompt(hasPending, locale),
		History:      history,
		HistoryLimit: s.historyLimit,
		Query:        strings.TrimSpace(msg),
	})
	if err != nil {
		log.Warn().Err(err).Msg("intent classifier failed, using heuristics")
		return s.fallback(msg, hasPending)
	}

	result, err := parseClassifierOutput(content)
	if err != nil {
		log.Warn().Err(err).Msg("intent classifier output rejected, using heuristics")
		return s.fallback(msg, hasPending)
	}
	return result
}

// parseClassifierOutput validates the model answer against the Intent shape.
func parseClassifierOutput(content string) (intake.Intent, error) {
	var payload classifierPayload
	if err := llm.DecodeJSON(content, &payload); err != nil {
		return intake.Intent{}, err
	}

	kind, ok := intake.ParseIntentKind(payload.Intent)
	if !ok {
		return intake.Intent{}, fmt.Errorf("unknown intent %q", payload.Intent)
	}

	confidence := payload.Confidence
	if confidence <= 0 {
		confidence = 0.6
	}
	if confidence > 1 {
		confidence = 1
	}

	result := intake.Intent{
		Kind:       kind,
		Confidence: confidence,
		Rationale:  strings.TrimSpace(payload.Rationale),
	}
	if kind == intake.IntentCorrect {
		result.CorrectionField = intake.ParseCorrectionField(payload.CorrectionField)
		if result.CorrectionField == "" {
			return intake.Intent{}, fmt.Errorf("correction without a valid field %q", payload.CorrectionField)
		}
	}
	return result, nil
}

type classifierPayload struct {
	Intent          string  `json:"intent"`
	Confidence      float64 `json:"confidence"`
	Rationale       string  `json:"rationale"`
	CorrectionField string  `json:"correction_field"`
}

func buildSystemPrompt(hasPending bool, locale intake.Locale) string {
	var b strings.Builder
	b.WriteString(intentSystemPrompt)
	if hasPending {
		b.WriteString("\nThere IS a transaction awaiting the user's confirmation. Short affirmative replies are CONFIRM, short negative replies are CANCEL, a request to change a field of it is CORRECT. A message stating a new amount and what it was for is CREATE even now.")
	} else {
		b.WriteString("\nThere is NO transaction awaiting confirmation, so CONFIRM, CANCEL and CORRECT are not possible.")
	}
	b.WriteString("\nThe user usually writes in ")
	if locale == intake.LocaleENUS {
		b.WriteString("English.")
	} else {
		b.WriteString("Brazilian Portuguese.")
	}
	return b.String()
}

const intentSystemPrompt = `You classify chat messages sent to a personal finance assistant on WhatsApp.
Possible intents:
- CREATE: the user reports a new expense or income with an amount.
- CONFIRM: the user accepts the transaction awaiting confirmation.
- CANCEL: the user rejects the transaction awaiting confirmation.
- CORRECT: the user changes one field of the transaction awaiting confirmation (correction_field is one of amount, description, category, payment_method).
- LIST_CATEGORIES: the user asks which categories exist.
- HELP: the user greets or asks how to use the assistant.
- QUESTION: any other question.
- UNDEFINED: none of the above.
Return ONLY a raw JSON object, without code fences:
{"intent": "CREATE", "confidence": 0.0-1.0, "rationale": "short reason", "correction_field": ""}`
