// Package intake runs the conversational intake: it classifies each inbound
// message, drives the per-phone confirmation state machine and replies in the
// user's language.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	heuristics "github.com/zhouzirui/finchat/backend/internal/analysis/extraction"
	intentheur "github.com/zhouzirui/finchat/backend/internal/analysis/intent"
	"github.com/zhouzirui/finchat/backend/internal/analysis/text"
	"github.com/zhouzirui/finchat/backend/internal/logger"
	"github.com/zhouzirui/finchat/backend/internal/model/chat"
	model "github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
	"github.com/zhouzirui/finchat/backend/internal/phone"
	"github.com/zhouzirui/finchat/backend/internal/service/plan"
	"github.com/zhouzirui/finchat/backend/internal/service/resolve"
	"github.com/zhouzirui/finchat/backend/internal/service/session"
)

var (
	ErrSenderRequired = errors.New("sender phone is required")
	errMissingDep     = errors.New("intake: missing dependency")
)

// Outcome summarizes what a turn did.
type Outcome string

const (
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeNotLinked      Outcome = "not_linked"
	OutcomePendingCreated Outcome = "pending_created"
	OutcomeConfirmed      Outcome = "confirmed"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeCorrected      Outcome = "corrected"
	OutcomeExpired        Outcome = "expired"
	OutcomeAnswered       Outcome = "answered"
	OutcomeRejected       Outcome = "rejected"
	OutcomeFailed         Outcome = "failed"
)

// Config tunes the collaborator deadlines of the pipeline.
type Config struct {
	DirectoryTimeout   time.Duration
	PersistenceTimeout time.Duration
	DeliveryTimeout    time.Duration
	DefaultLocale      model.Locale
}

func (c Config) withDefaults() Config {
	if c.DirectoryTimeout <= 0 {
		c.DirectoryTimeout = 5 * time.Second
	}
	if c.PersistenceTimeout <= 0 {
		c.PersistenceTimeout = 10 * time.Second
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = 10 * time.Second
	}
	if c.DefaultLocale == "" {
		c.DefaultLocale = model.LocalePTBR
	}
	return c
}

// Deps are the collaborators of the pipeline. Limits and Sender are optional:
// without Limits no plan cap applies, without Sender replies are only
// returned in the Result.
type Deps struct {
	Sessions     *session.Store
	Directory    Directory
	Classifier   Classifier
	Extractor    Extractor
	Materializer Materializer
	Limits       LimitChecker
	Sender       Sender
}

// Input is one inbound text, possibly transcribed from a voice note.
type Input struct {
	From        string
	MessageID   string
	Text        string
	Transcribed bool
}

// Result reports the replies and effects of one turn.
type Result struct {
	Key     string
	UserID  string
	Intent  model.Intent
	Outcome Outcome
	Err     error
	Replies []string
	Records []ledger.Transaction
	Pending *model.PendingTransaction
}

// Pipeline is the confirmation state machine. Turns for the same phone are
// serialized by the session store lock; different phones run in parallel.
type Pipeline struct {
	sessions     *session.Store
	directory    Directory
	classifier   Classifier
	extractor    Extractor
	materializer Materializer
	limits       LimitChecker
	sender       Sender
	cfg          Config
}

// NewPipeline wires the pipeline.
func NewPipeline(deps Deps, cfg Config) (*Pipeline, error) {
	switch {
	case deps.Sessions == nil:
		return nil, fmt.Errorf("%w: session store", errMissingDep)
	case deps.Directory == nil:
		return nil, fmt.Errorf("%w: directory", errMissingDep)
	case deps.Classifier == nil:
		return nil, fmt.Errorf("%w: classifier", errMissingDep)
	case deps.Extractor == nil:
		return nil, fmt.Errorf("%w: extractor", errMissingDep)
	case deps.Materializer == nil:
		return nil, fmt.Errorf("%w: materializer", errMissingDep)
	}

	return &Pipeline{
		sessions:     deps.Sessions,
		directory:    deps.Directory,
		classifier:   deps.Classifier,
		extractor:    deps.Extractor,
		materializer: deps.Materializer,
		limits:       deps.Limits,
		sender:       deps.Sender,
		cfg:          cfg.withDefaults(),
	}, nil
}

// turn carries the state of one message through the handlers.
type turn struct {
	from    string
	key     string
	text    string
	user    ledger.User
	locale  model.Locale
	msgs    *catalog
	pending *model.PendingTransaction
	intent  model.Intent
}

// Handle processes one inbound message end to end and delivers the replies.
// Domain failures become localized replies and are reported in Result.Err;
// the returned error is reserved for inputs the pipeline cannot attribute to
// a conversation.
func (p *Pipeline) Handle(ctx context.Context, in Input) (Result, error) {
	key := phone.Canonicalize(in.From)
	if key == "" {
		return Result{}, ErrSenderRequired
	}

	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"phone_key":  key,
		"message_id": in.MessageID,
	})
	ctx = logger.WithContext(ctx, log)

	unlock, err := p.sessions.Lock(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("lock session %s: %w", key, err)
	}
	defer unlock()

	res := Result{Key: key}
	t := &turn{
		from:   in.From,
		key:    key,
		text:   strings.TrimSpace(in.Text),
		locale: heuristics.DetectLanguage(in.Text, p.cfg.DefaultLocale),
	}
	t.msgs = messagesFor(t.locale)

	user, err := p.findUser(ctx, key)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			log.Info().Msg("message from unlinked phone")
			res.Outcome = OutcomeNotLinked
			res.Err = model.NewError(model.ErrUserNotLinked, "", nil)
			res.Replies = append(res.Replies, t.msgs.errorText(res.Err, ""))
		} else {
			log.Error().Err(err).Msg("user lookup failed")
			res.Outcome = OutcomeFailed
			res.Err = err
			res.Replies = append(res.Replies, t.msgs.internal)
		}
		p.deliver(ctx, in.From, res.Replies)
		return res, nil
	}
	t.user = user
	res.UserID = user.ID
	log = logger.WithFields(log, map[string]interface{}{"user_id": user.ID})
	ctx = logger.WithContext(ctx, log)

	sess, err := p.sessions.GetOrCreate(ctx, key, user.ID)
	if err != nil {
		return res, fmt.Errorf("open session %s: %w", key, err)
	}
	if !p.sessions.MarkProcessed(ctx, key, in.MessageID) {
		log.Info().Msg("duplicate delivery ignored")
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	pending, state := p.sessions.PendingStatus(ctx, key)
	t.pending = pending
	t.locale = heuristics.DetectLanguage(t.text, p.fallbackLocale(user, pending))
	t.msgs = messagesFor(t.locale)

	if in.Transcribed {
		res.Replies = append(res.Replies, transcriptEcho(t.text))
	}

	if err := p.sessions.AppendMessage(ctx, key, chat.RoleUser, t.text); err != nil {
		log.Warn().Err(err).Msg("failed to record user message")
	}

	t.intent = p.classifier.Classify(ctx, t.text, sess.Messages, pending != nil, t.locale)
	res.Intent = t.intent
	log = log.With().Str("intent", string(t.intent.Kind)).Logger()
	ctx = logger.WithContext(ctx, log)
	log.Debug().
		Float64("confidence", t.intent.Confidence).
		Str("rationale", t.intent.Rationale).
		Msg("message classified")

	if state == session.PendingExpired {
		log.Info().Msg("pending transaction expired")
		res.Replies = append(res.Replies, t.msgs.expired)
		switch t.intent.Kind {
		case model.IntentConfirm, model.IntentCancel, model.IntentCorrect, model.IntentUndefined:
			res.Outcome = OutcomeExpired
			res.Err = model.NewError(model.ErrPendingExpired, "", nil)
			p.finish(ctx, t, res.Replies)
			return res, nil
		}
	}

	switch t.intent.Kind {
	case model.IntentCreate:
		p.create(ctx, t, &res)
	case model.IntentConfirm:
		p.confirm(ctx, t, &res)
	case model.IntentCancel:
		p.cancel(ctx, t, &res)
	case model.IntentCorrect:
		p.correct(ctx, t, &res)
	case model.IntentListCategories:
		p.listCategories(ctx, t, &res)
	case model.IntentHelp:
		p.answer(&res, t.msgs.help)
	case model.IntentQuestion:
		if t.pending != nil {
			p.answer(&res, t.msgs.disambiguation)
		} else {
			p.answer(&res, t.msgs.questionHint)
		}
	default:
		if t.pending != nil {
			p.reject(ctx, &res, t, model.NewError(model.ErrInvalidReply, "", nil), t.msgs.disambiguation)
		} else {
			p.answer(&res, t.msgs.notUnderstood)
		}
	}

	log.Info().Str("outcome", string(res.Outcome)).Msg("message handled")
	p.finish(ctx, t, res.Replies)
	return res, nil
}

// Notify delivers a standalone reply outside of a turn.
func (p *Pipeline) Notify(ctx context.Context, to, body string) {
	p.deliver(ctx, to, []string{body})
}

// CheckQuota reports LimitReached when a known sender with nothing pending
// has used up the WhatsApp quota. Any other outcome is left to Handle.
func (p *Pipeline) CheckQuota(ctx context.Context, from string) error {
	key := phone.Canonicalize(from)
	if key == "" || p.limits == nil {
		return nil
	}
	user, err := p.findUser(ctx, key)
	if err != nil {
		return nil
	}
	if _, ok := p.sessions.GetPending(ctx, key); ok {
		return nil
	}
	if err := p.checkLimit(ctx, user, plan.FeatureWhatsApp); model.KindOf(err) == model.ErrLimitReached {
		return err
	}
	return nil
}

func (p *Pipeline) create(ctx context.Context, t *turn, res *Result) {
	if err := p.checkLimit(ctx, t.user, plan.FeatureWhatsApp); err != nil {
		p.reject(ctx, res, t, err, "")
		return
	}

	categories, err := p.listUserCategories(ctx, t.user.ID)
	if err != nil {
		p.reject(ctx, res, t, err, "")
		return
	}

	ex, err := p.extractor.Extract(ctx, t.text, categories, t.locale)
	if err != nil {
		p.reject(ctx, res, t, err, "")
		return
	}

	if ex.Share != nil {
		if err := p.checkLimit(ctx, t.user, plan.FeatureShared); err != nil {
			p.reject(ctx, res, t, err, "")
			return
		}
	}

	category, err := resolve.Category(ex.SuggestedCategory, ex.Kind, categories)
	if err != nil {
		p.reject(ctx, res, t, err, "")
		return
	}

	var card *ledger.Card
	if ex.PaymentMethod == ledger.PaymentCredit {
		resolved, cards, err := p.resolveCard(ctx, t.user.ID, t.text)
		if err != nil {
			p.reject(ctx, res, t, err, cardNames(cards))
			return
		}
		card = resolved
	}

	var sharedWith *ledger.User
	if ex.Share != nil {
		target, err := p.resolvePerson(ctx, t.user.ID, ex.Share.Target)
		if err != nil {
			p.reject(ctx, res, t, err, "")
			return
		}
		sharedWith = &target
	}

	candidate := &model.PendingTransaction{
		Extracted:  ex,
		Category:   category,
		Card:       card,
		SharedWith: sharedWith,
		Locale:     t.locale,
	}
	if err := p.sessions.SetPending(ctx, t.key, candidate); err != nil {
		p.reject(ctx, res, t, err, "")
		return
	}

	if t.pending != nil {
		res.Replies = append(res.Replies, t.msgs.replaced)
	}
	res.Replies = append(res.Replies, t.msgs.confirmation(candidate))
	res.Outcome = OutcomePendingCreated
	res.Pending = candidate

	log := logger.FromContext(ctx)
	log.Info().
		Str("kind", string(ex.Kind)).
		Str("amount", ex.Amount.StringFixed(2)).
		Str("source", string(ex.Source)).
		Str("category_id", category.ID).
		Msg("candidate awaiting confirmation")
}

func (p *Pipeline) confirm(ctx context.Context, t *turn, res *Result) {
	if t.pending == nil {
		p.answer(res, t.msgs.nothingPending)
		return
	}

	log := logger.FromContext(ctx)
	pctx, cancel := context.WithTimeout(ctx, p.cfg.PersistenceTimeout)
	records, err := p.materializer.Materialize(pctx, t.user.ID, t.pending)
	cancel()
	if err != nil {
		// The candidate stays pending so the user can retry.
		log.Error().Err(err).
			Str("amount", t.pending.Extracted.Amount.StringFixed(2)).
			Str("category_id", t.pending.Category.ID).
			Msg("failed to persist confirmed transaction")
		p.reject(ctx, res, t, err, "")
		return
	}

	if err := p.sessions.ClearPending(ctx, t.key); err != nil {
		log.Warn().Err(err).Msg("failed to clear pending transaction")
	}

	res.Records = records
	res.Outcome = OutcomeConfirmed
	res.Replies = append(res.Replies, t.msgs.savedText(t.pending, records))
	log.Info().
		Int("records", len(records)).
		Str("transaction_id", records[0].ID).
		Msg("transaction confirmed")
}

func (p *Pipeline) cancel(ctx context.Context, t *turn, res *Result) {
	if t.pending == nil {
		p.answer(res, t.msgs.nothingPending)
		return
	}
	if err := p.sessions.ClearPending(ctx, t.key); err != nil {
		p.reject(ctx, res, t, err, "")
		return
	}
	res.Outcome = OutcomeCancelled
	res.Replies = append(res.Replies, t.msgs.cancelled)
}

func (p *Pipeline) correct(ctx context.Context, t *turn, res *Result) {
	if t.pending == nil {
		p.answer(res, t.msgs.nothingPending)
		return
	}

	field := t.intent.CorrectionField
	if field == "" {
		field = intentheur.DetectCorrectionField(t.text)
	}

	updated := t.pending.Clone()
	invalid := model.NewError(model.ErrInvalidReply, "", nil)

	switch field {
	case model.CorrectAmount:
		value := intentheur.CorrectionValue(t.text)
		amount, ok := heuristics.LastAmount(value)
		if !ok {
			amount, ok = heuristics.LastAmount(t.text)
		}
		if !ok {
			p.reject(ctx, res, t, invalid, "")
			return
		}
		updated.Extracted.Amount = amount

	case model.CorrectDescription:
		value := intentheur.CorrectionValue(t.text)
		if value == "" {
			p.reject(ctx, res, t, invalid, "")
			return
		}
		updated.Extracted.Description = text.Capitalize(value)

	case model.CorrectCategory:
		categories, err := p.listUserCategories(ctx, t.user.ID)
		if err != nil {
			p.reject(ctx, res, t, err, "")
			return
		}
		category, err := resolve.MatchCategory(intentheur.CorrectionValue(t.text), updated.Extracted.Kind, categories)
		if err != nil {
			p.reject(ctx, res, t, err, categoryNames(categories, updated.Extracted.Kind))
			return
		}
		updated.Category = category
		updated.Extracted.SuggestedCategory = category.Name

	case model.CorrectPaymentMethod:
		if !p.correctPayment(ctx, t, res, updated) {
			return
		}

	default:
		p.answer(res, t.msgs.askCorrectionField)
		return
	}

	if err := updated.Extracted.Validate(); err != nil {
		if model.KindOf(err) == "" {
			err = fmt.Errorf("%w: %v", invalid, err)
		}
		p.reject(ctx, res, t, err, "")
		return
	}

	// A corrected candidate gets a fresh confirmation window.
	updated.CreatedAt = time.Time{}
	if err := p.sessions.SetPending(ctx, t.key, updated); err != nil {
		p.reject(ctx, res, t, err, "")
		return
	}

	res.Outcome = OutcomeCorrected
	res.Pending = updated
	res.Replies = append(res.Replies, t.msgs.corrected, t.msgs.confirmation(updated))
	log := logger.FromContext(ctx)
	log.Info().Str("field", string(field)).Msg("pending transaction corrected")
}

// correctPayment applies a payment method or card correction to updated.
func (p *Pipeline) correctPayment(ctx context.Context, t *turn, res *Result, updated *model.PendingTransaction) bool {
	cards, err := p.listUserCards(ctx, t.user.ID)
	if err != nil {
		p.reject(ctx, res, t, err, "")
		return false
	}

	method, ok := heuristics.MentionedPaymentMethod(t.text)
	var card *ledger.Card
	if len(cards) > 0 {
		if c, err := resolve.Card(t.text, cards); err == nil {
			method, ok, card = ledger.PaymentCredit, true, &c
		}
	}
	if !ok {
		p.reject(ctx, res, t, model.NewError(model.ErrInvalidReply, "", nil), "")
		return false
	}

	if method != ledger.PaymentCredit && updated.Extracted.Installments != nil {
		p.reject(ctx, res, t, model.NewError(model.ErrInvalidReply, "", nil), t.msgs.installmentsNeedCredit)
		return false
	}
	if method == ledger.PaymentCredit && card == nil {
		if len(cards) == 0 {
			p.reject(ctx, res, t, model.NewError(model.ErrCardNotResolved, model.ReasonNoCards, nil), "")
			return false
		}
		p.reject(ctx, res, t, model.NewError(model.ErrCardNotResolved, "", nil), cardNames(cards))
		return false
	}

	updated.Extracted.PaymentMethod = method
	updated.Card = card
	return true
}

func (p *Pipeline) listCategories(ctx context.Context, t *turn, res *Result) {
	categories, err := p.listUserCategories(ctx, t.user.ID)
	if err != nil {
		p.reject(ctx, res, t, err, "")
		return
	}
	p.answer(res, t.msgs.categoryList(categories))
}

func (p *Pipeline) answer(res *Result, reply string) {
	res.Outcome = OutcomeAnswered
	res.Replies = append(res.Replies, reply)
}

// reject turns err into the user-facing reply. Errors without a domain kind
// are logged and answered with a generic failure.
func (p *Pipeline) reject(ctx context.Context, res *Result, t *turn, err error, detail string) {
	res.Err = err
	log := logger.FromContext(ctx)
	if model.KindOf(err) == "" {
		log.Error().Err(err).Msg("intake turn failed")
		res.Outcome = OutcomeFailed
		res.Replies = append(res.Replies, t.msgs.internal)
		return
	}

	log.Info().
		Str("error_kind", string(model.KindOf(err))).
		Str("reason", model.ReasonOf(err)).
		Msg("turn rejected")
	res.Outcome = OutcomeRejected
	res.Replies = append(res.Replies, t.msgs.errorText(err, detail))
}

// finish records the replies in the session log and delivers them.
func (p *Pipeline) finish(ctx context.Context, t *turn, replies []string) {
	if len(replies) > 0 {
		if err := p.sessions.AppendMessage(ctx, t.key, chat.RoleAssistant, strings.Join(replies, "\n\n")); err != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(err).Msg("failed to record reply")
		}
	}
	p.deliver(ctx, t.from, replies)
}

func (p *Pipeline) deliver(ctx context.Context, to string, replies []string) {
	if p.sender == nil {
		return
	}
	log := logger.FromContext(ctx)
	for _, reply := range replies {
		dctx, cancel := context.WithTimeout(ctx, p.cfg.DeliveryTimeout)
		err := p.sender.SendText(dctx, to, reply)
		cancel()
		if err != nil {
			log.Error().Err(err).Msg("failed to deliver reply")
			return
		}
	}
}

func (p *Pipeline) checkLimit(ctx context.Context, user ledger.User, feature plan.Feature) error {
	if p.limits == nil {
		return nil
	}
	dctx, cancel := context.WithTimeout(ctx, p.cfg.DirectoryTimeout)
	defer cancel()
	return p.limits.Check(dctx, user, feature)
}

func (p *Pipeline) findUser(ctx context.Context, key string) (ledger.User, error) {
	dctx, cancel := context.WithTimeout(ctx, p.cfg.DirectoryTimeout)
	defer cancel()
	return p.directory.FindUserByPhone(dctx, key)
}

func (p *Pipeline) listUserCategories(ctx context.Context, userID string) ([]ledger.Category, error) {
	dctx, cancel := context.WithTimeout(ctx, p.cfg.DirectoryTimeout)
	defer cancel()
	categories, err := p.directory.ListCategories(dctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

func (p *Pipeline) listUserCards(ctx context.Context, userID string) ([]ledger.Card, error) {
	dctx, cancel := context.WithTimeout(ctx, p.cfg.DirectoryTimeout)
	defer cancel()
	cards, err := p.directory.ListCards(dctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return cards, nil
}

// resolveCard binds a credit purchase to one of the user's cards. A credit
// purchase never goes ahead without a card.
func (p *Pipeline) resolveCard(ctx context.Context, userID, msg string) (*ledger.Card, []ledger.Card, error) {
	cards, err := p.listUserCards(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if len(cards) == 0 {
		return nil, nil, model.NewError(model.ErrCardNotResolved, model.ReasonNoCards, nil)
	}
	card, err := resolve.Card(msg, cards)
	if err != nil {
		return nil, cards, err
	}
	return &card, cards, nil
}

func (p *Pipeline) resolvePerson(ctx context.Context, requesterID, target string) (ledger.User, error) {
	dctx, cancel := context.WithTimeout(ctx, p.cfg.DirectoryTimeout)
	defer cancel()
	users, err := p.directory.LookupUsers(dctx, requesterID)
	if err != nil {
		return ledger.User{}, fmt.Errorf("lookup users: %w", err)
	}
	return resolve.Person(target, requesterID, users)
}

// fallbackLocale is used when a message carries no language markers.
func (p *Pipeline) fallbackLocale(user ledger.User, pending *model.PendingTransaction) model.Locale {
	if pending != nil && pending.Locale != "" {
		return pending.Locale
	}
	if user.Locale != "" {
		return model.ParseLocale(user.Locale)
	}
	return p.cfg.DefaultLocale
}

func cardNames(cards []ledger.Card) string {
	names := make([]string, 0, len(cards))
	for _, c := range cards {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}

func categoryNames(categories []ledger.Category, kind ledger.Kind) string {
	names := make([]string, 0, len(categories))
	for _, c := range categories {
		if c.Kind == kind {
			names = append(names, c.Name)
		}
	}
	return strings.Join(names, ", ")
}
