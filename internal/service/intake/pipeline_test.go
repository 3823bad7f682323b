package intake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
	"github.com/zhouzirui/finchat/backend/internal/service/extraction"
	"github.com/zhouzirui/finchat/backend/internal/service/intent"
	ledgersvc "github.com/zhouzirui/finchat/backend/internal/service/ledger"
	"github.com/zhouzirui/finchat/backend/internal/service/plan"
	"github.com/zhouzirui/finchat/backend/internal/service/session"
)

const (
	anaPhone = "+55 11 98888-7777"
	anaKey   = "11988887777"
)

func ledgerAmount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeDirectory struct {
	users      map[string]ledger.User
	categories map[string][]ledger.Category
	cards      map[string][]ledger.Card
	contacts   map[string][]ledger.User
	err        error
}

func (d *fakeDirectory) FindUserByPhone(_ context.Context, key string) (ledger.User, error) {
	if d.err != nil {
		return ledger.User{}, d.err
	}
	u, ok := d.users[key]
	if !ok {
		return ledger.User{}, ledger.ErrNotFound
	}
	return u, nil
}

func (d *fakeDirectory) ListCategories(_ context.Context, userID string) ([]ledger.Category, error) {
	return d.categories[userID], nil
}

func (d *fakeDirectory) ListCards(_ context.Context, userID string) ([]ledger.Card, error) {
	return d.cards[userID], nil
}

func (d *fakeDirectory) LookupUsers(_ context.Context, requesterID string) ([]ledger.User, error) {
	return d.contacts[requesterID], nil
}

type fakeWriter struct {
	mu      sync.Mutex
	err     error
	batches [][]ledger.Transaction
}

func (w *fakeWriter) CreateTransactions(_ context.Context, txs []ledger.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, txs)
	return nil
}

type sentMessage struct {
	to, body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *fakeSender) SendText(_ context.Context, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{to: to, body: body})
	return s.err
}

func (s *fakeSender) bodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.body)
	}
	return out
}

type fakeLimits struct {
	deny    map[plan.Feature]error
	checked []plan.Feature
}

func (l *fakeLimits) Check(_ context.Context, _ ledger.User, feature plan.Feature) error {
	l.checked = append(l.checked, feature)
	return l.deny[feature]
}

type fakeUsage struct{ recent int }

func (f fakeUsage) CountRecentTransactions(context.Context, string, string, time.Time) (int, error) {
	return f.recent, nil
}

func (f fakeUsage) CountRecentSharedTransactions(context.Context, string, time.Time) (int, error) {
	return 0, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	pipeline  *Pipeline
	sessions  *session.Store
	directory *fakeDirectory
	writer    *fakeWriter
	sender    *fakeSender
	clock     *clock
	seq       int
}

type fixtureOption func(*Deps)

func withLimits(l LimitChecker) fixtureOption {
	return func(d *Deps) { d.Limits = l }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	clk := &clock{now: time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)}
	sessions := session.NewStore(session.Config{Now: clk.Now})

	ana := ledger.User{ID: "u-ana", Phone: anaKey, Username: "ana", Name: "Ana Souza", Plan: ledger.PlanFree}
	bruno := ledger.User{ID: "u-bruno", Phone: "11977776666", Username: "bruno", Name: "Bruno Lima", Plan: ledger.PlanPro}

	dir := &fakeDirectory{
		users: map[string]ledger.User{anaKey: ana},
		categories: map[string][]ledger.Category{
			ana.ID: {
				{ID: "c-food", UserID: ana.ID, Name: "Food", Kind: ledger.Expense},
				{ID: "c-transport", UserID: ana.ID, Name: "Transport", Kind: ledger.Expense},
				{ID: "c-salary", UserID: ana.ID, Name: "Salary", Kind: ledger.Income},
			},
		},
		cards: map[string][]ledger.Card{
			ana.ID: {{ID: "card-nu", UserID: ana.ID, Name: "Nubank", Brand: "Mastercard"}},
		},
		contacts: map[string][]ledger.User{ana.ID: {ana, bruno}},
	}

	writer := &fakeWriter{}
	sender := &fakeSender{}
	deps := Deps{
		Sessions:     sessions,
		Directory:    dir,
		Classifier:   intent.NewService(nil, intent.Config{}),
		Extractor:    extraction.NewService(nil, extraction.Config{}),
		Materializer: ledgersvc.NewMaterializer(writer),
		Sender:       sender,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	p, err := NewPipeline(deps, Config{})
	require.NoError(t, err)

	return &fixture{pipeline: p, sessions: sessions, directory: dir, writer: writer, sender: sender, clock: clk}
}

func (f *fixture) send(t *testing.T, text string) Result {
	t.Helper()
	f.seq++
	res, err := f.pipeline.Handle(context.Background(), Input{
		From:      anaPhone,
		MessageID: "wamid." + strings.Repeat("x", f.seq),
		Text:      text,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) pending(t *testing.T) *model.PendingTransaction {
	t.Helper()
	p, _ := f.sessions.GetPending(context.Background(), anaKey)
	return p
}

func TestCreateThenConfirm(t *testing.T) {
	f := newFixture(t)

	res := f.send(t, "I spent 50 on lunch")
	assert.Equal(t, model.IntentCreate, res.Intent.Kind)
	require.Equal(t, OutcomePendingCreated, res.Outcome)
	require.NotNil(t, res.Pending)
	assert.Equal(t, anaKey, res.Key)
	assert.Equal(t, "Lunch", res.Pending.Extracted.Description)
	assert.Equal(t, "c-food", res.Pending.Category.ID)
	assert.Nil(t, res.Pending.Card)
	require.Len(t, res.Replies, 1)
	assert.Contains(t, res.Replies[0], "R$ 50.00")
	assert.Contains(t, res.Replies[0], "Food")
	require.NotNil(t, f.pending(t))

	res = f.send(t, "yes")
	assert.Equal(t, model.IntentConfirm, res.Intent.Kind)
	require.Equal(t, OutcomeConfirmed, res.Outcome)
	require.Len(t, res.Records, 1)
	assert.True(t, res.Records[0].Amount.Equal(ledgerAmount("50")))
	assert.Equal(t, "u-ana", res.Records[0].UserID)
	assert.Equal(t, ledger.SourceWhatsApp, res.Records[0].Source)
	require.Len(t, f.writer.batches, 1)
	assert.Nil(t, f.pending(t))

	bodies := f.sender.bodies()
	require.Len(t, bodies, 2)
	assert.Contains(t, bodies[1], "Transaction saved: Lunch for R$ 50.00")
	for _, m := range f.sender.sent {
		assert.Equal(t, anaPhone, m.to)
	}
}

func TestCancelDropsPending(t *testing.T) {
	f := newFixture(t)

	f.send(t, "I spent 50 on lunch")
	res := f.send(t, "cancel")

	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.Nil(t, f.pending(t))
	assert.Empty(t, f.writer.batches)
}

func TestFreshAmountReplacesPending(t *testing.T) {
	f := newFixture(t)

	f.send(t, "I spent 50 on lunch")
	res := f.send(t, "I spent 80 on uber")

	assert.Equal(t, model.IntentCreate, res.Intent.Kind)
	require.Equal(t, OutcomePendingCreated, res.Outcome)
	require.Len(t, res.Replies, 2)
	assert.Contains(t, res.Replies[0], "replaced")

	p := f.pending(t)
	require.NotNil(t, p)
	assert.True(t, p.Extracted.Amount.Equal(ledgerAmount("80")))
	assert.Equal(t, "c-transport", p.Category.ID)
}

func TestPersistenceFailureKeepsPending(t *testing.T) {
	f := newFixture(t)
	f.writer.err = errors.New("disk full")

	f.send(t, "I spent 50 on lunch")
	res := f.send(t, "yes")

	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, model.ErrPersistence, model.KindOf(res.Err))
	require.Len(t, res.Replies, 1)
	assert.Contains(t, res.Replies[0], "still pending")
	require.NotNil(t, f.pending(t))

	f.writer.err = nil
	res = f.send(t, "yes")
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
	assert.Nil(t, f.pending(t))
}

func TestExpiredPendingIsReportedOnce(t *testing.T) {
	f := newFixture(t)

	f.send(t, "I spent 50 on lunch")
	f.clock.Advance(6 * time.Minute)

	res := f.send(t, "yes")
	assert.Equal(t, OutcomeExpired, res.Outcome)
	assert.Equal(t, model.ErrPendingExpired, model.KindOf(res.Err))
	require.Len(t, res.Replies, 1)
	assert.Contains(t, res.Replies[0], "expired")
	assert.Empty(t, f.writer.batches)

	res = f.send(t, "yes")
	assert.NotEqual(t, OutcomeExpired, res.Outcome)
	assert.Empty(t, f.writer.batches)
}

func TestExpiredPendingStillHandlesNewTransaction(t *testing.T) {
	f := newFixture(t)

	f.send(t, "I spent 50 on lunch")
	f.clock.Advance(6 * time.Minute)

	res := f.send(t, "I spent 80 on uber")
	require.Equal(t, OutcomePendingCreated, res.Outcome)
	require.Len(t, res.Replies, 2)
	assert.Contains(t, res.Replies[0], "expired")
}

func TestUnlinkedPhone(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Handle(context.Background(), Input{From: "5521911112222", MessageID: "m1", Text: "I spent 50 on lunch"})
	require.NoError(t, err)

	assert.Equal(t, OutcomeNotLinked, res.Outcome)
	assert.Equal(t, model.ErrUserNotLinked, model.KindOf(res.Err))
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "5521911112222", f.sender.sent[0].to)
	assert.Contains(t, f.sender.sent[0].body, "not linked")
	assert.Equal(t, 0, f.sessions.Len())
}

func TestDirectoryFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.directory.err = errors.New("connection refused")

	res := f.send(t, "I spent 50 on lunch")
	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.Len(t, res.Replies, 1)
	assert.Contains(t, res.Replies[0], "Something went wrong")
}

func TestDuplicateDeliveryIsIgnored(t *testing.T) {
	f := newFixture(t)
	in := Input{From: anaPhone, MessageID: "wamid.dup", Text: "I spent 50 on lunch"}

	first, err := f.pipeline.Handle(context.Background(), in)
	require.NoError(t, err)
	second, err := f.pipeline.Handle(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, OutcomePendingCreated, first.Outcome)
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Len(t, f.sender.sent, 1)
}

func TestEmptySenderIsRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.pipeline.Handle(context.Background(), Input{From: "", Text: "oi"})
	assert.ErrorIs(t, err, ErrSenderRequired)
}

func TestWhatsAppQuotaBlocksExtraction(t *testing.T) {
	checker := plan.NewChecker(fakeUsage{recent: 30}, plan.Limits{FreeMonthlyWhatsApp: 30})
	f := newFixture(t, withLimits(checker))

	res := f.send(t, "I spent 50 on lunch")

	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.ErrorIs(t, res.Err, model.NewError(model.ErrLimitReached, model.ReasonWhatsAppFree, nil))
	assert.Contains(t, res.Replies[0], "monthly WhatsApp limit")
	assert.Nil(t, f.pending(t))
}

func TestSharedCapCheckedOnlyForSharedCandidates(t *testing.T) {
	limits := &fakeLimits{deny: map[plan.Feature]error{
		plan.FeatureShared: model.NewError(model.ErrLimitReached, model.ReasonSharedTierCap, nil),
	}}
	f := newFixture(t, withLimits(limits))

	res := f.send(t, "I spent 50 on lunch")
	assert.Equal(t, OutcomePendingCreated, res.Outcome)
	assert.Equal(t, []plan.Feature{plan.FeatureWhatsApp}, limits.checked)

	res = f.send(t, "I spent 100 on dinner shared with @bruno, my part is 60%")
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, model.ReasonSharedTierCap, model.ReasonOf(res.Err))
	assert.Contains(t, res.Replies[0], "shared transactions limit")
}

func TestSharedTransactionIsSplit(t *testing.T) {
	f := newFixture(t)

	res := f.send(t, "I spent 100 on dinner shared with @bruno, my part is 60%")
	require.Equal(t, OutcomePendingCreated, res.Outcome)
	require.NotNil(t, res.Pending.SharedWith)
	assert.Equal(t, "u-bruno", res.Pending.SharedWith.ID)
	assert.Contains(t, res.Replies[0], "Bruno Lima")
	assert.Contains(t, res.Replies[0], "R$ 60.00")
	assert.Contains(t, res.Replies[0], "R$ 40.00")

	res = f.send(t, "yes")
	require.Equal(t, OutcomeConfirmed, res.Outcome)
	require.Len(t, res.Records, 1)
	rec := res.Records[0]
	assert.True(t, rec.Amount.Equal(ledgerAmount("60")))
	require.NotNil(t, rec.Share)
	assert.Equal(t, "u-bruno", rec.Share.UserID)
	assert.True(t, rec.Share.Amount.Equal(ledgerAmount("40")))
}

func TestUnknownShareTargetPersistsNothing(t *testing.T) {
	f := newFixture(t)

	res := f.send(t, "I spent 100 on dinner shared with @zed, my part is 60%")

	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, model.ErrShareTargetNotFound, model.KindOf(res.Err))
	assert.Nil(t, f.pending(t))
	assert.Empty(t, f.writer.batches)
}

func TestCreditPurchaseNeedsAKnownCard(t *testing.T) {
	f := newFixture(t)

	res := f.send(t, "paguei 300 em 3x no cartão de crédito")
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, model.ErrCardNotResolved, model.KindOf(res.Err))
	require.Len(t, res.Replies, 1)
	assert.Contains(t, res.Replies[0], "Nubank")
	assert.Nil(t, f.pending(t))
}

func TestCreditPurchaseWithoutCardsIsRejected(t *testing.T) {
	f := newFixture(t)
	f.directory.cards = nil

	res := f.send(t, "paguei 300 em 3x no cartão de crédito")
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, model.ErrCardNotResolved, model.KindOf(res.Err))
	assert.Equal(t, model.ReasonNoCards, model.ReasonOf(res.Err))
	require.Len(t, res.Replies, 1)
	assert.Contains(t, res.Replies[0], "cartão de crédito cadastrado")
	assert.Nil(t, f.pending(t))

	res = f.send(t, "sim")
	assert.NotEqual(t, OutcomeConfirmed, res.Outcome)
	assert.Empty(t, f.writer.batches)
}

func TestCorrectToCreditWithoutCardsIsRejected(t *testing.T) {
	f := newFixture(t)
	f.directory.cards = nil

	f.send(t, "I spent 50 on lunch")
	res := f.send(t, "change the payment to credit")

	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, model.ErrCardNotResolved, model.KindOf(res.Err))
	assert.Contains(t, res.Replies[0], "credit card registered")
	p := f.pending(t)
	require.NotNil(t, p)
	assert.Equal(t, ledger.PaymentPix, p.Extracted.PaymentMethod)
}

func TestOutOfRangeShareIsExplained(t *testing.T) {
	f := newFixture(t)

	res := f.send(t, "I spent 10 on pizza split with bruno, I pay 15")

	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, model.ErrExtractionFailed, model.KindOf(res.Err))
	assert.Equal(t, model.ReasonInvalidShare, model.ReasonOf(res.Err))
	require.Len(t, res.Replies, 1)
	assert.Contains(t, res.Replies[0], "split doesn't add up")
	assert.Nil(t, f.pending(t))
}

func TestConcurrentConfirmationsPersistOnce(t *testing.T) {
	f := newFixture(t)
	f.send(t, "I spent 50 on lunch")

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 2)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.pipeline.Handle(context.Background(), Input{
				From:      anaPhone,
				MessageID: "wamid.yes-" + string(rune('a'+i)),
				Text:      "yes",
			})
			assert.NoError(t, err)
			outcomes[i] = res.Outcome
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []Outcome{OutcomeConfirmed, OutcomeAnswered}, outcomes)
	assert.Len(t, f.writer.batches, 1)
	assert.Nil(t, f.pending(t))
}

func TestInstallmentsOnNamedCard(t *testing.T) {
	f := newFixture(t)

	res := f.send(t, "paguei 300 em 3x no cartão nubank")
	require.Equal(t, OutcomePendingCreated, res.Outcome)
	require.NotNil(t, res.Pending.Card)
	assert.Equal(t, "card-nu", res.Pending.Card.ID)
	assert.Equal(t, ledger.PaymentCredit, res.Pending.Extracted.PaymentMethod)
	assert.Contains(t, res.Replies[0], "3x R$ 100,00")

	res = f.send(t, "sim")
	require.Equal(t, OutcomeConfirmed, res.Outcome)
	require.Len(t, res.Records, 3)
	for i, rec := range res.Records {
		assert.Equal(t, "card-nu", rec.CardID)
		require.NotNil(t, rec.Installment)
		assert.Equal(t, i+1, rec.Installment.Index)
		assert.True(t, rec.Amount.Equal(ledgerAmount("100")))
	}
	assert.Contains(t, res.Replies[0], "3 parcelas")
}

func TestCorrectAmount(t *testing.T) {
	f := newFixture(t)

	f.send(t, "I spent 50 on lunch")
	f.clock.Advance(4 * time.Minute)
	res := f.send(t, "change the amount to 60")

	assert.Equal(t, model.IntentCorrect, res.Intent.Kind)
	require.Equal(t, OutcomeCorrected, res.Outcome)
	p := f.pending(t)
	require.NotNil(t, p)
	assert.True(t, p.Extracted.Amount.Equal(ledgerAmount("60")))
	assert.Equal(t, f.clock.Now(), p.CreatedAt)
	require.Len(t, res.Replies, 2)
	assert.Contains(t, res.Replies[1], "R$ 60.00")
}

func TestCorrectCategory(t *testing.T) {
	f := newFixture(t)

	f.send(t, "I spent 50 on lunch")
	res := f.send(t, "change the category to Transport")
	require.Equal(t, OutcomeCorrected, res.Outcome)
	assert.Equal(t, "c-transport", f.pending(t).Category.ID)

	res = f.send(t, "change the category to Pets")
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, model.ErrNoMatchingCategory, model.KindOf(res.Err))
	assert.Contains(t, res.Replies[0], "Food, Transport")
	assert.Equal(t, "c-transport", f.pending(t).Category.ID)
}

func TestCorrectPaymentMethod(t *testing.T) {
	f := newFixture(t)

	f.send(t, "I spent 50 on lunch")
	res := f.send(t, "change the payment to cash")
	require.Equal(t, OutcomeCorrected, res.Outcome)
	assert.Equal(t, ledger.PaymentCash, f.pending(t).Extracted.PaymentMethod)
	assert.Nil(t, f.pending(t).Card)

	res = f.send(t, "change the payment to the nubank card")
	require.Equal(t, OutcomeCorrected, res.Outcome)
	p := f.pending(t)
	assert.Equal(t, ledger.PaymentCredit, p.Extracted.PaymentMethod)
	require.NotNil(t, p.Card)
	assert.Equal(t, "card-nu", p.Card.ID)
}

func TestCorrectDescription(t *testing.T) {
	f := newFixture(t)

	f.send(t, "I spent 50 on lunch")
	res := f.send(t, "change the description to team lunch")
	require.Equal(t, OutcomeCorrected, res.Outcome)
	assert.Equal(t, "Team lunch", f.pending(t).Extracted.Description)
}

func TestUnclearReplyWithPendingAsksAgain(t *testing.T) {
	f := newFixture(t)

	f.send(t, "I spent 50 on lunch")
	res := f.send(t, "hmm maybe")

	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, model.ErrInvalidReply, model.KindOf(res.Err))
	assert.Contains(t, res.Replies[0], "Reply *yes*")
	assert.NotNil(t, f.pending(t))
}

func TestListCategoriesKeepsPending(t *testing.T) {
	f := newFixture(t)

	f.send(t, "I spent 50 on lunch")
	res := f.send(t, "categories")

	assert.Equal(t, model.IntentListCategories, res.Intent.Kind)
	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Contains(t, res.Replies[0], "• Food")
	assert.Contains(t, res.Replies[0], "• Salary")
	assert.NotNil(t, f.pending(t))
}

func TestHelpInPortuguese(t *testing.T) {
	f := newFixture(t)

	res := f.send(t, "ajuda")
	assert.Equal(t, model.IntentHelp, res.Intent.Kind)
	assert.Equal(t, OutcomeAnswered, res.Outcome)
	assert.Contains(t, res.Replies[0], "Eu registro suas finanças")
}

func TestRepliesAreRecordedInHistory(t *testing.T) {
	f := newFixture(t)

	f.send(t, "I spent 50 on lunch")
	sess, err := f.sessions.Get(context.Background(), anaKey)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "I spent 50 on lunch", sess.Messages[0].Content)
	assert.Contains(t, sess.Messages[1].Content, "Confirm this transaction?")
}

func TestMoneyFormatting(t *testing.T) {
	pt := messagesFor(model.LocalePTBR)
	en := messagesFor(model.LocaleENUS)

	assert.Equal(t, "R$ 1.234,56", pt.money(ledgerAmount("1234.56")))
	assert.Equal(t, "R$ 1,234,567.00", en.money(ledgerAmount("1234567")))
	assert.Equal(t, "R$ 0,50", pt.money(ledgerAmount("0.5")))
	assert.Equal(t, "R$ 999.00", en.money(ledgerAmount("999")))
}

func TestNewPipelineRequiresDependencies(t *testing.T) {
	_, err := NewPipeline(Deps{}, Config{})
	assert.ErrorIs(t, err, errMissingDep)
}
