package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/finchat/backend/internal/model/chat"
	"github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore() (*Store, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.HistoryLimit = 3
	cfg.ProcessedLimit = 2
	cfg.Now = clock.Now
	return NewStore(cfg), clock
}

func samplePending(createdAt time.Time) *intake.PendingTransaction {
	return &intake.PendingTransaction{
		Extracted: intake.ExtractedTransaction{
			Kind:          ledger.Expense,
			Amount:        decimal.NewFromInt(50),
			Description:   "Lunch",
			PaymentMethod: ledger.PaymentPix,
		},
		Category:  ledger.Category{ID: "c1", Name: "Food", Kind: ledger.Expense},
		CreatedAt: createdAt,
	}
}

func TestGetOrCreateIsLazy(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "11987654321")
	require.ErrorIs(t, err, ErrSessionNotFound)

	sess, err := store.GetOrCreate(ctx, "11987654321", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.UserID)

	got, err := store.Get(ctx, "11987654321")
	require.NoError(t, err)
	assert.Equal(t, "11987654321", got.Key)
}

func TestSessionEvictedAfterInactivity(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, "k", "u1")
	require.NoError(t, err)

	clock.Advance(31 * time.Minute)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAppendMessageDropsOldest(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	_, _ = store.GetOrCreate(ctx, "k", "u1")

	for _, text := range []string{"one", "two", "three", "four"} {
		require.NoError(t, store.AppendMessage(ctx, "k", chat.RoleUser, text))
	}

	sess, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Len(t, sess.Messages, 3)
	assert.Equal(t, "two", sess.Messages[0].Content)
	assert.Equal(t, "four", sess.Messages[2].Content)
}

func TestPendingExpiresLazily(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()
	_, _ = store.GetOrCreate(ctx, "k", "u1")

	require.NoError(t, store.SetPending(ctx, "k", samplePending(clock.Now())))
	_, ok := store.GetPending(ctx, "k")
	require.True(t, ok)

	clock.Advance(5*time.Minute + time.Second)

	p, ok := store.GetPending(ctx, "k")
	assert.False(t, ok)
	assert.Nil(t, p)

	_, state := store.PendingStatus(ctx, "k")
	assert.Equal(t, PendingNone, state)
}

func TestPendingStatusReportsExpiryOnce(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()
	_, _ = store.GetOrCreate(ctx, "k", "u1")
	require.NoError(t, store.SetPending(ctx, "k", samplePending(clock.Now())))

	clock.Advance(6 * time.Minute)
	_, state := store.PendingStatus(ctx, "k")
	assert.Equal(t, PendingExpired, state)

	_, state = store.PendingStatus(ctx, "k")
	assert.Equal(t, PendingNone, state)
}

func TestSetPendingReplacesAndCopies(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()
	_, _ = store.GetOrCreate(ctx, "k", "u1")

	first := samplePending(clock.Now())
	require.NoError(t, store.SetPending(ctx, "k", first))

	second := samplePending(clock.Now())
	second.Extracted.Amount = decimal.NewFromInt(80)
	require.NoError(t, store.SetPending(ctx, "k", second))

	second.Extracted.Amount = decimal.NewFromInt(1)

	got, ok := store.GetPending(ctx, "k")
	require.True(t, ok)
	assert.True(t, got.Extracted.Amount.Equal(decimal.NewFromInt(80)))

	require.NoError(t, store.ClearPending(ctx, "k"))
	_, ok = store.GetPending(ctx, "k")
	assert.False(t, ok)
}

func TestMarkProcessed(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	_, _ = store.GetOrCreate(ctx, "k", "u1")

	assert.True(t, store.MarkProcessed(ctx, "k", "wamid.1"))
	assert.False(t, store.MarkProcessed(ctx, "k", "wamid.1"))
	assert.True(t, store.MarkProcessed(ctx, "k", "wamid.2"))
	assert.True(t, store.MarkProcessed(ctx, "k", "wamid.3"))
	// the limit is two, so the first ID has been forgotten
	assert.True(t, store.MarkProcessed(ctx, "k", "wamid.1"))
}

func TestLockSerializesSameKey(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	unlock, err := store.Lock(ctx, "k")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release, err := store.Lock(ctx, "k")
		if err == nil {
			close(acquired)
			release()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while the first was held")
	case <-time.After(50 * time.Millisecond):
	}

	other, err := store.Lock(ctx, "other")
	require.NoError(t, err)
	other()

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Lock never acquired")
	}
}

func TestLockHonorsContext(t *testing.T) {
	store, _ := newTestStore()
	unlock, err := store.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = store.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConcurrentSetPendingKeepsOne(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()
	_, _ = store.GetOrCreate(ctx, "k", "u1")

	var wg sync.WaitGroup
	created := 0
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := store.Lock(ctx, "k")
			if err != nil {
				return
			}
			defer unlock()
			if _, ok := store.GetPending(ctx, "k"); ok {
				return
			}
			_ = store.SetPending(ctx, "k", samplePending(clock.Now()))
			mu.Lock()
			created++
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	store, clock := newTestStore()
	ctx := context.Background()
	_, _ = store.GetOrCreate(ctx, "a", "u1")
	clock.Advance(20 * time.Minute)
	_, _ = store.GetOrCreate(ctx, "b", "u2")
	clock.Advance(15 * time.Minute)

	assert.Equal(t, 1, store.Sweep(ctx))
	assert.Equal(t, 1, store.Len())
}
