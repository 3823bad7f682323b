// Package session keeps the per-phone conversational state in memory.
//
// The store is the only owner of chat.Session values: every read returns a
// copy, and every read-modify-write sequence that spans several calls must be
// wrapped in Lock for the same key.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zhouzirui/finchat/backend/internal/model/chat"
	"github.com/zhouzirui/finchat/backend/internal/model/intake"
)

var (
	ErrKeyRequired     = errors.New("session key is required")
	ErrSessionNotFound = errors.New("session not found")
)

// PendingState is the lifecycle state of a session's pending transaction.
type PendingState int

const (
	PendingNone PendingState = iota
	PendingActive
	PendingExpired
)

// Config tunes the TTL semantics of the store.
type Config struct {
	SessionTTL     time.Duration
	PendingTTL     time.Duration
	HistoryLimit   int
	ProcessedLimit int
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultConfig mirrors the production timeouts.
func DefaultConfig() Config {
	return Config{
		SessionTTL:     30 * time.Minute,
		PendingTTL:     5 * time.Minute,
		HistoryLimit:   20,
		ProcessedLimit: 32,
	}
}

// Store is an in-memory session store with lazy expiry.
type Store struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*chat.Session

	locksMu sync.Mutex
	locks   map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewStore builds an empty store.
func NewStore(cfg Config) *Store {
	def := DefaultConfig()
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = def.PendingTTL
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.ProcessedLimit <= 0 {
		cfg.ProcessedLimit = def.ProcessedLimit
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		cfg:      cfg,
		sessions: make(map[string]*chat.Session),
		locks:    make(map[string]*keyLock),
	}
}

// PendingTTL exposes the configured pending lifetime.
func (s *Store) PendingTTL() time.Duration { return s.cfg.PendingTTL }

// Lock serializes work on one key. The returned func releases the lock and
// must be called exactly once.
func (s *Store) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	s.locksMu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		s.locks[key] = l
	}
	l.refs++
	s.locksMu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		s.release(key, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			s.release(key, l)
		})
	}, nil
}

func (s *Store) release(key string, l *keyLock) {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, key)
	}
}

// Get returns a copy of the session, evicting it first when idle too long.
func (s *Store) Get(_ context.Context, key string) (*chat.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.liveLocked(key)
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := sess.Clone()
	if out.Pending != nil && out.Pending.Expired(s.cfg.Now(), s.cfg.PendingTTL) {
		out.Pending = nil
	}
	return out, nil
}

// GetOrCreate returns the live session for key, creating it on first contact,
// and records the interaction.
func (s *Store) GetOrCreate(_ context.Context, key, userID string) (*chat.Session, error) {
	if key == "" {
		return nil, ErrKeyRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	sess, ok := s.liveLocked(key)
	if !ok {
		sess = &chat.Session{
			Key:       key,
			UserID:    userID,
			Messages:  make([]chat.Message, 0, 8),
			CreatedAt: now,
		}
		s.sessions[key] = sess
	}
	if userID != "" {
		sess.UserID = userID
	}
	sess.LastInteractionAt = now
	return sess.Clone(), nil
}

// AppendMessage adds a turn to the bounded log, dropping the oldest entries.
func (s *Store) AppendMessage(_ context.Context, key string, role chat.Role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.liveLocked(key)
	if !ok {
		return ErrSessionNotFound
	}

	now := s.cfg.Now()
	sess.Messages = append(sess.Messages, chat.Message{Role: role, Content: text, CreatedAt: now})
	if over := len(sess.Messages) - s.cfg.HistoryLimit; over > 0 {
		sess.Messages = append([]chat.Message(nil), sess.Messages[over:]...)
	}
	sess.LastInteractionAt = now
	return nil
}

// SetPending stores the candidate, replacing any previous one.
func (s *Store) SetPending(_ context.Context, key string, pending *intake.PendingTransaction) error {
	if pending == nil {
		return errors.New("pending transaction is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.liveLocked(key)
	if !ok {
		return ErrSessionNotFound
	}
	p := pending.Clone()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.cfg.Now()
	}
	sess.Pending = p
	sess.LastInteractionAt = s.cfg.Now()
	return nil
}

// GetPending returns the live pending candidate. An expired candidate is
// cleared and reported as absent.
func (s *Store) GetPending(ctx context.Context, key string) (*intake.PendingTransaction, bool) {
	p, state := s.PendingStatus(ctx, key)
	return p, state == PendingActive
}

// PendingStatus is GetPending that also tells the caller when a candidate has
// just expired, so the expiry can be reported once.
func (s *Store) PendingStatus(_ context.Context, key string) (*intake.PendingTransaction, PendingState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.liveLocked(key)
	if !ok || sess.Pending == nil {
		return nil, PendingNone
	}
	if s.expirePendingLocked(sess) {
		return nil, PendingExpired
	}
	return sess.Pending.Clone(), PendingActive
}

// ClearPending drops the pending candidate, if any.
func (s *Store) ClearPending(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[key]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Pending = nil
	return nil
}

// ClearSession forgets everything about key.
func (s *Store) ClearSession(_ context.Context, key string) {
	s.mu.Lock()
	delete(s.sessions, key)
	s.mu.Unlock()
}

// MarkProcessed remembers an inbound message ID and reports whether it was
// seen for the first time.
func (s *Store) MarkProcessed(_ context.Context, key, messageID string) bool {
	if messageID == "" {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.liveLocked(key)
	if !ok {
		return true
	}
	for _, id := range sess.ProcessedIDs {
		if id == messageID {
			return false
		}
	}
	sess.ProcessedIDs = append(sess.ProcessedIDs, messageID)
	if over := len(sess.ProcessedIDs) - s.cfg.ProcessedLimit; over > 0 {
		sess.ProcessedIDs = append([]string(nil), sess.ProcessedIDs[over:]...)
	}
	return true
}

// Sweep evicts idle sessions. Expiry is already enforced lazily; this only
// reclaims memory. Expired pending candidates are left for PendingStatus so the
// user still gets the expiry notice.
func (s *Store) Sweep(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := s.cfg.Now()
	for key, sess := range s.sessions {
		if now.Sub(sess.LastInteractionAt) > s.cfg.SessionTTL {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Len reports the number of sessions currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) liveLocked(key string) (*chat.Session, bool) {
	sess, ok := s.sessions[key]
	if !ok {
		return nil, false
	}
	if s.cfg.Now().Sub(sess.LastInteractionAt) > s.cfg.SessionTTL {
		delete(s.sessions, key)
		return nil, false
	}
	return sess, true
}

func (s *Store) expirePendingLocked(sess *chat.Session) bool {
	if sess.Pending == nil {
		return false
	}
	if sess.Pending.Expired(s.cfg.Now(), s.cfg.PendingTTL) {
		sess.Pending = nil
		return true
	}
	return false
}
