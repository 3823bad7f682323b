package intake

import (
	"context"

	"github.com/zhouzirui/finchat/backend/internal/model/chat"
	model "github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
	"github.com/zhouzirui/finchat/backend/internal/service/plan"
)

// Directory is the read side of the user directory.
type Directory interface {
	// FindUserByPhone returns ledger.ErrNotFound when no user owns phoneKey.
	FindUserByPhone(ctx context.Context, phoneKey string) (ledger.User, error)
	ListCategories(ctx context.Context, userID string) ([]ledger.Category, error)
	ListCards(ctx context.Context, userID string) ([]ledger.Card, error)
	// LookupUsers returns the users requesterID may share transactions with.
	LookupUsers(ctx context.Context, requesterID string) ([]ledger.User, error)
}

// Classifier labels a message with an intent. It never fails: low-confidence
// or unavailable model tiers fall back to heuristics.
type Classifier interface {
	Classify(ctx context.Context, msg string, history []chat.Message, hasPending bool, locale model.Locale) model.Intent
}

// Extractor turns a CREATE message into a validated candidate.
type Extractor interface {
	Extract(ctx context.Context, msg string, categories []ledger.Category, locale model.Locale) (model.ExtractedTransaction, error)
}

// Materializer persists a confirmed candidate.
type Materializer interface {
	Materialize(ctx context.Context, userID string, pending *model.PendingTransaction) ([]ledger.Transaction, error)
}

// LimitChecker enforces plan usage caps.
type LimitChecker interface {
	Check(ctx context.Context, user ledger.User, feature plan.Feature) error
}

// Sender delivers a chat reply.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
}

// MediaFetcher downloads an inbound media attachment.
type MediaFetcher interface {
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error)
}
