package chat

import (
	"time"

	"github.com/zhouzirui/finchat/backend/internal/model/intake"
)

// Session is the per-phone conversational state. At most one pending
// transaction exists per session.
type Session struct {
	Key               string                     `json:"key"`
	UserID            string                     `json:"userId"`
	Messages          []Message                  `json:"messages"`
	Pending           *intake.PendingTransaction `json:"pending,omitempty"`
	ProcessedIDs      []string                   `json:"processedIds,omitempty"`
	CreatedAt         time.Time                  `json:"createdAt"`
	LastInteractionAt time.Time                  `json:"lastInteractionAt"`
}

// Clone returns a deep copy so callers never share state with the store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = append([]Message(nil), s.Messages...)
	out.ProcessedIDs = append([]string(nil), s.ProcessedIDs...)
	out.Pending = s.Pending.Clone()
	return &out
}
