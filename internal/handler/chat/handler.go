// Package chat exposes the intake pipeline over plain HTTP so a conversation
// can be driven without WhatsApp.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/zhouzirui/finchat/backend/internal/logger"
	"github.com/zhouzirui/finchat/backend/internal/model/chat"
	model "github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/phone"
	"github.com/zhouzirui/finchat/backend/internal/service/intake"
	"github.com/zhouzirui/finchat/backend/internal/service/session"
	"github.com/zhouzirui/finchat/backend/pkg/utils"
)

// Dispatcher runs one inbound message through the pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg model.InboundMessage) (intake.Result, error)
}

// Sessions is the read side of the conversation store.
type Sessions interface {
	Get(ctx context.Context, key string) (*chat.Session, error)
	ClearSession(ctx context.Context, key string)
}

// Handler serves the sandbox chat routes.
type Handler struct {
	dispatcher Dispatcher
	sessions   Sessions
	timeout    time.Duration
}

// New creates the chat handler.
func New(dispatcher Dispatcher, sessions Sessions, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Handler{dispatcher: dispatcher, sessions: sessions, timeout: timeout}
}

// RegisterRoutes mounts the chat routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Post("/messages", h.handleMessage)
		r.Get("/sessions/{phone}", h.handleGetSession)
		r.Delete("/sessions/{phone}", h.handleClearSession)
	})
}

type messageRequest struct {
	From      string `json:"from"`
	Text      string `json:"text"`
	MessageID string `json:"messageId"`
}

type messageResponse struct {
	Outcome intake.Outcome            `json:"outcome"`
	Intent  model.IntentKind          `json:"intent,omitempty"`
	Replies []string                  `json:"replies"`
	Pending *model.PendingTransaction `json:"pending,omitempty"`
	Records []recordView              `json:"records,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

type recordView struct {
	ID          string `json:"id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var payload messageRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.From) == "" {
		utils.RespondError(w, http.StatusBadRequest, "from is required")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}
	if payload.MessageID == "" {
		payload.MessageID = "chat-" + uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.dispatcher.Dispatch(ctx, model.InboundMessage{
		ID:       payload.MessageID,
		From:     payload.From,
		Modality: model.ModalityText,
		Text:     payload.Text,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, intake.ErrSenderRequired) {
			status = http.StatusBadRequest
		}
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Str("message_id", payload.MessageID).Msg("chat message failed")
		utils.RespondError(w, status, err.Error())
		return
	}

	resp := messageResponse{
		Outcome: res.Outcome,
		Intent:  res.Intent.Kind,
		Replies: res.Replies,
		Pending: res.Pending,
	}
	if resp.Replies == nil {
		resp.Replies = []string{}
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	for _, rec := range res.Records {
		resp.Records = append(resp.Records, recordView{
			ID:          rec.ID,
			Amount:      rec.Amount.StringFixed(2),
			Description: rec.Description,
			Date:        rec.Date.Format("2006-01-02"),
		})
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}

	sess, err := h.sessions.Get(r.Context(), key)
	if errors.Is(err, session.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, sess)
}

func (h *Handler) handleClearSession(w http.ResponseWriter, r *http.Request) {
	key, ok := sessionKey(w, r)
	if !ok {
		return
	}
	h.sessions.ClearSession(r.Context(), key)
	w.WriteHeader(http.StatusNoContent)
}

func sessionKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := phone.Canonicalize(chi.URLParam(r, "phone"))
	if key == "" {
		utils.RespondError(w, http.StatusBadRequest, fmt.Sprintf("invalid phone %q", chi.URLParam(r, "phone")))
		return "", false
	}
	return key, true
}
