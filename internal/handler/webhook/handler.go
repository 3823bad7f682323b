// Package webhook exposes the WhatsApp Cloud API webhook: the verification
// handshake and the message deliveries.
package webhook

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/finchat/backend/internal/logger"
	model "github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/service/intake"
	"github.com/zhouzirui/finchat/backend/internal/service/whatsapp"
	"github.com/zhouzirui/finchat/backend/pkg/utils"
)

const maxBodyBytes = 1 << 20

// Dispatcher processes one inbound message.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg model.InboundMessage) (intake.Result, error)
}

// Config holds the webhook secrets and the per-delivery deadline.
type Config struct {
	VerifyToken string
	// AppSecret enables X-Hub-Signature-256 verification when set.
	AppSecret string
	Timeout   time.Duration
}

// Handler acknowledges deliveries immediately and processes them in the
// background.
type Handler struct {
	dispatcher Dispatcher
	cfg        Config
	wg         sync.WaitGroup
}

// New creates the webhook handler.
func New(dispatcher Dispatcher, cfg Config) *Handler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Handler{dispatcher: dispatcher, cfg: cfg}
}

// RegisterRoutes mounts the webhook endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/webhook", h.handleVerify)
	r.Post("/webhook", h.handleDelivery)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if h.cfg.VerifyToken == "" || q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.cfg.VerifyToken {
		log := logger.FromContext(r.Context())
		log.Warn().Str("mode", q.Get("hub.mode")).Msg("webhook verification rejected")
		utils.RespondError(w, http.StatusForbidden, "verification failed")
		return
	}
	utils.RespondText(w, http.StatusOK, q.Get("hub.challenge"))
}

func (h *Handler) handleDelivery(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if h.cfg.AppSecret != "" && !whatsapp.ValidSignature(h.cfg.AppSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		log.Warn().Msg("webhook signature mismatch")
		utils.RespondError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	messages, err := whatsapp.ParseWebhook(body)
	if err != nil {
		log.Warn().Err(err).Msg("malformed webhook payload")
		utils.RespondError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	if len(messages) > 0 {
		// The request context ends with the response; processing keeps the
		// logger but not the cancellation.
		ctx := logger.WithContext(context.Background(), log)
		h.wg.Add(1)
		go h.process(ctx, messages)
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// process handles the messages of one delivery in order.
func (h *Handler) process(ctx context.Context, messages []model.InboundMessage) {
	defer h.wg.Done()
	log := logger.FromContext(ctx)

	for _, msg := range messages {
		mctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
		res, err := h.dispatcher.Dispatch(mctx, msg)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to dispatch message")
			continue
		}
		log.Debug().
			Str("message_id", msg.ID).
			Str("outcome", string(res.Outcome)).
			Msg("message dispatched")
	}
}

// Wait blocks until in-flight deliveries finish or ctx is done.
func (h *Handler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
