package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/finchat/backend/internal/handler/chat"
	"github.com/zhouzirui/finchat/backend/internal/handler/webhook"
	middlewarePkg "github.com/zhouzirui/finchat/backend/internal/middleware"
	"github.com/zhouzirui/finchat/backend/pkg/utils"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewRouter wires HTTP routes to core services. chatHandler may be nil.
func NewRouter(log zerolog.Logger, store Pinger, webhookHandler *webhook.Handler, chatHandler *chat.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.Logger(log))
	r.Use(middlewarePkg.Recovery(log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			log.Error().Err(err).Msg("health check failed")
			utils.RespondError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	webhookHandler.RegisterRoutes(r)
	if chatHandler != nil {
		chatHandler.RegisterRoutes(r)
	}

	return r
}
