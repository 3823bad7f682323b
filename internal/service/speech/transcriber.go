// Package speech turns WhatsApp voice notes into text.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/finchat/backend/internal/config"
)

// ErrEmptyTranscript is returned when the audio produced no text.
var ErrEmptyTranscript = errors.New("empty transcript")

// Transcriber converts a complete audio clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// New builds the transcriber for the configured provider. It returns nil when
// speech is disabled; voice notes are then answered with a text-only notice.
func New(ctx context.Context, cfg config.SpeechConfig) (Transcriber, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Provider {
	case config.SpeechVolcengine:
		return NewVolcengineTranscriber(cfg)
	case config.SpeechGemini:
		return NewGeminiTranscriber(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported speech provider %q", cfg.Provider)
	}
}

// audioFormat maps a MIME type to the container and codec names the ASR
// service expects. WhatsApp voice notes are ogg/opus.
func audioFormat(mimeType string) (format, codec string) {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}

	switch mt {
	case "audio/mpeg", "audio/mp3":
		return "mp3", "raw"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav", "raw"
	case "audio/pcm", "audio/l16":
		return "pcm", "raw"
	default:
		return "ogg", "opus"
	}
}
