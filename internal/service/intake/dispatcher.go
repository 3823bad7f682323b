package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/zhouzirui/finchat/backend/internal/logger"
	model "github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/service/speech"
)

// Dispatcher routes one inbound WhatsApp message by modality. Voice notes are
// downloaded, transcribed and fed to the pipeline as text.
type Dispatcher struct {
	pipeline      *Pipeline
	media         MediaFetcher
	transcriber   speech.Transcriber
	speechTimeout time.Duration
	locale        model.Locale
}

// NewDispatcher wires a dispatcher. media and transcriber may be nil, in
// which case voice notes get a text-only notice.
func NewDispatcher(p *Pipeline, media MediaFetcher, transcriber speech.Transcriber, speechTimeout time.Duration) *Dispatcher {
	if speechTimeout <= 0 {
		speechTimeout = 30 * time.Second
	}
	return &Dispatcher{
		pipeline:      p,
		media:         media,
		transcriber:   transcriber,
		speechTimeout: speechTimeout,
		locale:        p.cfg.DefaultLocale,
	}
}

// Dispatch handles msg. Notices sent outside the pipeline report
// OutcomeAnswered, OutcomeRejected or OutcomeFailed.
func (d *Dispatcher) Dispatch(ctx context.Context, msg model.InboundMessage) (Result, error) {
	log := logger.FromContext(ctx).With().
		Str("message_id", msg.ID).
		Str("modality", string(msg.Modality)).
		Logger()
	ctx = logger.WithContext(ctx, log)
	msgs := messagesFor(d.locale)

	switch msg.Modality {
	case model.ModalityText:
		return d.pipeline.Handle(ctx, Input{From: msg.From, MessageID: msg.ID, Text: msg.Text})

	case model.ModalityAudio:
		if d.transcriber == nil || d.media == nil {
			d.pipeline.Notify(ctx, msg.From, msgs.audioUnavailable)
			return Result{Outcome: OutcomeAnswered, Replies: []string{msgs.audioUnavailable}}, nil
		}

		if err := d.pipeline.CheckQuota(ctx, msg.From); err != nil {
			reply := msgs.errorText(err, "")
			log.Info().Str("reason", model.ReasonOf(err)).Msg("voice note declined before transcription")
			d.pipeline.Notify(ctx, msg.From, reply)
			return Result{Outcome: OutcomeRejected, Err: err, Replies: []string{reply}}, nil
		}

		transcript, err := d.transcribe(ctx, msg)
		if err != nil {
			log.Error().Err(err).Str("media_id", msg.MediaID).Msg("voice note transcription failed")
			d.pipeline.Notify(ctx, msg.From, msgs.audioFailed)
			return Result{Outcome: OutcomeFailed, Err: err, Replies: []string{msgs.audioFailed}}, nil
		}
		log.Debug().Int("chars", len(transcript)).Msg("voice note transcribed")
		return d.pipeline.Handle(ctx, Input{From: msg.From, MessageID: msg.ID, Text: transcript, Transcribed: true})

	default:
		d.pipeline.Notify(ctx, msg.From, msgs.unsupported)
		return Result{Outcome: OutcomeAnswered, Replies: []string{msgs.unsupported}}, nil
	}
}

func (d *Dispatcher) transcribe(ctx context.Context, msg model.InboundMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.speechTimeout)
	defer cancel()

	audio, mimeType, err := d.media.DownloadMedia(ctx, msg.MediaID)
	if err != nil {
		return "", fmt.Errorf("download media %s: %w", msg.MediaID, err)
	}
	if mimeType == "" {
		mimeType = msg.MimeType
	}

	transcript, err := d.transcriber.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return transcript, nil
}
