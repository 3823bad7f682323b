package intake

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/finchat/backend/internal/model/intake"
	"github.com/zhouzirui/finchat/backend/internal/service/plan"
)

type fakeMedia struct {
	data     []byte
	mimeType string
	err      error
	asked    string
}

func (m *fakeMedia) DownloadMedia(_ context.Context, mediaID string) ([]byte, string, error) {
	m.asked = mediaID
	return m.data, m.mimeType, m.err
}

type fakeTranscriber struct {
	text     string
	err      error
	mimeType string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ []byte, mimeType string) (string, error) {
	f.mimeType = mimeType
	return f.text, f.err
}

func voiceNote(id string) model.InboundMessage {
	return model.InboundMessage{
		ID:       id,
		From:     anaPhone,
		Modality: model.ModalityAudio,
		MediaID:  "media-1",
		MimeType: "audio/ogg; codecs=opus",
	}
}

func TestDispatchText(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(f.pipeline, nil, nil, 0)

	res, err := d.Dispatch(context.Background(), model.InboundMessage{
		ID: "m1", From: anaPhone, Modality: model.ModalityText, Text: "I spent 50 on lunch",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomePendingCreated, res.Outcome)
}

func TestDispatchVoiceNoteEchoesTranscript(t *testing.T) {
	f := newFixture(t)
	media := &fakeMedia{data: []byte("OggS"), mimeType: ""}
	transcriber := &fakeTranscriber{text: "I spent 50 on lunch"}
	d := NewDispatcher(f.pipeline, media, transcriber, 0)

	res, err := d.Dispatch(context.Background(), voiceNote("m1"))
	require.NoError(t, err)

	assert.Equal(t, "media-1", media.asked)
	assert.Equal(t, "audio/ogg; codecs=opus", transcriber.mimeType)
	require.Equal(t, OutcomePendingCreated, res.Outcome)
	require.Len(t, res.Replies, 2)
	assert.Equal(t, `🎤 "I spent 50 on lunch"`, res.Replies[0])
	assert.Len(t, f.sender.sent, 2)
}

func TestDispatchVoiceNoteWithoutTranscriber(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(f.pipeline, &fakeMedia{}, nil, 0)

	res, err := d.Dispatch(context.Background(), voiceNote("m1"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeAnswered, res.Outcome)
	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0].body, "áudios")
}

func TestDispatchVoiceNoteOverQuotaSkipsTranscription(t *testing.T) {
	limits := &fakeLimits{deny: map[plan.Feature]error{
		plan.FeatureWhatsApp: model.NewError(model.ErrLimitReached, model.ReasonWhatsAppFree, nil),
	}}
	f := newFixture(t, withLimits(limits))
	media := &fakeMedia{data: []byte("OggS")}
	transcriber := &fakeTranscriber{text: "gastei 50 no almoço"}
	d := NewDispatcher(f.pipeline, media, transcriber, 0)

	res, err := d.Dispatch(context.Background(), voiceNote("m1"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, model.ErrLimitReached, model.KindOf(res.Err))
	assert.Empty(t, media.asked)
	assert.Empty(t, transcriber.mimeType)
	bodies := f.sender.bodies()
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0], "limite mensal")
}

func TestDispatchVoiceNoteOverQuotaStillAnswersPending(t *testing.T) {
	limits := &fakeLimits{deny: map[plan.Feature]error{}}
	f := newFixture(t, withLimits(limits))
	f.send(t, "I spent 50 on lunch")
	limits.deny[plan.FeatureWhatsApp] = model.NewError(model.ErrLimitReached, model.ReasonWhatsAppFree, nil)

	media := &fakeMedia{data: []byte("OggS")}
	transcriber := &fakeTranscriber{text: "yes"}
	d := NewDispatcher(f.pipeline, media, transcriber, 0)

	res, err := d.Dispatch(context.Background(), voiceNote("m1"))
	require.NoError(t, err)

	assert.Equal(t, "media-1", media.asked)
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
	assert.Len(t, f.writer.batches, 1)
}

func TestDispatchTranscriptionFailure(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(f.pipeline, &fakeMedia{data: []byte("OggS")}, &fakeTranscriber{err: errors.New("quota exceeded")}, 0)

	res, err := d.Dispatch(context.Background(), voiceNote("m1"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "quota exceeded")
	require.Len(t, f.sender.sent, 1)
	assert.Contains(t, f.sender.sent[0].body, "Não consegui entender o áudio")
	assert.Nil(t, f.pending(t))
}

func TestDispatchDownloadFailure(t *testing.T) {
	f := newFixture(t)
	transcriber := &fakeTranscriber{text: "never used"}
	d := NewDispatcher(f.pipeline, &fakeMedia{err: errors.New("404")}, transcriber, 0)

	res, err := d.Dispatch(context.Background(), voiceNote("m1"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Empty(t, transcriber.mimeType)
}

func TestDispatchUnsupported(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(f.pipeline, nil, nil, 0)

	res, err := d.Dispatch(context.Background(), model.InboundMessage{
		ID: "m1", From: anaPhone, Modality: model.ModalityUnsupported,
	})
	require.NoError(t, err)

	assert.Equal(t, OutcomeAnswered, res.Outcome)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, anaPhone, f.sender.sent[0].to)
	assert.Contains(t, f.sender.sent[0].body, "texto e áudio")
}
