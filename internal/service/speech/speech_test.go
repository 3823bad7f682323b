package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/finchat/backend/internal/config"
)

func TestProtocolEncoding(t *testing.T) {
	payload := []byte("test payload data")
	encoded, err := EncodeMessage(CreateFullClientRequest(payload, GzipCompression))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeMessage(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Header.MessageType != FullClientRequest || decoded.Header.SerializationMethod != JSONSerialization {
		t.Fatalf("unexpected header %+v", decoded.Header)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("payload mismatch: %q", decoded.Payload)
	}
}

func TestLastAudioPacketCarriesNegativeSequence(t *testing.T) {
	encoded, err := EncodeMessage(CreateAudioOnlyRequest([]byte{1, 2, 3}, 4, true, NoCompression))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeMessage(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.IsLastPacket() || decoded.Sequence != -4 {
		t.Fatalf("expected last packet with sequence -4, got %d (last=%v)", decoded.Sequence, decoded.IsLastPacket())
	}
}

func TestErrorFrameCarriesCode(t *testing.T) {
	msg := &Message{Header: NewHeader(ErrorMessage, NoSequenceNumber, JSONSerialization, NoCompression), ErrorCode: 45000001, Payload: []byte("bad")}
	encoded, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeMessage(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ErrorCode != 45000001 || string(decoded.Payload) != "bad" {
		t.Fatalf("unexpected error frame %+v", decoded)
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("gastei cinquenta no almoço ", 10))
	compressed, err := CompressPayload(data, GzipCompression)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	out, err := DecompressPayload(compressed, GzipCompression)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("decompressed data doesn't match original")
	}
}

func TestAudioFormat(t *testing.T) {
	cases := []struct {
		mime, format, codec string
	}{
		{"audio/ogg; codecs=opus", "ogg", "opus"},
		{"audio/mpeg", "mp3", "raw"},
		{"audio/wav", "wav", "raw"},
		{"", "ogg", "opus"},
	}
	for _, tc := range cases {
		format, codec := audioFormat(tc.mime)
		if format != tc.format || codec != tc.codec {
			t.Fatalf("%q: expected %s/%s, got %s/%s", tc.mime, tc.format, tc.codec, format, codec)
		}
	}
}

func TestResolveCredentials(t *testing.T) {
	if _, _, err := resolveCredentials(config.SpeechConfig{AppID: "app"}); err == nil {
		t.Fatalf("expected error without token")
	}

	appID, token, err := resolveCredentials(config.SpeechConfig{AppID: " app ", APIKey: "key"})
	if err != nil || appID != "app" || token != "key" {
		t.Fatalf("unexpected credentials %q/%q (%v)", appID, token, err)
	}
}

func TestNewDisabledReturnsNil(t *testing.T) {
	tr, err := New(context.Background(), config.SpeechConfig{})
	if err != nil || tr != nil {
		t.Fatalf("expected nil transcriber, got %v (%v)", tr, err)
	}
}

// fakeASR accepts one session and answers with transcript once the last
// audio packet arrives.
type asrCapture struct {
	req   asrRequest
	audio []byte
}

func fakeASR(t *testing.T, transcript string, fail bool) (*httptest.Server, <-chan asrCapture) {
	t.Helper()
	captured := make(chan asrCapture, 1)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-App-Key") != "app" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var (
			gotReq   asrRequest
			gotAudio bytes.Buffer
		)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msg, err := DecodeMessage(bytes.NewReader(data))
			if err != nil {
				return
			}
			payload, _ := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)

			if msg.Header.MessageType == FullClientRequest {
				_ = json.Unmarshal(payload, &gotReq)
				continue
			}
			gotAudio.Write(payload)
			if !msg.IsLastPacket() {
				continue
			}

			var reply *Message
			if fail {
				reply = &Message{Header: NewHeader(ErrorMessage, NoSequenceNumber, JSONSerialization, NoCompression), ErrorCode: 45000000, Payload: []byte("quota exceeded")}
			} else {
				body, _ := json.Marshal(map[string]any{"code": asrSuccessCode, "result": map[string]any{"text": transcript}})
				compressed, _ := CompressPayload(body, GzipCompression)
				reply = &Message{Header: NewHeader(FullServerResponse, NegativeSequenceNumber, JSONSerialization, GzipCompression), Sequence: -1, Payload: compressed}
			}
			captured <- asrCapture{req: gotReq, audio: gotAudio.Bytes()}
			frame, _ := EncodeMessage(reply)
			_ = conn.WriteMessage(websocket.BinaryMessage, frame)
			return
		}
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func newTestTranscriber(t *testing.T, srv *httptest.Server) *VolcengineTranscriber {
	t.Helper()
	tr, err := NewVolcengineTranscriber(config.SpeechConfig{
		AppID:       "app",
		AccessToken: "token",
		BaseURL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		ASRLanguage: "pt-BR",
	})
	if err != nil {
		t.Fatalf("new transcriber: %v", err)
	}
	return tr
}

func TestVolcengineTranscribe(t *testing.T) {
	srv, captured := fakeASR(t, "gastei 50 no almoço", false)
	audio := bytes.Repeat([]byte{0x4f}, asrChunkSize+100)

	text, err := newTestTranscriber(t, srv).Transcribe(context.Background(), audio, "audio/ogg; codecs=opus")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "gastei 50 no almoço" {
		t.Fatalf("unexpected transcript %q", text)
	}
	got := <-captured
	if got.req.Audio.Format != "ogg" || got.req.Audio.Codec != "opus" || got.req.Audio.Language != "pt-BR" {
		t.Fatalf("unexpected audio params %+v", got.req.Audio)
	}
	if !bytes.Equal(got.audio, audio) {
		t.Fatalf("server received %d bytes, want %d", len(got.audio), len(audio))
	}
}

func TestVolcengineTranscribeServerError(t *testing.T) {
	srv, _ := fakeASR(t, "", true)

	_, err := newTestTranscriber(t, srv).Transcribe(context.Background(), []byte{1, 2, 3}, "audio/ogg")
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected server error, got %v", err)
	}
}

func TestVolcengineEmptyTranscript(t *testing.T) {
	srv, _ := fakeASR(t, "  ", false)

	_, err := newTestTranscriber(t, srv).Transcribe(context.Background(), []byte{1, 2, 3}, "audio/ogg")
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
}
