package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/finchat/backend/internal/config"
	"github.com/zhouzirui/finchat/backend/internal/logger"
)

const (
	asrChunkSize     = 6400 // 200ms of 16kHz 16-bit mono PCM
	asrChunkInterval = 200 * time.Millisecond
	asrSuccessCode   = 20000000
)

// VolcengineTranscriber talks to the Volcengine big-model ASR over its binary
// WebSocket protocol.
type VolcengineTranscriber struct {
	cfg    config.SpeechConfig
	dialer *websocket.Dialer
}

// NewVolcengineTranscriber validates the credentials and builds the client.
func NewVolcengineTranscriber(cfg config.SpeechConfig) (*VolcengineTranscriber, error) {
	if _, _, err := resolveCredentials(cfg); err != nil {
		return nil, err
	}
	return &VolcengineTranscriber{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
	}, nil
}

type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrUtterance struct {
	Text     string `json:"text"`
	Definite bool   `json:"definite"`
}

type asrServerMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result"`
}

// Transcribe implements Transcriber.
func (c *VolcengineTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("no audio data to send")
	}

	appID, token, err := resolveCredentials(c.cfg)
	if err != nil {
		return "", err
	}

	connectID := uuid.NewString()
	log := logger.FromContext(ctx).With().Str("asr_connect_id", connectID).Logger()

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", c.resourceID())
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.BaseURL, header)
	if err != nil {
		return "", fmt.Errorf("failed to connect to ASR WebSocket: %w", err)
	}
	defer conn.Close()

	if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
		log.Debug().Str("logid", logid).Msg("asr connected")
	}

	payload, err := json.Marshal(c.buildRequest(connectID, mimeType))
	if err != nil {
		return "", fmt.Errorf("failed to marshal ASR request: %w", err)
	}
	if err := writeFrame(conn, payload, func(p []byte) *Message {
		return CreateFullClientRequest(p, GzipCompression)
	}); err != nil {
		return "", fmt.Errorf("failed to send ASR request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	recvCh := make(chan result, 1)
	go func() {
		text, err := c.receive(ctx, conn)
		recvCh <- result{text: text, err: err}
	}()

	sendErrCh := make(chan error, 1)
	go func() {
		sendErrCh <- c.sendAudio(ctx, conn, audio, mimeType)
	}()

	for {
		select {
		case err := <-sendErrCh:
			if err != nil {
				return "", fmt.Errorf("failed to send audio data: %w", err)
			}
			sendErrCh = nil
		case res := <-recvCh:
			if res.err != nil {
				return "", res.err
			}
			if strings.TrimSpace(res.text) == "" {
				log.Warn().Msg("asr returned an empty transcript")
				return "", ErrEmptyTranscript
			}
			return res.text, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (c *VolcengineTranscriber) resourceID() string {
	if c.cfg.ConcurrentMode {
		return "volc.bigasr.sauc.concurrent"
	}
	return "volc.bigasr.sauc.duration"
}

func (c *VolcengineTranscriber) buildRequest(uid, mimeType string) *asrRequest {
	req := &asrRequest{}
	req.User.UID = uid

	req.Audio.Format, req.Audio.Codec = audioFormat(mimeType)
	req.Audio.Language = c.cfg.ASRLanguage
	req.Audio.Rate = 16000
	req.Audio.Bits = 16
	req.Audio.Channel = 1

	req.Request.ModelName = "bigmodel"
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ShowUtterances = true
	req.Request.ResultType = "full"
	req.Request.EndWindowSize = 800
	return req
}

func writeFrame(conn *websocket.Conn, payload []byte, build func([]byte) *Message) error {
	compressed, err := CompressPayload(payload, GzipCompression)
	if err != nil {
		return err
	}
	frame, err := EncodeMessage(build(compressed))
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, frame)
}

// sendAudio streams the clip in chunks. Raw PCM is paced in real time; encoded
// containers are sent back to back.
func (c *VolcengineTranscriber) sendAudio(ctx context.Context, conn *websocket.Conn, audio []byte, mimeType string) error {
	_, codec := audioFormat(mimeType)
	paced := codec == "raw"

	// sequence 1 is taken by the full client request
	sequence := int32(2)
	for i := 0; i < len(audio); i += asrChunkSize {
		end := min(i+asrChunkSize, len(audio))
		isLast := end >= len(audio)

		seq := sequence
		if err := writeFrame(conn, audio[i:end], func(p []byte) *Message {
			return CreateAudioOnlyRequest(p, seq, isLast, GzipCompression)
		}); err != nil {
			return fmt.Errorf("failed to send audio chunk: %w", err)
		}
		sequence++

		if isLast {
			break
		}
		if !paced {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(asrChunkInterval):
		}
	}
	return nil
}

func (c *VolcengineTranscriber) receive(ctx context.Context, conn *websocket.Conn) (string, error) {
	log := logger.FromContext(ctx)
	var finalText string

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return "", fmt.Errorf("failed to read ASR response: %w", err)
		}

		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("failed to decode ASR message: %w", err)
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			payload, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return "", fmt.Errorf("ASR error message decode failed: %w", err)
			}
			return "", fmt.Errorf("ASR error %d: %s", msg.ErrorCode, string(payload))

		case FullServerResponse:
			payload, err := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if err != nil {
				return "", fmt.Errorf("failed to decompress ASR payload: %w", err)
			}

			var serverResp asrServerMessage
			if err := json.Unmarshal(payload, &serverResp); err != nil {
				log.Warn().Err(err).Msg("asr: skipping undecodable response")
				continue
			}
			if serverResp.Code != 0 && serverResp.Code != asrSuccessCode {
				return "", fmt.Errorf("ASR API error %d: %s", serverResp.Code, serverResp.Message)
			}

			if text := transcriptOf(serverResp); text != "" {
				finalText = text
			}
			if msg.IsLastPacket() || msg.Sequence < 0 {
				return finalText, nil
			}
		}
	}
}

func transcriptOf(resp asrServerMessage) string {
	if text := strings.TrimSpace(resp.Result.Text); text != "" {
		return text
	}
	parts := make([]string, 0, len(resp.Result.Utterances))
	for _, u := range resp.Result.Utterances {
		if t := strings.TrimSpace(u.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
