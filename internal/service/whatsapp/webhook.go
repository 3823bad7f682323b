package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/finchat/backend/internal/model/intake"
)

// Envelope is the webhook body the Cloud API posts.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []entry `json:"entry"`
}

type entry struct {
	ID      string   `json:"id"`
	Changes []change `json:"changes"`
}

type change struct {
	Field string      `json:"field"`
	Value changeValue `json:"value"`
}

type changeValue struct {
	MessagingProduct string    `json:"messaging_product"`
	Contacts         []contact `json:"contacts"`
	Messages         []message `json:"messages"`
}

type contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type message struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text,omitempty"`
	Audio *media `json:"audio,omitempty"`
	Voice *media `json:"voice,omitempty"`
}

type media struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
}

// ParseWebhook extracts the inbound messages of a delivery. Status updates
// and other non-message changes yield no messages.
func ParseWebhook(body []byte) ([]intake.InboundMessage, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}

	var out []intake.InboundMessage
	for _, e := range env.Entry {
		for _, ch := range e.Changes {
			if ch.Field != "" && ch.Field != "messages" {
				continue
			}
			names := make(map[string]string, len(ch.Value.Contacts))
			for _, c := range ch.Value.Contacts {
				names[c.WaID] = c.Profile.Name
			}
			for _, m := range ch.Value.Messages {
				out = append(out, toInbound(m, names[m.From]))
			}
		}
	}
	return out, nil
}

func toInbound(m message, name string) intake.InboundMessage {
	in := intake.InboundMessage{
		ID:        m.ID,
		From:      m.From,
		Name:      name,
		Modality:  intake.ModalityUnsupported,
		Timestamp: parseUnix(m.Timestamp),
	}

	switch {
	case m.Type == "text" && m.Text != nil:
		in.Modality = intake.ModalityText
		in.Text = m.Text.Body
	case m.Type == "audio" && m.Audio != nil:
		in.Modality = intake.ModalityAudio
		in.MediaID, in.MimeType = m.Audio.ID, m.Audio.MimeType
	case m.Type == "voice" && m.Voice != nil:
		in.Modality = intake.ModalityAudio
		in.MediaID, in.MimeType = m.Voice.ID, m.Voice.MimeType
	}
	return in
}

func parseUnix(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// ValidSignature checks the X-Hub-Signature-256 header ("sha256=<hex>")
// against the HMAC of body keyed with the app secret.
func ValidSignature(appSecret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}
