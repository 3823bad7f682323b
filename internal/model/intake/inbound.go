package intake

import "time"

// Modality is the kind of content an inbound chat message carries.
type Modality string

const (
	ModalityText        Modality = "text"
	ModalityAudio       Modality = "audio"
	ModalityUnsupported Modality = "unsupported"
)

// InboundMessage is one message delivered by the chat transport.
type InboundMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Name      string    `json:"name,omitempty"`
	Modality  Modality  `json:"modality"`
	Text      string    `json:"text,omitempty"`
	MediaID   string    `json:"mediaId,omitempty"`
	MimeType  string    `json:"mimeType,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
