package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PayloadKind discriminates the single active case of a message payload.
type PayloadKind string

const (
	PayloadText  PayloadKind = "text"
	PayloadImage PayloadKind = "image"
	PayloadFiles PayloadKind = "files"
)

// Attachment is one entry of a file-list payload. Data is opaque to the
// relay (base64 data URL produced by the client).
type Attachment struct {
	Type string `json:"type"`
	Data string `json:"data"`
	Name string `json:"name"`
}

// Payload is a tagged union with exactly one active case: text, a single
// image, or an ordered list of attachments.
type Payload struct {
	Kind  PayloadKind
	Text  string
	Image string
	Files []Attachment
}

func TextPayload(text string) Payload {
	return Payload{Kind: PayloadText, Text: text}
}

func ImagePayload(image string) Payload {
	return Payload{Kind: PayloadImage, Image: image}
}

func FilesPayload(files []Attachment) Payload {
	return Payload{Kind: PayloadFiles, Files: files}
}

// Validate checks that exactly one case is active and matches the kind.
func (p Payload) Validate() error {
	switch p.Kind {
	case PayloadText:
		if p.Text == "" || p.Image != "" || len(p.Files) > 0 {
			return fmt.Errorf("text payload must carry text only")
		}
	case PayloadImage:
		if p.Image == "" || p.Text != "" || len(p.Files) > 0 {
			return fmt.Errorf("image payload must carry an image only")
		}
	case PayloadFiles:
		if len(p.Files) == 0 || p.Text != "" || p.Image != "" {
			return fmt.Errorf("file payload must carry attachments only")
		}
	default:
		return fmt.Errorf("unknown payload kind %q", p.Kind)
	}
	return nil
}

// payloadJSON is the wire and storage form of Payload. Only the field of
// the active case is present.
type payloadJSON struct {
	Text  string       `json:"message,omitempty"`
	Image string       `json:"image,omitempty"`
	Files []Attachment `json:"files,omitempty"`
}

func (p Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(payloadJSON{Text: p.Text, Image: p.Image, Files: p.Files})
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw payloadJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := PayloadFromFields(raw.Text, raw.Image, raw.Files)
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}

// PayloadFromFields reconstructs the union from loose optional fields as
// they arrive on the wire, rejecting zero or multiple active cases.
func PayloadFromFields(text, image string, files []Attachment) (Payload, error) {
	set := 0
	var p Payload
	if text != "" {
		set++
		p = TextPayload(text)
	}
	if image != "" {
		set++
		p = ImagePayload(image)
	}
	if len(files) > 0 {
		set++
		p = FilesPayload(files)
	}
	if set != 1 {
		return Payload{}, fmt.Errorf("message must carry exactly one of text, image, or files (got %d)", set)
	}
	return p, nil
}

// Message is immutable once created. The identifier is assigned by the
// relay, never by a client.
type Message struct {
	ID        string
	From      string
	To        string
	CreatedAt time.Time
	Payload   Payload
}

// messageJSON matches the original wire shape: payload fields are flattened
// next to the envelope fields.
type messageJSON struct {
	MessageID string       `json:"messageId"`
	From      string       `json:"from"`
	To        string       `json:"to,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Text      string       `json:"message,omitempty"`
	Image     string       `json:"image,omitempty"`
	Files     []Attachment `json:"files,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	return json.Marshal(messageJSON{
		MessageID: m.ID,
		From:      m.From,
		To:        m.To,
		Timestamp: m.CreatedAt,
		Text:      m.Payload.Text,
		Image:     m.Payload.Image,
		Files:     m.Payload.Files,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var raw messageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	payload, err := PayloadFromFields(raw.Text, raw.Image, raw.Files)
	if err != nil {
		return err
	}
	*m = Message{
		ID:        raw.MessageID,
		From:      raw.From,
		To:        raw.To,
		CreatedAt: raw.Timestamp,
		Payload:   payload,
	}
	return nil
}
