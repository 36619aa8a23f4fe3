package models

import (
	"encoding/json"
	"time"
)

// EventKind names a wire event. Inbound kinds are sent by clients, outbound
// kinds are emitted by the relay.
type EventKind string

// Inbound event kinds
const (
	EventLogin         EventKind = "login"
	EventSendMessage   EventKind = "sendMessage"
	EventDeleteMessage EventKind = "deleteMessage"
	EventMessageSeen   EventKind = "messageSeen"
	EventTyping        EventKind = "typing"
	EventWebRTCOffer   EventKind = "webrtc-offer"
	EventWebRTCAnswer  EventKind = "webrtc-answer"
	EventWebRTCICE     EventKind = "webrtc-ice-candidate"
	EventEndCall       EventKind = "endCall"
)

// Outbound event kinds
const (
	EventLoginSuccess        EventKind = "loginSuccess"
	EventErrorMessage        EventKind = "errorMessage"
	EventPartnerOnlineStatus EventKind = "partnerOnlineStatus"
	EventReceiveMessage      EventKind = "receiveMessage"
	EventMessageSent         EventKind = "messageSent"
)

// IsSignaling reports whether the kind is an opaque call-setup relay event.
func (k EventKind) IsSignaling() bool {
	switch k {
	case EventWebRTCOffer, EventWebRTCAnswer, EventWebRTCICE, EventEndCall:
		return true
	}
	return false
}

// Frame is the envelope of every wire event in either direction.
type Frame struct {
	Event EventKind       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// LoginRequest carries static credentials for one configured identity.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SendMessageRequest carries exactly one payload case; PayloadFromFields
// enforces that during routing.
type SendMessageRequest struct {
	To    string       `json:"to"`
	Text  string       `json:"message,omitempty"`
	Image string       `json:"image,omitempty"`
	Files []Attachment `json:"files,omitempty"`
}

type DeleteMessageRequest struct {
	MessageID string `json:"messageId"`
	To        string `json:"to"`
}

type MessageSeenRequest struct {
	MessageID string `json:"messageId"`
	To        string `json:"to"`
}

type TypingRequest struct {
	To       string `json:"to"`
	IsTyping bool   `json:"isTyping"`
}

// SignalingTarget extracts just the routing target from an otherwise opaque
// signaling payload.
type SignalingTarget struct {
	To string `json:"to"`
}

// MessageSent is the delivery confirmation echoed to the sender, distinct
// from the receiveMessage echo its UI renders.
type MessageSent struct {
	To        string       `json:"to"`
	Text      string       `json:"message,omitempty"`
	Image     string       `json:"image,omitempty"`
	Files     []Attachment `json:"files,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	MessageID string       `json:"messageId"`
	Status    string       `json:"status"`
}

type PartnerOnlineStatus struct {
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

type MessageSeenNotice struct {
	MessageID string `json:"messageId"`
}

type DeleteMessageNotice struct {
	MessageID string `json:"messageId"`
}

type TypingNotice struct {
	From     string `json:"from"`
	IsTyping bool   `json:"isTyping"`
}
