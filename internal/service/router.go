package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"pairchat/internal/errors"
	"pairchat/internal/metrics"
	"pairchat/internal/models"
	"pairchat/internal/privacy"
	"pairchat/internal/tracing"
	"pairchat/internal/validation"
)

// Router is the central dispatcher: given an event from an authenticated
// identity it resolves the target's live connection or falls back to the
// pending queue. Message identifiers are assigned here, exactly once, and
// never by a client.
type Router struct {
	directory *Directory
	store     MessageStore
	logger    *logrus.Logger

	// injectable for tests
	newID func() string
	now   func() time.Time
}

func NewRouter(directory *Directory, store MessageStore, logger *logrus.Logger) *Router {
	return &Router{
		directory: directory,
		store:     store,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// validateTarget checks that the event names a target and that the target
// is the sender's configured counterpart.
func (r *Router) validateTarget(from, to string) error {
	if to == "" {
		return errors.New(errors.ErrCodeInvalidEvent, "event is missing a target identity").
			WithUserMessage("Invalid message data.")
	}
	counterpart, ok := r.directory.Counterpart(from)
	if !ok {
		return errors.New(errors.ErrCodeInvalidEvent, "unrecognized sender").
			WithContext("from", from).
			WithUserMessage("Invalid message data.")
	}
	if to != counterpart {
		return errors.New(errors.ErrCodeInvalidEvent, "target is not the sender's counterpart").
			WithContext("from", from).
			WithContext("to", to).
			WithUserMessage("Invalid message data.")
	}
	return nil
}

// HandleSend creates an immutable message, persists it to both parties'
// history, and either delivers it live or enqueues it for the offline
// recipient. The sender always receives its own receiveMessage echo plus a
// messageSent confirmation.
func (r *Router) HandleSend(ctx context.Context, from string, req models.SendMessageRequest, sender Conn) error {
	ctx, span := tracing.StartSpan(ctx, "route.sendMessage",
		attribute.String("from", from),
		attribute.String("to", req.To),
	)
	defer span.End()

	if err := r.validateTarget(from, req.To); err != nil {
		return err
	}

	payload, err := models.PayloadFromFields(req.Text, req.Image, req.Files)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidEvent, "invalid message payload").
			WithUserMessage("Invalid message data.")
	}
	if err := validation.ValidatePayload(payload); err != nil {
		return err
	}

	msg := &models.Message{
		ID:        r.newID(),
		From:      from,
		To:        req.To,
		CreatedAt: r.now(),
		Payload:   payload,
	}

	// Persistence failures are logged and swallowed: delivery still proceeds
	// rather than blocking the relay on storage availability.
	if err := r.store.Append(ctx, msg); err != nil {
		tracing.RecordError(ctx, err)
		r.logger.WithFields(logrus.Fields{
			"message_id": privacy.MaskMessageID(msg.ID),
			"from":       from,
		}).WithError(err).Error("Failed to persist message")
	}

	if target := r.directory.Resolve(req.To); target != nil {
		if err := target.Send(models.EventReceiveMessage, msg); err != nil {
			r.logger.WithFields(logrus.Fields{
				"message_id": privacy.MaskMessageID(msg.ID),
				"to":         req.To,
			}).WithError(err).Warn("Live delivery failed, queueing message")
			if qErr := r.store.EnqueuePending(ctx, req.To, msg); qErr != nil {
				r.logger.WithError(qErr).Error("Failed to enqueue message after delivery failure")
			}
		} else {
			metrics.IncrementCounter("messages_delivered", nil, "messages delivered to a live connection")
		}
	} else {
		if err := r.store.EnqueuePending(ctx, req.To, msg); err != nil {
			tracing.RecordError(ctx, err)
			r.logger.WithFields(logrus.Fields{
				"message_id": privacy.MaskMessageID(msg.ID),
				"to":         req.To,
			}).WithError(err).Error("Failed to enqueue message for offline recipient")
		}
		metrics.IncrementCounter("messages_queued", nil, "messages queued for an offline recipient")
	}

	// Echo to the sender so its own UI renders the bubble, then confirm.
	if err := sender.Send(models.EventReceiveMessage, msg); err != nil {
		r.logger.WithError(err).Warn("Failed to echo message to sender")
	}
	confirmation := models.MessageSent{
		To:        req.To,
		Text:      payload.Text,
		Image:     payload.Image,
		Files:     payload.Files,
		Timestamp: msg.CreatedAt,
		MessageID: msg.ID,
		Status:    "sent",
	}
	if err := sender.Send(models.EventMessageSent, confirmation); err != nil {
		r.logger.WithError(err).Warn("Failed to send delivery confirmation")
	}

	return nil
}

// HandleDelete removes the message from both parties' history and from any
// pending queue, then notifies both sides. Deletion is mirrored, not
// owner-restricted, and idempotent.
func (r *Router) HandleDelete(ctx context.Context, from string, req models.DeleteMessageRequest, sender Conn) error {
	ctx, span := tracing.StartSpan(ctx, "route.deleteMessage",
		attribute.String("from", from),
	)
	defer span.End()

	if err := r.validateTarget(from, req.To); err != nil {
		return err
	}
	if err := validation.ValidateMessageID(req.MessageID); err != nil {
		return err
	}

	if err := r.store.Remove(ctx, req.MessageID); err != nil {
		tracing.RecordError(ctx, err)
		r.logger.WithFields(logrus.Fields{
			"message_id": privacy.MaskMessageID(req.MessageID),
		}).WithError(err).Error("Failed to remove message from store")
	}

	notice := models.DeleteMessageNotice{MessageID: req.MessageID}
	if target := r.directory.Resolve(req.To); target != nil {
		if err := target.Send(models.EventDeleteMessage, notice); err != nil {
			r.logger.WithError(err).Warn("Failed to notify recipient of deletion")
		}
	}
	if err := sender.Send(models.EventDeleteMessage, notice); err != nil {
		r.logger.WithError(err).Warn("Failed to confirm deletion to sender")
	}

	metrics.IncrementCounter("messages_deleted", nil, "messages removed by identifier")
	return nil
}

// HandleSeen forwards a seen acknowledgment to the original sender if it is
// currently connected. Seen acks are best-effort: never queued, never
// persisted.
func (r *Router) HandleSeen(ctx context.Context, from string, req models.MessageSeenRequest) error {
	if err := r.validateTarget(from, req.To); err != nil {
		return err
	}
	if err := validation.ValidateMessageID(req.MessageID); err != nil {
		return err
	}

	target := r.directory.Resolve(req.To)
	if target == nil {
		return nil
	}

	if err := target.Send(models.EventMessageSeen, models.MessageSeenNotice{MessageID: req.MessageID}); err != nil {
		r.logger.WithError(err).Warn("Failed to forward seen acknowledgment")
	}
	return nil
}

// HandleTyping forwards a typing indicator if the target is online. Purely
// ephemeral.
func (r *Router) HandleTyping(ctx context.Context, from string, req models.TypingRequest) error {
	if err := r.validateTarget(from, req.To); err != nil {
		return err
	}

	target := r.directory.Resolve(req.To)
	if target == nil {
		return nil
	}

	if err := target.Send(models.EventTyping, models.TypingNotice{From: from, IsTyping: req.IsTyping}); err != nil {
		r.logger.WithError(err).Warn("Failed to forward typing indicator")
	}
	return nil
}

// HandleSignaling relays an opaque call-setup payload verbatim to the
// target, substituting "from" for "to" in the envelope. Silently dropped
// when the target is offline: call setup is meaningless to a disconnected
// peer.
func (r *Router) HandleSignaling(ctx context.Context, from string, kind models.EventKind, data json.RawMessage) error {
	var envelope models.SignalingTarget
	if err := json.Unmarshal(data, &envelope); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidEvent, "malformed signaling payload").
			WithUserMessage("Invalid message data.")
	}
	if err := r.validateTarget(from, envelope.To); err != nil {
		return err
	}

	target := r.directory.Resolve(envelope.To)
	if target == nil {
		return nil
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidEvent, "malformed signaling payload").
			WithUserMessage("Invalid message data.")
	}
	delete(fields, "to")
	fields["from"] = from

	if err := target.Send(kind, fields); err != nil {
		r.logger.WithFields(logrus.Fields{
			"kind": kind,
			"to":   envelope.To,
		}).WithError(err).Warn("Failed to relay signaling payload")
	}

	metrics.IncrementCounter("signaling_relayed", map[string]string{"kind": string(kind)}, "signaling payloads relayed")
	return nil
}

// DeliverBacklog replays the identity's pending queue (draining it) and
// then its full history over the given connection. Pending messages go
// through the same receiveMessage path as live delivery; the history replay
// is read-only and re-queues nothing.
func (r *Router) DeliverBacklog(ctx context.Context, identity string, conn Conn) {
	pending, err := r.store.DrainPending(ctx, identity)
	if err != nil {
		r.logger.WithField("identity", identity).WithError(err).Error("Failed to drain pending queue")
	}
	for i := range pending {
		if err := conn.Send(models.EventReceiveMessage, &pending[i]); err != nil {
			r.logger.WithField("identity", identity).WithError(err).Warn("Failed to deliver pending message")
		}
	}
	if len(pending) > 0 {
		metrics.IncrementCounter("pending_drained", nil, "pending messages delivered on login")
	}

	history, err := r.store.History(ctx, identity)
	if err != nil {
		r.logger.WithField("identity", identity).WithError(err).Error("Failed to load history")
		return
	}
	for i := range history {
		if err := conn.Send(models.EventReceiveMessage, &history[i]); err != nil {
			r.logger.WithField("identity", identity).WithError(err).Warn("Failed to replay history message")
			return
		}
	}
}
