package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"pairchat/internal/constants"
	"pairchat/internal/errors"
	"pairchat/internal/metrics"
	"pairchat/internal/models"
	"pairchat/internal/tracing"
	"pairchat/internal/validation"
)

// SessionState is the per-connection lifecycle. A closed connection is
// terminal and cannot be reused.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticated
	StateClosed
)

// Client is the relay-side view of one connection. Its fields are only
// touched by the dispatch goroutine.
type Client struct {
	ID       string
	Conn     Conn
	State    SessionState
	Identity string
}

// Event is one inbound unit of work posted by the transport layer.
type Event struct {
	Client     *Client
	Kind       models.EventKind
	Data       json.RawMessage
	Disconnect bool
}

// Relay owns the session lifecycle and the single-threaded event dispatch:
// every inbound event, including its persistence writes, is processed to
// completion before the next event on any connection is handled.
type Relay struct {
	directory *Directory
	presence  *Presence
	router    *Router
	logger    *logrus.Logger
	events    chan Event
}

func NewRelay(directory *Directory, presence *Presence, router *Router, logger *logrus.Logger) *Relay {
	return &Relay{
		directory: directory,
		presence:  presence,
		router:    router,
		logger:    logger,
		events:    make(chan Event, constants.DispatchQueueSize),
	}
}

// Register creates the relay-side state for a freshly accepted connection.
func (r *Relay) Register(conn Conn) *Client {
	return &Client{
		ID:    tracing.GenerateConnID(),
		Conn:  conn,
		State: StateUnauthenticated,
	}
}

// Submit posts an inbound event for dispatch. It blocks when the dispatch
// queue is full, which back-pressures the connection's read loop.
func (r *Relay) Submit(evt Event) {
	r.events <- evt
}

// Disconnect posts the terminal event for a connection. Cleanup runs on the
// dispatch goroutine like everything else.
func (r *Relay) Disconnect(client *Client) {
	r.events <- Event{Client: client, Disconnect: true}
}

// Run consumes and dispatches events until the context is cancelled.
func (r *Relay) Run(ctx context.Context) {
	r.logger.Info("Relay dispatch loop started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Relay dispatch loop stopped")
			return
		case evt := <-r.events:
			r.dispatch(ctx, evt)
		}
	}
}

// dispatch is the per-event fault boundary: a panic in any handler becomes
// an errorMessage to the triggering connection and never terminates the
// loop or touches other sessions.
func (r *Relay) dispatch(ctx context.Context, evt Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logrus.Fields{
				"conn_id": evt.Client.ID,
				"kind":    evt.Kind,
				"panic":   rec,
			}).Error("Recovered from handler fault")
			r.sendError(evt.Client, "Internal server error.")
		}
	}()

	if evt.Disconnect {
		r.handleDisconnect(evt.Client)
		return
	}
	if evt.Client.State == StateClosed {
		return
	}

	metrics.IncrementCounter("events_dispatched", map[string]string{"kind": string(evt.Kind)}, "inbound events dispatched")

	if evt.Client.State == StateUnauthenticated {
		if evt.Kind != models.EventLogin {
			r.sendError(evt.Client, "Not logged in.")
			return
		}
		r.handleLogin(ctx, evt)
		return
	}

	var err error
	from := evt.Client.Identity

	switch evt.Kind {
	case models.EventLogin:
		err = errors.New(errors.ErrCodeAlreadyActive, "connection already authenticated").
			WithUserMessage("User already logged in.")
	case models.EventSendMessage:
		var req models.SendMessageRequest
		if err = decode(evt.Data, &req); err == nil {
			err = r.router.HandleSend(ctx, from, req, evt.Client.Conn)
		}
	case models.EventDeleteMessage:
		var req models.DeleteMessageRequest
		if err = decode(evt.Data, &req); err == nil {
			err = r.router.HandleDelete(ctx, from, req, evt.Client.Conn)
		}
	case models.EventMessageSeen:
		var req models.MessageSeenRequest
		if err = decode(evt.Data, &req); err == nil {
			err = r.router.HandleSeen(ctx, from, req)
		}
	case models.EventTyping:
		var req models.TypingRequest
		if err = decode(evt.Data, &req); err == nil {
			err = r.router.HandleTyping(ctx, from, req)
		}
	default:
		if evt.Kind.IsSignaling() {
			err = r.router.HandleSignaling(ctx, from, evt.Kind, evt.Data)
		} else {
			err = errors.New(errors.ErrCodeInvalidEvent, "unrecognized event kind").
				WithContext("kind", string(evt.Kind)).
				WithUserMessage("Invalid message data.")
		}
	}

	if err != nil {
		// Errors are reported to the offending connection only, never
		// broadcast, and cause no state change.
		entry := r.logger.WithFields(logrus.Fields{
			"conn_id":  evt.Client.ID,
			"identity": from,
			"kind":     evt.Kind,
			"code":     errors.GetCode(err),
		}).WithError(err)
		if errors.IsAuthError(err) {
			entry.Info("Event rejected")
		} else {
			entry.Warn("Event rejected")
		}
		r.sendError(evt.Client, errors.GetUserMessage(err))
	}
}

func (r *Relay) handleLogin(ctx context.Context, evt Event) {
	var req models.LoginRequest
	if err := decode(evt.Data, &req); err != nil {
		r.sendError(evt.Client, "Invalid login data.")
		return
	}

	if err := validation.ValidateIdentityName(req.Username); err != nil {
		r.sendError(evt.Client, errors.GetUserMessage(err))
		return
	}

	identity, err := r.directory.Authenticate(req.Username, req.Password)
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"conn_id": evt.Client.ID,
			"code":    errors.GetCode(err),
		}).Warn("Login rejected")
		r.sendError(evt.Client, errors.GetUserMessage(err))
		return
	}

	r.directory.Bind(identity.Name, evt.Client.Conn)
	evt.Client.State = StateAuthenticated
	evt.Client.Identity = identity.Name

	r.logger.WithFields(logrus.Fields{
		"conn_id":  evt.Client.ID,
		"identity": identity.Name,
	}).Info("Identity logged in")
	metrics.SetGauge("sessions_active", float64(r.directory.ActiveSessions()), nil, "currently bound sessions")

	if err := evt.Client.Conn.Send(models.EventLoginSuccess, identity.Name); err != nil {
		r.logger.WithError(err).Warn("Failed to send login confirmation")
	}

	r.presence.Announce(identity.Name, true)
	r.router.DeliverBacklog(ctx, identity.Name, evt.Client.Conn)
}

// handleDisconnect runs the unconditional cleanup path: directory removal
// and offline announcement happen regardless of which error path triggered
// the disconnect.
func (r *Relay) handleDisconnect(client *Client) {
	if client.State == StateClosed {
		return
	}
	wasAuthenticated := client.State == StateAuthenticated
	client.State = StateClosed

	if !wasAuthenticated {
		return
	}

	fields := logrus.Fields{
		"conn_id":  client.ID,
		"identity": client.Identity,
	}
	if session, ok := r.directory.Session(client.Identity); ok {
		fields["session_duration_ms"] = time.Since(session.EstablishedAt).Milliseconds()
	}

	r.directory.Unbind(client.Identity)
	r.presence.Announce(client.Identity, false)

	r.logger.WithFields(fields).Info("Identity disconnected")
	metrics.SetGauge("sessions_active", float64(r.directory.ActiveSessions()), nil, "currently bound sessions")
}

func (r *Relay) sendError(client *Client, text string) {
	if err := client.Conn.Send(models.EventErrorMessage, text); err != nil {
		r.logger.WithField("conn_id", client.ID).WithError(err).Debug("Failed to send error message")
	}
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return errors.New(errors.ErrCodeInvalidEvent, "event has no payload").
			WithUserMessage("Invalid message data.")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidEvent, "malformed event payload").
			WithUserMessage("Invalid message data.")
	}
	return nil
}
