package service

import (
	"github.com/sirupsen/logrus"

	"pairchat/internal/models"
)

// Presence informs an identity's counterpart of online/offline transitions.
// Announcements are fire-and-forget: a missed one is corrected by the next
// transition, never retried.
type Presence struct {
	directory *Directory
	logger    *logrus.Logger
}

func NewPresence(directory *Directory, logger *logrus.Logger) *Presence {
	return &Presence{directory: directory, logger: logger}
}

// Announce emits a partnerOnlineStatus event to the identity's counterpart
// if the counterpart currently has a live session.
func (p *Presence) Announce(identity string, online bool) {
	counterpart, ok := p.directory.Counterpart(identity)
	if !ok {
		return
	}

	conn := p.directory.Resolve(counterpart)
	if conn == nil {
		return
	}

	err := conn.Send(models.EventPartnerOnlineStatus, models.PartnerOnlineStatus{
		Username: identity,
		Online:   online,
	})
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"identity":    identity,
			"counterpart": counterpart,
			"online":      online,
		}).WithError(err).Warn("Failed to announce presence transition")
	}
}
