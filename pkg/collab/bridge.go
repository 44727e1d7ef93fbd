package collab

import (
	log "github.com/sirupsen/logrus"

	"github.com/countkeeper/countkeeper/pkg/collab/proto"
	"github.com/countkeeper/countkeeper/pkg/collab/room"
	"github.com/countkeeper/countkeeper/pkg/events"
	"github.com/countkeeper/countkeeper/pkg/model"
)

// Bridge is the only component that touches both the session coordinator and
// the room broadcaster. Coordinator mutations flow through it into the room
// of the same (unit, period) and onto the event bus; broadcaster-observed
// joins are recorded through it without a store round trip.
//
// It implements coordinator.Notifier and room.JoinListener.
type Bridge struct {
	registry  *room.Registry
	publisher events.Publisher
}

func NewBridge(registry *room.Registry, publisher events.Publisher) *Bridge {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Bridge{
		registry:  registry,
		publisher: publisher,
	}
}

// ScanRecorded fans an accepted scan out to every member of the room. The
// mutation came through the HTTP surface, not through a room connection, so
// nobody is excluded.
func (b *Bridge) ScanRecorded(unit string, period model.Period, userName string, rec model.ScanRecord) {
	data := proto.ScanEventData{
		Unit:     unit,
		Period:   proto.PeriodData{Month: period.Month, Year: period.Year},
		UserID:   rec.User,
		UserName: userName,
		ScanData: proto.ScanData{
			Identifier: rec.ItemID,
			User:       rec.User,
			Timestamp:  rec.Date,
		},
	}

	out, err := proto.MarshalNewScanAddedMessage(data)
	if err != nil {
		log.Errorf("bridge could not marshal scan_added: %s", err.Error())
		return
	}

	b.registry.BroadcastAll(room.NewKey(unit, period), out)
	b.publisher.ScanAccepted(unit, period, rec)
}

// SessionCompleted broadcasts the completion pair to every member of the
// room: inventory_completed first, then session_terminated, in that order per
// recipient.
func (b *Bridge) SessionCompleted(unit string, period model.Period, sess model.Session) {
	periodData := proto.PeriodData{Month: period.Month, Year: period.Year}

	completed, err := proto.MarshalNewInventoryCompletedMessage(proto.InventoryCompletedData{
		Unit:        unit,
		Period:      periodData,
		CompletedBy: sess.CompletedBy,
		SessionID:   sess.SessionID,
		Message:     "inventory session completed",
	})
	if err != nil {
		log.Errorf("bridge could not marshal inventory_completed: %s", err.Error())
		return
	}

	terminated, err := proto.MarshalNewSessionTerminatedMessage(proto.SessionTerminatedData{
		Unit:        unit,
		Period:      periodData,
		CompletedBy: sess.CompletedBy,
		Message:     "your session has ended",
	})
	if err != nil {
		log.Errorf("bridge could not marshal session_terminated: %s", err.Error())
		return
	}

	b.registry.BroadcastAll(room.NewKey(unit, period), completed, terminated)
	b.publisher.SessionCompleted(unit, period, sess)
}

// UserJoined records a collaborator announcement observed by the
// broadcaster. No store round trip, the membership lives on the connection.
func (b *Bridge) UserJoined(key room.Key, userID, userName string) {
	log.WithFields(log.Fields{
		"room":      key.String(),
		"user_id":   userID,
		"user_name": userName,
	}).Info("bridge recorded a collaborator join")
}
