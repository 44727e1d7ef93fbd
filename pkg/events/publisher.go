// Package events publishes accepted mutations for out-of-process consumers,
// the export and reporting collaborators among them. Publishing is
// fire-and-forget: a failure is logged and never fails the mutation.
package events

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/countkeeper/countkeeper/pkg/model"
)

const (
	SubjectScanAccepted     = "countkeeper.events.v1.scan"
	SubjectSessionCompleted = "countkeeper.events.v1.completed"
)

// Publisher is implemented by the event sinks.
type Publisher interface {
	ScanAccepted(unit string, period model.Period, rec model.ScanRecord)
	SessionCompleted(unit string, period model.Period, sess model.Session)
}

// ScanAcceptedEvent is the wire payload on SubjectScanAccepted.
type ScanAcceptedEvent struct {
	Unit       string    `json:"unit"`
	Month      int       `json:"month"`
	Year       int       `json:"year"`
	Identifier string    `json:"identifier"`
	User       string    `json:"user"`
	Timestamp  time.Time `json:"timestamp"`
}

// SessionCompletedEvent is the wire payload on SubjectSessionCompleted.
type SessionCompletedEvent struct {
	Unit        string    `json:"unit"`
	Month       int       `json:"month"`
	Year        int       `json:"year"`
	SessionID   string    `json:"sessionId"`
	CompletedBy string    `json:"completedBy"`
	TotalScans  int       `json:"totalScans"`
	CompletedAt time.Time `json:"completedAt"`
}

// NATSPublisher publishes events onto NATS subjects.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: nc}
}

func (p *NATSPublisher) ScanAccepted(unit string, period model.Period, rec model.ScanRecord) {
	p.publish(SubjectScanAccepted, ScanAcceptedEvent{
		Unit:       unit,
		Month:      period.Month,
		Year:       period.Year,
		Identifier: rec.ItemID,
		User:       rec.User,
		Timestamp:  rec.Date,
	})
}

func (p *NATSPublisher) SessionCompleted(unit string, period model.Period, sess model.Session) {
	event := SessionCompletedEvent{
		Unit:        unit,
		Month:       period.Month,
		Year:        period.Year,
		SessionID:   sess.SessionID,
		CompletedBy: sess.CompletedBy,
		TotalScans:  sess.TotalScans,
	}
	if sess.CompletedAt != nil {
		event.CompletedAt = *sess.CompletedAt
	}
	p.publish(SubjectSessionCompleted, event)
}

func (p *NATSPublisher) publish(subject string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Errorf("events publisher could not marshal %s: %s", subject, err.Error())
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		log.Errorf("events publisher could not publish %s: %s", subject, err.Error())
	}
}

// NopPublisher drops every event. Used when no NATS server is configured.
type NopPublisher struct{}

func (NopPublisher) ScanAccepted(string, model.Period, model.ScanRecord)  {}
func (NopPublisher) SessionCompleted(string, model.Period, model.Session) {}
