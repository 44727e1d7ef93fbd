// Package archive is the boundary to the backup-and-clear collaborator that
// snapshots a completed session's detail rows to blob storage and purges
// them. The collaborator itself lives outside this process; completion only
// triggers it.
package archive

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/countkeeper/countkeeper/pkg/model"
)

const SubjectArchiveRequest = "countkeeper.archive.v1.request"

// Request is the wire payload on SubjectArchiveRequest.
type Request struct {
	Unit        string    `json:"unit"`
	Month       int       `json:"month"`
	Year        int       `json:"year"`
	SessionID   string    `json:"sessionId"`
	RequestedAt time.Time `json:"requestedAt"`
}

// Reply is the collaborator's acknowledgement.
type Reply struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NATSTrigger requests the backup over NATS and waits for the
// acknowledgement within the context deadline.
type NATSTrigger struct {
	nc      *nats.Conn
	timeout time.Duration
}

func NewNATSTrigger(nc *nats.Conn) *NATSTrigger {
	return &NATSTrigger{nc: nc, timeout: 30 * time.Second}
}

func (t *NATSTrigger) ArchiveAndClear(ctx context.Context, unit string, period model.Period, sessionID string) error {
	req := Request{
		Unit:        unit,
		Month:       period.Month,
		Year:        period.Year,
		SessionID:   sessionID,
		RequestedAt: time.Now().Round(time.Second).UTC(),
	}

	data, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "archive: could not marshal request")
	}

	msg, err := t.nc.RequestWithContext(ctx, SubjectArchiveRequest, data)
	if err != nil {
		return errors.Wrap(err, "archive: request failed")
	}

	var reply Reply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return errors.Wrap(err, "archive: could not unmarshal reply")
	}
	if reply.Status != "ok" {
		return errors.Errorf("archive: collaborator rejected the request: %s", reply.Error)
	}

	return nil
}

// NopTrigger skips the backup entirely. Used when no NATS server is
// configured; detail rows then stay in place until cleaned up manually.
type NopTrigger struct{}

func (NopTrigger) ArchiveAndClear(context.Context, string, model.Period, string) error {
	return nil
}
