// Package websocket drives one hijacked connection: a reader goroutine feeds
// the Inbox, a writer goroutine drains the Outbox. The room layer never
// touches frames directly.
package websocket

import (
	"io"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	log "github.com/sirupsen/logrus"
)

type Flag int

const (
	FlagContinue Flag = iota
	FlagCloseGracefully
	FlagTerminate
)

type OutboxMessage struct {
	Flag Flag
	Data []byte
}

type InboxMessage struct {
	Data []byte
}

type Driver struct {
	conn   net.Conn
	Inbox  chan *InboxMessage
	Outbox chan *OutboxMessage

	terminateCh    chan<- struct{}
	terminatedOnce sync.Once

	stopCh   chan struct{}
	stopOnce sync.Once

	wg sync.WaitGroup
}

func NewDriver(conn net.Conn, terminateCh chan<- struct{}) *Driver {
	return &Driver{
		conn:        conn,
		Inbox:       make(chan *InboxMessage, 100),
		Outbox:      make(chan *OutboxMessage, 100),
		terminateCh: terminateCh,
		stopCh:      make(chan struct{}),
	}
}

func (driver *Driver) Start() {
	driver.wg.Add(1)
	go driver.inboxWorker()
	driver.wg.Add(1)
	go driver.outboxWorker()
}

// Close waits for both workers to exit. It is called by the handler when the
// connection is going away.
func (driver *Driver) Close() {
	driver.wg.Wait()
	log.Debug("websocket driver closed")
}

// Stop tells the workers to exit and signals the handler through the
// terminate channel.
func (driver *Driver) Stop() {
	log.Debug("websocket driver stop called")
	driver.safeCloseTerminateChannel()
	driver.safeCloseStopChannel()
}

// Push queues an outbox message without blocking. It reports false if the
// buffer is full, which the room layer treats as a send failure.
func (driver *Driver) Push(flag Flag, data []byte) bool {
	select {
	case driver.Outbox <- NewOutboxMessage(flag, data):
		return true
	default:
		return false
	}
}

func (driver *Driver) closeWorker() {
	defer driver.wg.Done()
	driver.safeCloseTerminateChannel()
	driver.safeCloseStopChannel()
}

func (driver *Driver) safeCloseTerminateChannel() {
	driver.terminatedOnce.Do(func() {
		close(driver.terminateCh)
	})
}

func (driver *Driver) safeCloseStopChannel() {
	driver.stopOnce.Do(func() {
		close(driver.stopCh)
	})
}

func (driver *Driver) inboxWorker() {
	defer driver.closeWorker()

	state := ws.StateServerSide
	ch := wsutil.ControlFrameHandler(driver.conn, state)

	r := &wsutil.Reader{
		Source:         driver.conn,
		State:          state,
		CheckUTF8:      true,
		OnIntermediate: ch,
	}

	for {
		h, err := r.NextFrame()
		if err != nil {
			log.Debugf("websocket read frame error: %v", err)
			return
		}

		// Control frames are handled before continuation.
		if h.OpCode.IsControl() {
			// On OpClose the socket was closed by the client and the worker
			// can exit.
			if h.OpCode == ws.OpClose {
				log.Debug("websocket connection closed gracefully")
				return
			}

			if err = ch(h, r); err != nil {
				log.Errorf("websocket handles control frame error: %v", err)
				return
			}
			continue
		}

		req, err := io.ReadAll(r)
		if err != nil {
			log.Errorf("websocket read error: %v", err)
			return
		}

		select {
		case driver.Inbox <- NewInboxMessage(req):
		case <-driver.stopCh:
			return
		}
	}
}

func (driver *Driver) outboxWorker() {
	defer driver.closeWorker()

	state := ws.StateServerSide
	w := wsutil.NewWriter(driver.conn, state, 0)

	for {
		select {
		case res := <-driver.Outbox:
			if err := writeText(driver.conn, w, state, res.Data); err != nil {
				log.Errorf("websocket terminates because of write error: %s", err.Error())
				return
			}

			switch res.Flag {
			case FlagCloseGracefully:
				closeGraceful(driver.conn, w, state)
				return
			case FlagTerminate:
				return
			}
		case <-driver.stopCh:
			return
		}
	}
}

func writeText(conn net.Conn, w *wsutil.Writer, state ws.State, data []byte) error {
	w.Reset(conn, state, ws.OpText)

	var err error
	if _, err = w.Write(data); err == nil {
		err = w.Flush()
	}

	return err
}

func closeGraceful(conn net.Conn, w *wsutil.Writer, state ws.State) {
	w.Reset(conn, state, ws.OpClose)

	var err error
	if _, err = w.Write([]byte("")); err == nil {
		err = w.Flush()
	}
	if err != nil {
		log.Errorf("websocket close write error: %s", err.Error())
	}
}

// Close status 1013 (try again later), not among the codes gobwas/ws exports.
const statusTryAgainLater = ws.StatusCode(1013)

// RejectBusy closes a freshly upgraded connection with a distinguishable
// status code, used when the room is at capacity. The connection is never
// registered anywhere.
func RejectBusy(conn net.Conn, reason string) {
	frame := ws.NewCloseFrame(ws.NewCloseFrameBody(statusTryAgainLater, reason))
	if err := ws.WriteFrame(conn, frame); err != nil {
		log.Debugf("websocket busy reject write error: %v", err)
	}
}

func NewOutboxMessage(flag Flag, data []byte) *OutboxMessage {
	m := &OutboxMessage{
		Flag: flag,
	}
	if data != nil {
		m.Data = make([]byte, len(data))
		copy(m.Data, data)
	}
	return m
}

func NewInboxMessage(data []byte) *InboxMessage {
	m := &InboxMessage{}
	if data != nil {
		m.Data = make([]byte, len(data))
		copy(m.Data, data)
	}
	return m
}
