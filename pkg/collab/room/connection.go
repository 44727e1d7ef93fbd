package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/countkeeper/countkeeper/pkg/collab/proto"
	"github.com/countkeeper/countkeeper/pkg/collab/room/websocket"
)

// Status is the connection lifecycle state. Closed is terminal.
type Status int

const (
	StatusConnecting Status = iota
	StatusJoined
	StatusActive
	StatusIdle
	StatusClosed
)

func (status Status) String() string {
	names := []string{
		"CONNECTING",
		"JOINED",
		"ACTIVE",
		"IDLE",
		"CLOSED"}

	if status < StatusConnecting || status > StatusClosed {
		return "UNKNOWN"
	}

	return names[status]
}

// Connection is one live WebSocket inside a room. It is owned exclusively by
// its room; message handling from one connection is strictly sequential.
type Connection struct {
	sync.RWMutex
	id          string
	registry    *Registry
	room        *Room
	driver      *websocket.Driver
	status      Status
	userID      string
	userName    string
	connectedAt time.Time

	awaitingPong bool
	missedPongs  int

	stopCh   chan struct{}
	stopOnce sync.Once
}

func newConnection(registry *Registry, driver *websocket.Driver) *Connection {
	return &Connection{
		id:          uuid.NewString(),
		registry:    registry,
		driver:      driver,
		status:      StatusConnecting,
		connectedAt: time.Now().Round(time.Second).UTC(),
		stopCh:      make(chan struct{}),
	}
}

// UserID returns the announced user id, falling back to the connection id
// until a user_joined frame arrived.
func (conn *Connection) UserID() string {
	conn.RLock()
	defer conn.RUnlock()
	if conn.userID != "" {
		return conn.userID
	}
	return conn.id
}

func (conn *Connection) UserName() string {
	conn.RLock()
	defer conn.RUnlock()
	return conn.userName
}

func (conn *Connection) Status() Status {
	conn.RLock()
	defer conn.RUnlock()
	return conn.status
}

func (conn *Connection) setStatus(status Status) {
	conn.Lock()
	conn.status = status
	conn.Unlock()
}

// start runs the sequential inbox loop and the heartbeat watchdog.
func (conn *Connection) start(heartbeat time.Duration) {
	go conn.inboxLoop()
	go conn.heartbeatLoop(heartbeat)
}

// Terminate removes the connection from its room and stops its workers.
// Safe to call more than once.
func (conn *Connection) Terminate() {
	conn.stopOnce.Do(func() {
		conn.setStatus(StatusClosed)
		close(conn.stopCh)
		conn.registry.Leave(conn)
		conn.driver.Stop()
	})
}

func (conn *Connection) inboxLoop() {
	for {
		select {
		case msg := <-conn.driver.Inbox:
			conn.handleMessage(msg.Data)
		case <-conn.stopCh:
			return
		}
	}
}

// handleMessage dispatches one inbound frame. Protocol errors are answered
// with an error frame on this connection only; the connection stays open.
func (conn *Connection) handleMessage(data []byte) {
	msgType, msg, err := proto.UnmarshalMessage(data)
	if err != nil {
		log.Debugf("room connection %s received bad frame: %s", conn.id, err.Error())
		conn.pushError(err.Error())
		return
	}

	conn.setStatus(StatusActive)

	// ping is the liveness path and is exempt from rate limiting.
	switch msgType {
	case proto.MessageTypePing:
		conn.handlePing(msg)
		return
	case proto.MessageTypePong:
		conn.handlePong()
		return
	}

	if !conn.registry.limiter.Allow(conn.UserID(), msgType) {
		log.Warnf("room connection of user '%s' exceeded the %s rate ceiling",
			conn.UserID(), msgType)
		conn.pushError("rate limit exceeded for message type " + msgType.String())
		return
	}

	switch msgType {
	case proto.MessageTypeUserJoined:
		conn.handleUserJoined(msg, data)
	case proto.MessageTypeScanAdded, proto.MessageTypeScanRemoved,
		proto.MessageTypeInventoryCompleted, proto.MessageTypeSessionTerminated:
		conn.broadcastToPeers(data)
	case proto.MessageTypeError:
		// Client-side error reports are logged, nothing is relayed.
		log.Debugf("room connection %s reported a client error", conn.id)
	}
}

func (conn *Connection) handlePing(msg interface{}) {
	ping, err := proto.MustPingData(msg)
	if err != nil {
		conn.pushError(err.Error())
		return
	}

	out, err := proto.MarshalNewPongMessage(ping.Timestamp)
	if err != nil {
		log.Errorf("room connection could not marshal pong: %s", err.Error())
		return
	}
	conn.push(out)
}

func (conn *Connection) handlePong() {
	conn.Lock()
	conn.awaitingPong = false
	conn.missedPongs = 0
	conn.Unlock()
}

// handleUserJoined records the collaborator on the connection itself, no
// store round trip, and relays the announcement to the peers.
func (conn *Connection) handleUserJoined(msg interface{}, raw []byte) {
	joined, err := proto.MustUserJoinedData(msg)
	if err != nil {
		conn.pushError(err.Error())
		return
	}

	conn.Lock()
	conn.userID = joined.UserID
	conn.userName = joined.UserName
	conn.Unlock()

	if conn.room != nil {
		conn.registry.notifyJoin(conn.room.Key(), joined.UserID, joined.UserName)
	}

	conn.broadcastToPeers(raw)
}

func (conn *Connection) broadcastToPeers(data []byte) {
	if conn.room == nil {
		return
	}
	conn.room.Broadcast(data, conn)
}

// heartbeatLoop pings the client every interval. Two unanswered pings in a
// row terminate the connection.
func (conn *Connection) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			conn.Lock()
			if conn.awaitingPong {
				conn.missedPongs++
				if conn.status == StatusActive {
					conn.status = StatusIdle
				}
			}
			missed := conn.missedPongs
			conn.Unlock()

			if missed >= 2 {
				log.Warnf("room connection of user '%s' missed %d pongs, terminating",
					conn.UserID(), missed)
				conn.Terminate()
				return
			}

			out, err := proto.MarshalNewPingMessage()
			if err != nil {
				log.Errorf("room connection could not marshal ping: %s", err.Error())
				continue
			}
			if !conn.push(out) {
				conn.Terminate()
				return
			}

			conn.Lock()
			conn.awaitingPong = true
			conn.Unlock()
		case <-conn.stopCh:
			return
		}
	}
}

// push queues an outbound frame; a full buffer counts as a send failure.
func (conn *Connection) push(data []byte) bool {
	return conn.driver.Push(websocket.FlagContinue, data)
}

func (conn *Connection) pushError(message string) {
	out, err := proto.MarshalNewErrorMessage(message)
	if err != nil {
		log.Errorf("room connection could not marshal error frame: %s", err.Error())
		return
	}
	conn.push(out)
}
