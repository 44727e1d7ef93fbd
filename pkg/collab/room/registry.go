package room

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/countkeeper/countkeeper/pkg/collab/room/websocket"
)

// JoinListener is notified when a collaborator announces itself on a
// connection. The notification carries everything the listener needs, no
// store round trip happens on this path.
type JoinListener interface {
	UserJoined(key Key, userID, userName string)
}

// Config carries the room broadcaster settings.
type Config struct {
	// Capacity is the maximum number of live connections per room.
	Capacity int
	// RateCeiling is the per-(user, message type) ceiling inside RateWindow.
	RateCeiling int
	RateWindow  time.Duration
	// HeartbeatInterval is the ping cadence per connection; two unanswered
	// pings terminate it.
	HeartbeatInterval time.Duration
	// GCInterval is the sweep cadence for empty rooms.
	GCInterval time.Duration
}

func (cfg Config) withDefaults() Config {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 50
	}
	if cfg.RateCeiling <= 0 {
		cfg.RateCeiling = 100
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = time.Minute
	}
	return cfg
}

// Registry owns all live rooms keyed by (unit, period). It is the only shared
// mutable state of the broadcaster; all access is synchronized here and in
// the rooms themselves.
type Registry struct {
	sync.RWMutex
	cfg     Config
	rooms   map[Key]*Room
	limiter *messageLimiter
	joins   JoinListener

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewRegistry(cfg Config) *Registry {
	cfg = cfg.withDefaults()

	return &Registry{
		cfg:     cfg,
		rooms:   make(map[Key]*Room),
		limiter: newMessageLimiter(cfg.RateCeiling, cfg.RateWindow),
		stopCh:  make(chan struct{}),
	}
}

// SetJoinListener attaches the session/room bridge. Must be called before
// serving traffic.
func (reg *Registry) SetJoinListener(l JoinListener) {
	reg.joins = l
}

// Join admits a new connection into the room for key, creating the room on
// first use. At capacity the connection is not registered and ErrRoomFull is
// returned; the caller closes the socket with a distinguishable status code.
func (reg *Registry) Join(key Key, driver *websocket.Driver) (*Connection, error) {
	conn := newConnection(reg, driver)

	for {
		reg.Lock()
		r, ok := reg.rooms[key]
		if !ok {
			r = newRoom(key, reg.cfg.Capacity)
			reg.rooms[key] = r
			log.Infof("room %s created", key)
		}
		reg.Unlock()

		if err := r.add(conn); err != nil {
			return nil, err
		}

		// A concurrent last-member leave or sweep can drop the room between
		// the fetch and the add. Re-check under the registry lock; an admitted
		// connection must never sit in a room the registry no longer tracks.
		reg.RLock()
		tracked := reg.rooms[key] == r
		reg.RUnlock()
		if !tracked {
			r.remove(conn)
			continue
		}

		conn.room = r
		conn.setStatus(StatusJoined)
		conn.start(reg.cfg.HeartbeatInterval)

		log.Infof("room %s admitted a connection (%d members)", key, r.Size())
		return conn, nil
	}
}

// Leave removes the connection from its room and drops the room from the
// registry once its connection set becomes empty. The rate counters of the
// user are kept as long as any other connection of theirs is still live, so
// cycling a connection cannot reset the ceiling.
func (reg *Registry) Leave(conn *Connection) {
	r := conn.room
	if r == nil {
		return
	}

	r.remove(conn)

	if !reg.userConnected(conn.UserID()) {
		reg.limiter.Forget(conn.UserID())
	}

	if r.Size() == 0 {
		reg.Lock()
		if r.Size() == 0 {
			delete(reg.rooms, r.Key())
			log.Infof("room %s dropped, last member left", r.Key())
		}
		reg.Unlock()
	}
}

// userConnected reports whether any live connection in any room announced the
// given user.
func (reg *Registry) userConnected(user string) bool {
	reg.RLock()
	defer reg.RUnlock()

	for _, r := range reg.rooms {
		for _, conn := range r.members() {
			if conn.UserID() == user {
				return true
			}
		}
	}
	return false
}

// Get returns the live room for key or nil.
func (reg *Registry) Get(key Key) *Room {
	reg.RLock()
	defer reg.RUnlock()
	return reg.rooms[key]
}

// BroadcastAll delivers coordinator-originated frames to every member of the
// room for key, preserving the frame order per recipient. A missing room is
// fine, nobody is connected.
func (reg *Registry) BroadcastAll(key Key, frames ...[]byte) {
	if r := reg.Get(key); r != nil {
		r.BroadcastAll(frames...)
	}
}

// StartGC runs the periodic sweep for empty rooms until Stop is called.
func (reg *Registry) StartGC() {
	go func() {
		ticker := time.NewTicker(reg.cfg.GCInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				reg.sweep()
			case <-reg.stopCh:
				return
			}
		}
	}()
}

// Stop ends the GC loop and terminates every connection.
func (reg *Registry) Stop() {
	reg.stopOnce.Do(func() {
		close(reg.stopCh)
	})

	reg.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.RUnlock()

	for _, r := range rooms {
		for _, conn := range r.members() {
			conn.Terminate()
		}
	}
}

func (reg *Registry) sweep() {
	reg.Lock()
	defer reg.Unlock()

	for key, r := range reg.rooms {
		if r.Size() == 0 {
			delete(reg.rooms, key)
			log.Infof("room %s swept, empty", key)
		}
	}
}

func (reg *Registry) notifyJoin(key Key, userID, userName string) {
	if reg.joins == nil {
		return
	}
	reg.joins.UserJoined(key, userID, userName)
}
