package room

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

type roomError string

// ErrRoomFull is returned at admission when the room already holds its
// configured maximum of connections.
const ErrRoomFull = roomError("room is at capacity")

func (e roomError) Error() string {
	return string(e)
}

// Room is the ephemeral set of live connections collaborating on one
// (unit, period). It is created on the first connection and dropped from the
// registry once empty.
type Room struct {
	sync.RWMutex
	key         Key
	capacity    int
	connections map[*Connection]struct{}
}

func newRoom(key Key, capacity int) *Room {
	return &Room{
		key:         key,
		capacity:    capacity,
		connections: make(map[*Connection]struct{}),
	}
}

func (r *Room) Key() Key {
	return r.key
}

func (r *Room) Size() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.connections)
}

func (r *Room) add(conn *Connection) error {
	r.Lock()
	defer r.Unlock()

	if len(r.connections) >= r.capacity {
		return ErrRoomFull
	}
	r.connections[conn] = struct{}{}

	return nil
}

func (r *Room) remove(conn *Connection) {
	r.Lock()
	defer r.Unlock()
	delete(r.connections, conn)
}

func (r *Room) members() []*Connection {
	r.RLock()
	defer r.RUnlock()

	out := make([]*Connection, 0, len(r.connections))
	for conn := range r.connections {
		out = append(out, conn)
	}
	return out
}

// Broadcast fans one frame out to every connection except the excluded
// sender. Delivery is best-effort: a failed send drops that connection from
// the room and the fan-out continues.
func (r *Room) Broadcast(data []byte, exclude *Connection) {
	for _, conn := range r.members() {
		if conn == exclude {
			continue
		}
		if !conn.push(data) {
			log.Warnf("room %s drops unresponsive connection of user '%s'",
				r.key, conn.UserID())
			conn.Terminate()
		}
	}
}

// BroadcastAll sends the given frames to every connection in the room, in the
// given order per recipient. Used for coordinator-originated events where the
// initiator is not a room member.
func (r *Room) BroadcastAll(frames ...[]byte) {
	for _, conn := range r.members() {
		for _, data := range frames {
			if !conn.push(data) {
				log.Warnf("room %s drops unresponsive connection of user '%s'",
					r.key, conn.UserID())
				conn.Terminate()
				break
			}
		}
	}
}
