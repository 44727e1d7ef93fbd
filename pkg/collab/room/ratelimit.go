package room

import (
	"sync"
	"time"

	"github.com/countkeeper/countkeeper/pkg/collab/proto"
)

type limitKey struct {
	user    string
	msgType proto.MessageType
}

// messageLimiter enforces the per-(user, message type) ceiling over a sliding
// window. Excess messages are dropped with an error frame, never queued.
type messageLimiter struct {
	sync.Mutex
	ceiling int
	window  time.Duration
	hits    map[limitKey][]time.Time
}

func newMessageLimiter(ceiling int, window time.Duration) *messageLimiter {
	return &messageLimiter{
		ceiling: ceiling,
		window:  window,
		hits:    make(map[limitKey][]time.Time),
	}
}

// Allow records one message and reports whether it is within the ceiling.
func (l *messageLimiter) Allow(user string, msgType proto.MessageType) bool {
	key := limitKey{user: user, msgType: msgType}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.Lock()
	defer l.Unlock()

	hits := l.hits[key]
	i := 0
	for ; i < len(hits); i++ {
		if hits[i].After(cutoff) {
			break
		}
	}
	hits = hits[i:]

	if len(hits) >= l.ceiling {
		l.hits[key] = hits
		return false
	}

	l.hits[key] = append(hits, now)
	return true
}

// Forget drops the counters of a user, called when their last connection
// leaves.
func (l *messageLimiter) Forget(user string) {
	l.Lock()
	defer l.Unlock()

	for key := range l.hits {
		if key.user == user {
			delete(l.hits, key)
		}
	}
}
