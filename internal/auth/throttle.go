package auth

import (
	"errors"
	"sync"
	"time"
)

var ErrBlocked = errors.New("too many failed attempts; try again later")

const (
	failWindow = 5 * time.Minute
	blockFor   = 10 * time.Minute
	maxFails   = 5
)

type attempt struct {
	Fails        int
	WindowStart  time.Time
	BlockedUntil time.Time
}

// throttle counts failed secrets per address.
type throttle struct {
	mu       sync.Mutex
	attempts map[string]attempt
	now      func() time.Time
}

func newThrottle() *throttle {
	return &throttle{attempts: make(map[string]attempt), now: time.Now}
}

func (t *throttle) blocked(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	a, ok := t.attempts[ip]
	if !ok {
		return false
	}
	now := t.now()
	if !a.BlockedUntil.IsZero() && now.Before(a.BlockedUntil) {
		return true
	}
	if !a.BlockedUntil.IsZero() && now.After(a.BlockedUntil) {
		delete(t.attempts, ip)
		return false
	}
	if !a.WindowStart.IsZero() && now.Sub(a.WindowStart) > failWindow {
		delete(t.attempts, ip)
	}
	return false
}

func (t *throttle) fail(ip string) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gcLocked(now)
	a := t.attempts[ip]
	if a.WindowStart.IsZero() || now.Sub(a.WindowStart) > failWindow {
		a.WindowStart = now
		a.Fails = 1
		a.BlockedUntil = time.Time{}
	} else {
		a.Fails++
	}
	if a.Fails >= maxFails {
		a.BlockedUntil = now.Add(blockFor)
	}
	t.attempts[ip] = a
}

func (t *throttle) clear(ip string) {
	t.mu.Lock()
	delete(t.attempts, ip)
	t.mu.Unlock()
}

func (t *throttle) gcLocked(now time.Time) {
	for ip, a := range t.attempts {
		if (!a.BlockedUntil.IsZero() && now.After(a.BlockedUntil)) || (!a.WindowStart.IsZero() && now.Sub(a.WindowStart) > 30*time.Minute) {
			delete(t.attempts, ip)
		}
	}
}
