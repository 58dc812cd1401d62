package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Action identifies which cooldown applies. Email and clip cooldowns are
// independent: suppressing one never suppresses the other.
type Action int

const (
	ActionEmail Action = iota
	ActionClip
)

const (
	EmailCooldown = 120 * time.Second
	ClipCooldown  = 5 * time.Second
)

func (a Action) String() string {
	if a == ActionEmail {
		return "email"
	}
	return "clip"
}

// Cooldown returns the minimum spacing between allowed actions.
func (a Action) Cooldown() time.Duration {
	if a == ActionEmail {
		return EmailCooldown
	}
	return ClipCooldown
}

// Decision is the outcome of a cooldown check. Remaining is zero when the
// action is allowed.
type Decision struct {
	Allowed   bool
	Remaining time.Duration
}

// CooldownLimiter tracks the last allowed time per (project, listener,
// action). State is process local: a restart clears cooldowns, which only
// risks one extra notification.
type CooldownLimiter struct {
	mu   sync.Mutex
	last map[string]time.Time

	// keyed locks let callers hold a per-trigger critical section across
	// check, act and record without serializing unrelated triggers
	keys map[string]*sync.Mutex

	now func() time.Time
}

func NewCooldownLimiter() *CooldownLimiter {
	return NewCooldownLimiterWithNow(time.Now)
}

// NewCooldownLimiterWithNow injects the clock so tests can step through
// cooldown windows without sleeping.
func NewCooldownLimiterWithNow(now func() time.Time) *CooldownLimiter {
	return &CooldownLimiter{
		last: make(map[string]time.Time),
		keys: make(map[string]*sync.Mutex),
		now:  now,
	}
}

func stateKey(projectID, listenerID string, action Action) string {
	return fmt.Sprintf("%s|%s|%s", projectID, listenerID, action)
}

// Allow reports whether the action is currently outside its cooldown.
// It does not record anything; call Record after the action succeeds.
func (l *CooldownLimiter) Allow(projectID, listenerID string, action Action) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := stateKey(projectID, listenerID, action)
	last, ok := l.last[key]
	if !ok {
		return Decision{Allowed: true}
	}
	elapsed := l.now().Sub(last)
	if elapsed >= action.Cooldown() {
		return Decision{Allowed: true}
	}
	return Decision{Remaining: action.Cooldown() - elapsed}
}

// Record marks the action as having just happened.
func (l *CooldownLimiter) Record(projectID, listenerID string, action Action) {
	l.mu.Lock()
	l.last[stateKey(projectID, listenerID, action)] = l.now()
	l.mu.Unlock()
}

// Acquire locks the limiter key for projectID/listenerID/action and returns
// the release func. Concurrent triggers for the same key serialize their
// check-then-record sequence here, so at most one of them passes per window.
func (l *CooldownLimiter) Acquire(projectID, listenerID string, action Action) func() {
	key := stateKey(projectID, listenerID, action)

	l.mu.Lock()
	km, ok := l.keys[key]
	if !ok {
		km = &sync.Mutex{}
		l.keys[key] = km
	}
	l.mu.Unlock()

	km.Lock()
	return km.Unlock
}
