// Package ratelimit throttles bot commands per user, with an optional
// limit shared by everyone.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrLimited = errors.New("rate limited")

// Rule allows PerUser calls per fixed Window for each user. When Global is set,
// all users together get Global calls per Window.
type Rule struct {
	Window  time.Duration
	PerUser int
	Global  int
}

// LimitError tells the caller how long to wait. Holder is the user whose
// call used up the shared limit.
type LimitError struct {
	Wait   time.Duration
	Global bool
	Holder string
}

func (e *LimitError) Error() string {
	if e.Global {
		return fmt.Sprintf("rate limited by %s for %s", e.Holder, e.Wait)
	}
	return fmt.Sprintf("rate limited for %s", e.Wait)
}

func (e *LimitError) Unwrap() error { return ErrLimited }

// Seconds is the wait in whole seconds, at least one.
func (e *LimitError) Seconds() int {
	return max(int(e.Wait.Round(time.Second)/time.Second), 1)
}

// window counts calls since start. It opens on the first call and resets
// once Window has passed.
type window struct {
	start time.Time
	count int
}

func (w *window) roll(now time.Time, d time.Duration) {
	if w.count > 0 && now.Sub(w.start) >= d {
		w.count = 0
	}
}

func (w *window) take(now time.Time) {
	if w.count == 0 {
		w.start = now
	}
	w.count++
}

func (w *window) remaining(now time.Time, d time.Duration) time.Duration {
	return w.start.Add(d).Sub(now)
}

type Limiter struct {
	rule Rule
	now  func() time.Time

	mu     sync.Mutex
	users  map[int64]*window
	global window
	holder string
}

func New(rule Rule) *Limiter {
	return &Limiter{rule: rule, now: time.Now, users: map[int64]*window{}}
}

// Allow takes one call for userID. On rejection nothing is consumed and
// the error is a *LimitError whose wait runs to the end of the window.
func (l *Limiter) Allow(userID int64, username string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()

	if l.rule.Global > 0 {
		l.global.roll(now, l.rule.Window)
		if l.global.count >= l.rule.Global {
			return &LimitError{Wait: l.global.remaining(now, l.rule.Window), Global: true, Holder: l.holder}
		}
	}

	user, ok := l.users[userID]
	if !ok {
		user = &window{}
		l.users[userID] = user
	}
	user.roll(now, l.rule.Window)
	if user.count >= l.rule.PerUser {
		return &LimitError{Wait: user.remaining(now, l.rule.Window)}
	}

	user.take(now)
	if l.rule.Global > 0 {
		if l.global.count == 0 {
			l.holder = username
		}
		l.global.take(now)
	}
	return nil
}

// Set holds one Limiter per command name.
type Set struct {
	mu       sync.Mutex
	rules    map[string]Rule
	limiters map[string]*Limiter
}

func NewSet(rules map[string]Rule) *Set {
	return &Set{rules: rules, limiters: map[string]*Limiter{}}
}

// Allow applies the rule for command. Commands without a rule are never
// limited.
func (s *Set) Allow(command string, userID int64, username string) error {
	s.mu.Lock()
	rule, ok := s.rules[command]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	l, ok := s.limiters[command]
	if !ok {
		l = New(rule)
		s.limiters[command] = l
	}
	s.mu.Unlock()
	return l.Allow(userID, username)
}
