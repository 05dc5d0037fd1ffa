// Package sos tracks the per-user SOS alert sequence:
// idle, a short countdown that can be cancelled, waiting for the device location,
// and the confirmation shown once contacts were notified.
package sos

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// State names a step of the SOS sequence.
type State string

const (
	StateIdle      State = "idle"
	StateCountdown State = "countdown"
	StateLocating  State = "locating"
	StateSent      State = "sent"

	// DefaultCountdown is the delay between pressing SOS and requesting the location.
	DefaultCountdown = 3 * time.Second
)

var (
	// ErrInvalidTransition reports an action that is not allowed in the current state.
	ErrInvalidTransition = errors.New("sos: invalid transition")
	// ErrDispatchInProgress reports a second location report while the first is still being delivered.
	ErrDispatchInProgress = errors.New("sos: dispatch in progress")
	// ErrMissingUser reports an empty user identifier.
	ErrMissingUser = errors.New("sos: missing user")
)

// Coordinates is a latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Snapshot is a read-only view of a flow at one instant.
type Snapshot struct {
	State            State
	CountdownSeconds int
	Location         *Coordinates
	ContactsNotified int
	UpdatedAt        time.Time
}

// Clock returns the current time.
type Clock func() time.Time

type flow struct {
	state            State
	countdownEndsAt  time.Time
	location         *Coordinates
	contactsNotified int
	dispatching      bool
	updatedAt        time.Time
}

// Tracker holds one flow per user.
type Tracker struct {
	mutex     sync.Mutex
	flows     map[string]*flow
	clock     Clock
	countdown time.Duration
}

// NewTracker builds a Tracker; a non-positive countdown selects DefaultCountdown and a nil clock selects time.Now.
func NewTracker(countdown time.Duration, clock Clock) *Tracker {
	if countdown <= 0 {
		countdown = DefaultCountdown
	}
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		flows:     make(map[string]*flow),
		clock:     clock,
		countdown: countdown,
	}
}

// Countdown reports the configured countdown length.
func (tracker *Tracker) Countdown() time.Duration {
	return tracker.countdown
}

// Snapshot returns the user's flow, moving an expired countdown to locating.
func (tracker *Tracker) Snapshot(userID string) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, ErrMissingUser
	}
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	now := tracker.clock()
	current := tracker.advance(userID, now)
	return tracker.snapshotOf(current, now), nil
}

// Trigger starts the countdown from idle.
func (tracker *Tracker) Trigger(userID string) (Snapshot, error) {
	return tracker.transition(userID, func(current *flow, now time.Time) error {
		if current.state != StateIdle {
			return fmt.Errorf("%w: trigger from %s", ErrInvalidTransition, current.state)
		}
		current.state = StateCountdown
		current.countdownEndsAt = now.Add(tracker.countdown)
		current.location = nil
		current.contactsNotified = 0
		return nil
	})
}

// Cancel aborts a running countdown.
func (tracker *Tracker) Cancel(userID string) (Snapshot, error) {
	return tracker.transition(userID, func(current *flow, now time.Time) error {
		if current.state != StateCountdown {
			return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, current.state)
		}
		current.reset()
		return nil
	})
}

// BeginDispatch claims the right to deliver the alert for a locating flow.
// Exactly one caller succeeds until CompleteDispatch or FailDispatch is called.
func (tracker *Tracker) BeginDispatch(userID string) (Snapshot, error) {
	return tracker.transition(userID, func(current *flow, now time.Time) error {
		if current.state != StateLocating {
			return fmt.Errorf("%w: report location from %s", ErrInvalidTransition, current.state)
		}
		if current.dispatching {
			return ErrDispatchInProgress
		}
		current.dispatching = true
		return nil
	})
}

// CompleteDispatch records the delivered alert and moves the flow to sent.
func (tracker *Tracker) CompleteDispatch(userID string, location Coordinates, contactsNotified int) (Snapshot, error) {
	return tracker.transition(userID, func(current *flow, now time.Time) error {
		if current.state != StateLocating || !current.dispatching {
			return fmt.Errorf("%w: complete dispatch from %s", ErrInvalidTransition, current.state)
		}
		recorded := location
		current.state = StateSent
		current.location = &recorded
		current.contactsNotified = contactsNotified
		current.dispatching = false
		return nil
	})
}

// FailDispatch releases a dispatch claim and keeps the flow locating so the client can retry.
func (tracker *Tracker) FailDispatch(userID string) (Snapshot, error) {
	return tracker.transition(userID, func(current *flow, now time.Time) error {
		if !current.dispatching {
			return fmt.Errorf("%w: no dispatch in progress", ErrInvalidTransition)
		}
		current.dispatching = false
		return nil
	})
}

// LocationFailed returns a locating flow to idle after the device could not provide a position.
func (tracker *Tracker) LocationFailed(userID string) (Snapshot, error) {
	return tracker.transition(userID, func(current *flow, now time.Time) error {
		if current.state != StateLocating || current.dispatching {
			return fmt.Errorf("%w: location failure from %s", ErrInvalidTransition, current.state)
		}
		current.reset()
		return nil
	})
}

// Reset returns any flow to idle unless a dispatch is being delivered.
func (tracker *Tracker) Reset(userID string) (Snapshot, error) {
	return tracker.transition(userID, func(current *flow, now time.Time) error {
		if current.dispatching {
			return ErrDispatchInProgress
		}
		current.reset()
		return nil
	})
}

// SweepIdle forgets idle flows untouched for at least maxAge and reports how many were removed.
func (tracker *Tracker) SweepIdle(maxAge time.Duration) int {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	now := tracker.clock()
	removed := 0
	for userID, current := range tracker.flows {
		if current.state != StateIdle {
			continue
		}
		if now.Sub(current.updatedAt) < maxAge {
			continue
		}
		delete(tracker.flows, userID)
		removed++
	}
	return removed
}

// Len reports the number of tracked flows.
func (tracker *Tracker) Len() int {
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()
	return len(tracker.flows)
}

func (tracker *Tracker) transition(userID string, apply func(*flow, time.Time) error) (Snapshot, error) {
	if userID == "" {
		return Snapshot{}, ErrMissingUser
	}
	tracker.mutex.Lock()
	defer tracker.mutex.Unlock()

	now := tracker.clock()
	current := tracker.advance(userID, now)
	if applyErr := apply(current, now); applyErr != nil {
		return tracker.snapshotOf(current, now), applyErr
	}
	current.updatedAt = now
	return tracker.snapshotOf(current, now), nil
}

// advance must be called with the mutex held.
func (tracker *Tracker) advance(userID string, now time.Time) *flow {
	current, exists := tracker.flows[userID]
	if !exists {
		current = &flow{state: StateIdle, updatedAt: now}
		tracker.flows[userID] = current
	}
	if current.state == StateCountdown && !now.Before(current.countdownEndsAt) {
		current.state = StateLocating
		current.updatedAt = now
	}
	return current
}

func (tracker *Tracker) snapshotOf(current *flow, now time.Time) Snapshot {
	snapshot := Snapshot{
		State:            current.state,
		ContactsNotified: current.contactsNotified,
		UpdatedAt:        current.updatedAt,
	}
	if current.state == StateCountdown {
		snapshot.CountdownSeconds = remainingSeconds(current.countdownEndsAt.Sub(now))
	}
	if current.location != nil {
		location := *current.location
		snapshot.Location = &location
	}
	return snapshot
}

func (current *flow) reset() {
	current.state = StateIdle
	current.countdownEndsAt = time.Time{}
	current.location = nil
	current.contactsNotified = 0
	current.dispatching = false
}

func remainingSeconds(remaining time.Duration) int {
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Seconds()))
}
