// Package roster tracks the remote participants of a call.
//
// The Roster is an ordered set keyed by user id. Updates replace an entry in
// its original slot, so snapshot order is join order. Every effective change
// publishes a fresh snapshot to subscribers.
package roster

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/callengine/broadcast"
	"github.com/opd-ai/callengine/limits"
	"github.com/opd-ai/callengine/stats"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidParticipant indicates a participant without a usable user id
	ErrInvalidParticipant = errors.New("invalid participant")

	// ErrRosterFull indicates the roster already holds limits.MaxParticipants entries
	ErrRosterFull = errors.New("roster full")
)

// Participant is one remote party.
type Participant struct {
	UserID           string
	DisplayName      string
	AudioMuted       bool
	VideoEnabled     bool
	IsSpeaking       bool
	NetworkCondition stats.NetworkCondition
	JoinedAt         time.Time
}

// Roster is the ordered participant set. It is safe for concurrent use.
type Roster struct {
	mu      sync.RWMutex
	entries []Participant
	index   map[string]int
	max     int
	updates *broadcast.Broadcaster[[]Participant]
}

// New creates an empty roster bounded by limits.MaxParticipants.
func New() *Roster {
	return NewWithLimit(limits.MaxParticipants)
}

// NewWithLimit creates an empty roster holding at most max entries.
func NewWithLimit(max int) *Roster {
	if max < 1 {
		max = limits.MaxParticipants
	}
	return &Roster{
		index:   make(map[string]int),
		max:     max,
		updates: broadcast.New[[]Participant](),
	}
}

// AddOrUpdate inserts p or replaces the entry with the same user id.
// JoinedAt of an existing entry is preserved. It reports whether p was new.
func (r *Roster) AddOrUpdate(p Participant) (bool, error) {
	if err := limits.ValidateUserID(p.UserID); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidParticipant, err)
	}
	p.DisplayName = limits.TruncateDisplayName(p.DisplayName)

	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.index[p.UserID]; ok {
		if p.JoinedAt.IsZero() || !r.entries[i].JoinedAt.IsZero() {
			p.JoinedAt = r.entries[i].JoinedAt
		}
		if r.entries[i] == p {
			return false, nil
		}
		r.entries[i] = p
		r.publishLocked()
		return false, nil
	}

	if len(r.entries) >= r.max {
		logrus.WithFields(logrus.Fields{
			"function": "Roster.AddOrUpdate",
			"user_id":  p.UserID,
			"max":      r.max,
		}).Warn("Roster full, participant rejected")
		return false, fmt.Errorf("%w: limit %d", ErrRosterFull, r.max)
	}

	r.index[p.UserID] = len(r.entries)
	r.entries = append(r.entries, p)
	r.publishLocked()

	logrus.WithFields(logrus.Fields{
		"function": "Roster.AddOrUpdate",
		"user_id":  p.UserID,
		"size":     len(r.entries),
	}).Debug("Participant added")

	return true, nil
}

// Remove deletes the entry with userID. It reports whether an entry existed.
func (r *Roster) Remove(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[userID]
	if !ok {
		return false
	}

	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	delete(r.index, userID)
	for j := i; j < len(r.entries); j++ {
		r.index[r.entries[j].UserID] = j
	}
	r.publishLocked()

	logrus.WithFields(logrus.Fields{
		"function": "Roster.Remove",
		"user_id":  userID,
		"size":     len(r.entries),
	}).Debug("Participant removed")

	return true
}

// SetSpeaking updates the voice activity flag of a participant.
func (r *Roster) SetSpeaking(userID string, speaking bool) bool {
	return r.mutate(userID, func(p *Participant) bool {
		if p.IsSpeaking == speaking {
			return false
		}
		p.IsSpeaking = speaking
		return true
	})
}

// SetNetworkCondition updates the link assessment of a participant.
func (r *Roster) SetNetworkCondition(userID string, c stats.NetworkCondition) bool {
	return r.mutate(userID, func(p *Participant) bool {
		if p.NetworkCondition == c {
			return false
		}
		p.NetworkCondition = c
		return true
	})
}

func (r *Roster) mutate(userID string, fn func(*Participant) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[userID]
	if !ok {
		return false
	}
	if fn(&r.entries[i]) {
		r.publishLocked()
	}
	return true
}

// Get returns the participant with userID.
func (r *Roster) Get(userID string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[userID]
	if !ok {
		return Participant{}, false
	}
	return r.entries[i], true
}

// Snapshot returns a copy of all participants in join order.
func (r *Roster) Snapshot() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyLocked()
}

// Len returns the number of participants.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear removes all participants. An already empty roster publishes nothing.
func (r *Roster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) == 0 {
		return
	}
	r.entries = nil
	r.index = make(map[string]int)
	r.publishLocked()
}

// Subscribe returns a stream of snapshots taken after each change.
func (r *Roster) Subscribe(buffer int) (<-chan []Participant, func()) {
	return r.updates.Subscribe(buffer)
}

// Close closes all subscriber streams.
func (r *Roster) Close() {
	r.updates.Close()
}

func (r *Roster) copyLocked() []Participant {
	out := make([]Participant, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Roster) publishLocked() {
	r.updates.Publish(r.copyLocked())
}
