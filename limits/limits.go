// Package limits provides centralized size and count limits for the call engine.
// This ensures consistent validation across signaling, roster and session code.
package limits

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const (
	// MaxSignalingMessage is the largest signaling frame accepted from the wire (64 KiB)
	MaxSignalingMessage = 64 * 1024

	// MaxParticipants is the largest group call roster, including invitees
	MaxParticipants = 64

	// MaxDisplayName is the longest display name kept in a roster entry, in runes
	MaxDisplayName = 64

	// MaxUserID is the longest accepted user identifier, in bytes
	MaxUserID = 128
)

var (
	// ErrEmpty indicates an empty value was provided
	ErrEmpty = errors.New("empty value")

	// ErrTooLarge indicates a value exceeds its limit
	ErrTooLarge = errors.New("value too large")
)

// ValidateUserID checks that id is non-empty and at most MaxUserID bytes.
func ValidateUserID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: user id", ErrEmpty)
	}
	if len(id) > MaxUserID {
		return fmt.Errorf("%w: user id length %d exceeds limit %d", ErrTooLarge, len(id), MaxUserID)
	}
	return nil
}

// ValidateParticipantCount checks a group call invitee count against MaxParticipants.
func ValidateParticipantCount(n int) error {
	if n == 0 {
		return fmt.Errorf("%w: participant list", ErrEmpty)
	}
	if n > MaxParticipants {
		return fmt.Errorf("%w: %d participants exceeds limit %d", ErrTooLarge, n, MaxParticipants)
	}
	return nil
}

// ValidateSignalingMessage checks a raw signaling frame against MaxSignalingMessage.
func ValidateSignalingMessage(frame []byte) error {
	if len(frame) == 0 {
		return fmt.Errorf("%w: signaling message", ErrEmpty)
	}
	if len(frame) > MaxSignalingMessage {
		return fmt.Errorf("%w: signaling message size %d exceeds limit %d", ErrTooLarge, len(frame), MaxSignalingMessage)
	}
	return nil
}

// TruncateDisplayName shortens name to MaxDisplayName runes.
// Invalid UTF-8 sequences count as one rune each.
func TruncateDisplayName(name string) string {
	if utf8.RuneCountInString(name) <= MaxDisplayName {
		return name
	}
	count := 0
	for i := range name {
		if count == MaxDisplayName {
			return name[:i]
		}
		count++
	}
	return name
}
