// Package limits provides centralized size constants and validation functions
// for the call engine.
//
// # Limits
//
//   - MaxSignalingMessage (64 KiB): the largest signaling frame read from the
//     WebSocket connection. The real transport sets it as the read limit.
//
//   - MaxParticipants (64): the largest group call, enforced both when a group
//     call is started and when the roster grows through join events.
//
//   - MaxDisplayName (64 runes): longer display names are truncated, not rejected.
//
//   - MaxUserID (128 bytes): the longest user identifier accepted as a call target.
//
// # Validation Functions
//
//	if err := limits.ValidateUserID(id); err != nil {
//	    // ErrEmpty or ErrTooLarge
//	}
//
// All errors wrap ErrEmpty or ErrTooLarge and carry the offending size.
package limits
