package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic   = fmt.Errorf("worker panic")
	ErrEmptyWords    = fmt.Errorf("no words have been found")
	ErrOnlyTopicFile = fmt.Errorf("topics directory contains directories")

	ErrBannedTopic    = fmt.Errorf("this hobby is not allowed")
	ErrEmptyMessage   = fmt.Errorf("message text is empty")
	ErrInvalidPayload = fmt.Errorf("invalid payload")
	ErrNotInRoom      = fmt.Errorf("session has not joined a room")
	ErrRoomMismatch   = fmt.Errorf("message room differs from joined room")
	ErrRateLimited    = fmt.Errorf("rate limit exceeded")
	ErrUnauthorized   = fmt.Errorf("unauthorized")

	ErrStorageUnavailable = fmt.Errorf("storage unavailable")
	ErrDeliveryFailure    = fmt.Errorf("delivery failure")
	ErrSessionClosed      = fmt.Errorf("session closed")
	ErrConnectionLost     = fmt.Errorf("connection lost")
	ErrDispatcherStopped  = fmt.Errorf("dispatcher stopped")
	ErrSearchDisabled     = fmt.Errorf("search index disabled")
)

// Reason maps an error to the short code sent to clients in an error event.
// Errors that are not meant for clients map to "internal".
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case stderrors.Is(err, ErrBannedTopic):
		return "banned_topic"
	case stderrors.Is(err, ErrEmptyMessage):
		return "empty_message"
	case stderrors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case stderrors.Is(err, ErrNotInRoom):
		return "not_in_room"
	case stderrors.Is(err, ErrRoomMismatch):
		return "room_mismatch"
	case stderrors.Is(err, ErrRateLimited):
		return "rate_limited"
	case stderrors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case stderrors.Is(err, ErrDeliveryFailure):
		return "delivery_failure"
	default:
		return "internal"
	}
}

// IsValidation reports whether err was raised before anything got persisted
// and only concerns the caller.
func IsValidation(err error) bool {
	switch Reason(err) {
	case "", "internal", "unauthorized", "delivery_failure":
		return false
	default:
		return true
	}
}
