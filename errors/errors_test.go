package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReason(t *testing.T) {
	req := require.New(t)

	tests := []struct {
		err        error
		reason     string
		validation bool
	}{
		{nil, "", false},
		{ErrBannedTopic, "banned_topic", true},
		{fmt.Errorf("join %q: %w", "politics club", ErrBannedTopic), "banned_topic", true},
		{ErrEmptyMessage, "empty_message", true},
		{ErrInvalidPayload, "invalid_payload", true},
		{ErrNotInRoom, "not_in_room", true},
		{ErrRoomMismatch, "room_mismatch", true},
		{ErrRateLimited, "rate_limited", true},
		{ErrUnauthorized, "unauthorized", false},
		{ErrStorageUnavailable, "internal", false},
		{fmt.Errorf("replay: %w", ErrDeliveryFailure), "delivery_failure", false},
		{fmt.Errorf("boom"), "internal", false},
	}

	for _, tt := range tests {
		req.Equal(tt.reason, Reason(tt.err), "err=%v", tt.err)
		req.Equal(tt.validation, IsValidation(tt.err), "err=%v", tt.err)
	}
}
