package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeatLockKey(t *testing.T) {
	tests := []struct {
		key         string
		wantEventID int64
		wantSeatID  int64
		wantOK      bool
	}{
		{"seat:1:10:HELD", 1, 10, true},
		{"seat:42:1234567:HELD", 42, 1234567, true},
		{"seat:1:10:BOOKED", 0, 0, false},
		{"seat:1:10", 0, 0, false},
		{"seat:x:10:HELD", 0, 0, false},
		{"seat:1:y:HELD", 0, 0, false},
		{"1:seat_status", 0, 0, false},
		{"lock:event:1", 0, 0, false},
		{"", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			eventID, seatID, ok := parseSeatLockKey(tt.key)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantEventID, eventID)
				assert.Equal(t, tt.wantSeatID, seatID)
			}
		})
	}
}

func TestHandleExpiredKeyPublishesTransition(t *testing.T) {
	publisher := &mockPublisher{}
	w := NewExpirySignaler(nil, publisher)

	w.handleExpiredKey(context.Background(), "seat:1:10:HELD")
	w.handleExpiredKey(context.Background(), "seat:1:11:HELD")

	require.Len(t, publisher.seatExpiries, 2)
	assert.Equal(t, [2]int64{1, 10}, publisher.seatExpiries[0])
	assert.Equal(t, [2]int64{1, 11}, publisher.seatExpiries[1])
}

func TestHandleExpiredKeyIgnoresForeignKeys(t *testing.T) {
	publisher := &mockPublisher{}
	w := NewExpirySignaler(nil, publisher)

	// overlay hashes and unrelated keys expire through the same channel
	w.handleExpiredKey(context.Background(), "1:seat_status")
	w.handleExpiredKey(context.Background(), "session:abc")
	w.handleExpiredKey(context.Background(), "seat:not:numeric:HELD")

	assert.Empty(t, publisher.seatExpiries)
}
