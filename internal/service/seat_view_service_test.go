package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seatsurge/booking-core/internal/domain"
	"github.com/seatsurge/booking-core/internal/repository"
)

type viewOverlay struct {
	mockOverlay
	overlay    map[int64]domain.SeatStatus
	overlayErr error
}

func (m *viewOverlay) GetEventOverlay(ctx context.Context, eventID int64) (map[int64]domain.SeatStatus, error) {
	if m.overlayErr != nil {
		return nil, m.overlayErr
	}
	return m.overlay, nil
}

func seatRow(id int64, status domain.SeatStatus) *domain.Seat {
	return &domain.Seat{
		ID:        id,
		EventID:   1,
		Section:   "A",
		RowLetter: "B",
		Price:     decimal.NewFromInt(50),
		Status:    status,
	}
}

func newSeatViewFixture(overlay *viewOverlay) (SeatViewService, *mockSeatRepo) {
	events := &mockEventRepo{}
	seats := &mockSeatRepo{
		FindByEventIDFunc: func(ctx context.Context, eventID int64) ([]*domain.Seat, error) {
			return []*domain.Seat{
				seatRow(10, domain.SeatStatusAvailable),
				seatRow(11, domain.SeatStatusAvailable),
				seatRow(12, domain.SeatStatusBooked),
			}, nil
		},
	}
	return NewSeatViewService(events, seats, overlay), seats
}

func TestGetEventWithSeatsMergesOverlay(t *testing.T) {
	overlay := &viewOverlay{overlay: map[int64]domain.SeatStatus{
		10: domain.SeatStatusHeld,
	}}
	svc, _ := newSeatViewFixture(overlay)

	view, err := svc.GetEventWithSeats(context.Background(), 1)
	require.NoError(t, err)

	require.Len(t, view.Seats, 3)
	// overlay entry wins over the DB row
	assert.Equal(t, "HELD", view.Seats[0].Status)
	// no overlay entry: DB status stands
	assert.Equal(t, "AVAILABLE", view.Seats[1].Status)
	assert.Equal(t, "BOOKED", view.Seats[2].Status)

	assert.Equal(t, int64(1), view.Summary["HELD"])
	assert.Equal(t, int64(1), view.Summary["AVAILABLE"])
	assert.Equal(t, int64(1), view.Summary["BOOKED"])
}

func TestGetEventWithSeatsDegradesWithoutOverlay(t *testing.T) {
	overlay := &viewOverlay{overlayErr: errors.New("connection refused")}
	svc, _ := newSeatViewFixture(overlay)

	view, err := svc.GetEventWithSeats(context.Background(), 1)
	require.NoError(t, err)

	// DB view served unchanged
	assert.Equal(t, "AVAILABLE", view.Seats[0].Status)
	assert.Equal(t, "AVAILABLE", view.Seats[1].Status)
	assert.Equal(t, "BOOKED", view.Seats[2].Status)
}

func TestGetEventWithSeatsIgnoresInvalidOverlayValues(t *testing.T) {
	overlay := &viewOverlay{overlay: map[int64]domain.SeatStatus{
		10: "GARBAGE",
	}}
	svc, _ := newSeatViewFixture(overlay)

	view, err := svc.GetEventWithSeats(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "AVAILABLE", view.Seats[0].Status)
}

func TestGetEventWithSeatsUnpublishedEvent(t *testing.T) {
	events := &mockEventRepo{
		FindByIDFunc: func(ctx context.Context, id int64) (*domain.Event, error) {
			return &domain.Event{ID: id, Status: domain.EventStatusDraft}, nil
		},
	}
	seats := &mockSeatRepo{
		FindByEventIDFunc: func(ctx context.Context, eventID int64) ([]*domain.Seat, error) {
			t.Fatal("seats must not be loaded for an unpublished event")
			return nil, nil
		},
	}
	svc := NewSeatViewService(events, seats, &viewOverlay{})

	_, err := svc.GetEventWithSeats(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

var _ repository.SeatStatusRepository = (*viewOverlay)(nil)
