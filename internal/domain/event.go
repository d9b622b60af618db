package domain

import "time"

// EventStatus represents the publish status of an event
type EventStatus string

const (
	EventStatusDraft     EventStatus = "DRAFT"
	EventStatusPublished EventStatus = "PUBLISHED"
	EventStatusCancelled EventStatus = "CANCELLED"
)

// String returns the string representation of EventStatus
func (s EventStatus) String() string {
	return string(s)
}

// Event is the catalog entity seats belong to. The booking core never
// mutates events; it only gates holds on the publish status.
type Event struct {
	ID            int64       `json:"id"`
	Title         string      `json:"title"`
	Venue         string      `json:"venue"`
	TotalCapacity int         `json:"total_capacity"`
	Status        EventStatus `json:"status"`
	StartsAt      time.Time   `json:"starts_at"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// IsBookable reports whether holds may be placed against this event
func (e *Event) IsBookable() bool {
	return e.Status == EventStatusPublished
}
