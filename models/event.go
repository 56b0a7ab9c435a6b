package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-day layout events are stored and scanned with.
const DateLayout = "2006-01-02"

type Event struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Date          string          `json:"date"` // YYYY-MM-DD
	Location      string          `json:"location"`
	Price         decimal.Decimal `json:"price"`
	TotalCapacity int             `json:"total_capacity"`
	CreatedAt     time.Time       `json:"created_at"`
}

type EventInput struct {
	Name          string          `json:"name"`
	Date          string          `json:"date"`
	Location      string          `json:"location"`
	Price         decimal.Decimal `json:"price"`
	TotalCapacity int             `json:"total_capacity"`
}

// EventListing is an event as shown to buyers, with its derived remaining capacity.
type EventListing struct {
	Event
	Remaining int `json:"remaining"`
}

type SalesStats struct {
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TicketsSold  int             `json:"tickets_sold"`
	TopEvent     string          `json:"top_event"`
	EventCount   int             `json:"event_count"`
}
