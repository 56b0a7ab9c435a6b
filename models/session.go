package models

import (
	"time"
)

type Stage string

const (
	StageIdle          Stage = "idle"
	StageAwaitingName  Stage = "awaiting_name"
	StageAwaitingPhone Stage = "awaiting_phone"
)

// ConversationSession is the transient purchase flow of one buyer.
type ConversationSession struct {
	Key       string    `json:"key"`
	EventID   string    `json:"event_id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Stage     Stage     `json:"stage"`
	UpdatedAt time.Time `json:"updated_at"`
}

type DeliveryReport struct {
	EventID    string `json:"event_id"`
	Recipients int    `json:"recipients"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
}

type ReminderRun struct {
	Day     string           `json:"day"`
	Events  int              `json:"events"`
	Sent    int              `json:"sent"`
	Failed  int              `json:"failed"`
	Reports []DeliveryReport `json:"reports"`
}

// TicketIssued is published once per freshly persisted ticket.
type TicketIssued struct {
	TicketID  string `json:"ticket_id"`
	EventID   string `json:"event_id"`
	EventName string `json:"event_name"`
	EventDate string `json:"event_date"`
	Location  string `json:"location"`
	OwnerID   string `json:"owner_id"`
	OwnerName string `json:"owner_name"`
}
