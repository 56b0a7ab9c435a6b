package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"partyflow/internal/status"
	"partyflow/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

const (
	ReconciliationOpen     = "open"
	ReconciliationResolved = "resolved"
)

// Store keeps events, tickets and reconciliation records in PocketBase
// collections.
type Store struct {
	app core.App
}

func New(app core.App) *Store {
	return &Store{app: app}
}

func (s *Store) CreateEvent(ctx context.Context, in models.EventInput) (*models.Event, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Location = strings.TrimSpace(in.Location)

	if in.Name == "" {
		return nil, fmt.Errorf("%w: event name is required", status.ErrValidation)
	}
	if _, err := time.Parse(models.DateLayout, in.Date); err != nil {
		return nil, fmt.Errorf("%w: event date must be YYYY-MM-DD", status.ErrValidation)
	}
	if in.TotalCapacity < 1 {
		return nil, fmt.Errorf("%w: total capacity must be at least 1", status.ErrValidation)
	}
	// gateways cannot take a zero-amount checkout, so a free event could
	// never be confirmed
	if !in.Price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be greater than zero", status.ErrValidation)
	}

	collection, err := s.app.FindCachedCollectionByNameOrId(eventsCollection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", status.ErrPersistence, err)
	}

	record := core.NewRecord(collection)
	record.Set("name", in.Name)
	record.Set("date", in.Date)
	record.Set("location", in.Location)
	record.Set("price", in.Price.InexactFloat64())
	record.Set("total_capacity", in.TotalCapacity)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: create event: %w", status.ErrPersistence, err)
	}

	return eventFromRecord(record), nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	record, err := s.app.FindRecordById(eventsCollection, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrEventNotFound
		}
		return nil, fmt.Errorf("%w: get event: %w", status.ErrPersistence, err)
	}
	return eventFromRecord(record), nil
}

func (s *Store) ListEvents(ctx context.Context) ([]models.Event, error) {
	var records []*core.Record
	err := s.app.RecordQuery(eventsCollection).
		WithContext(ctx).
		OrderBy("date ASC", "name ASC").
		All(&records)
	if err != nil {
		return nil, fmt.Errorf("%w: list events: %w", status.ErrPersistence, err)
	}
	return eventsFromRecords(records), nil
}

// ListEventsOn returns the events whose calendar day equals day exactly.
func (s *Store) ListEventsOn(ctx context.Context, day string) ([]models.Event, error) {
	var records []*core.Record
	err := s.app.RecordQuery(eventsCollection).
		WithContext(ctx).
		AndWhere(dbx.HashExp{"date": day}).
		OrderBy("name ASC").
		All(&records)
	if err != nil {
		return nil, fmt.Errorf("%w: list events on %s: %w", status.ErrPersistence, day, err)
	}
	return eventsFromRecords(records), nil
}

func (s *Store) CountTickets(ctx context.Context, eventID string) (int, error) {
	n, err := s.app.CountRecords(ticketsCollection, dbx.HashExp{"event": eventID})
	if err != nil {
		return 0, fmt.Errorf("%w: count tickets: %w", status.ErrPersistence, err)
	}
	return int(n), nil
}

// InsertTicket writes a ticket without looking at capacity. Sales go
// through IssueTicket.
func (s *Store) InsertTicket(ctx context.Context, d models.TicketDraft) (*models.Ticket, error) {
	record, err := newTicketRecord(s.app, d)
	if err != nil {
		return nil, err
	}
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: insert ticket: %w", status.ErrPersistence, err)
	}
	return ticketFromRecord(record), nil
}

// IssueTicket counts the sold tickets and inserts the new one inside a
// single transaction. PocketBase runs transactions on its non-concurrent
// connection, so two issues for the same event cannot both pass the
// capacity check. A ticket already stored for the draft's payment ref is
// returned with duplicate set and nothing is written.
func (s *Store) IssueTicket(ctx context.Context, d models.TicketDraft) (ticket *models.Ticket, duplicate bool, err error) {
	err = s.app.RunInTransaction(func(txApp core.App) error {
		if d.PaymentRef != "" {
			existing, err := txApp.FindFirstRecordByData(ticketsCollection, "payment_ref", d.PaymentRef)
			if err == nil {
				ticket = ticketFromRecord(existing)
				duplicate = true
				return nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}

		event, err := txApp.FindRecordById(eventsCollection, d.EventID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return status.ErrEventNotFound
			}
			return err
		}

		sold, err := txApp.CountRecords(ticketsCollection, dbx.HashExp{"event": d.EventID})
		if err != nil {
			return err
		}
		if int(sold) >= event.GetInt("total_capacity") {
			return status.ErrSoldOut
		}

		record, err := newTicketRecord(txApp, d)
		if err != nil {
			return err
		}
		if err := txApp.SaveWithContext(ctx, record); err != nil {
			return err
		}
		ticket = ticketFromRecord(record)
		return nil
	})

	switch {
	case err == nil:
		return ticket, duplicate, nil
	case errors.Is(err, status.ErrSoldOut), errors.Is(err, status.ErrEventNotFound):
		return nil, false, err
	default:
		return nil, false, fmt.Errorf("%w: issue ticket: %w", status.ErrPersistence, err)
	}
}

func (s *Store) FindTicketByPaymentRef(ctx context.Context, ref string) (*models.Ticket, error) {
	if ref == "" {
		return nil, status.ErrTicketNotFound
	}
	record, err := s.app.FindFirstRecordByData(ticketsCollection, "payment_ref", ref)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrTicketNotFound
		}
		return nil, fmt.Errorf("%w: find ticket: %w", status.ErrPersistence, err)
	}
	return ticketFromRecord(record), nil
}

// ListTicketsForOwner returns the owner's tickets joined with their events,
// newest first.
func (s *Store) ListTicketsForOwner(ctx context.Context, ownerID string) ([]models.OwnedTicket, error) {
	tickets := []models.OwnedTicket{}
	err := s.app.DB().NewQuery(`
		SELECT t.id, t.event AS event_id, e.name AS event_name, e.date AS event_date,
			e.location AS event_location, t.owner_name, t.contact, t.created
		FROM tickets t
		JOIN events e ON e.id = t.event
		WHERE t.owner_id = {:owner}
		ORDER BY t.created DESC, t.id DESC`).
		Bind(dbx.Params{"owner": ownerID}).
		WithContext(ctx).
		All(&tickets)
	if err != nil {
		return nil, fmt.Errorf("%w: list tickets for owner: %w", status.ErrPersistence, err)
	}
	return tickets, nil
}

// ListTicketOwners returns the distinct owner ids holding a ticket for the event.
func (s *Store) ListTicketOwners(ctx context.Context, eventID string) ([]string, error) {
	owners := []string{}
	err := s.app.DB().
		Select("owner_id").
		Distinct(true).
		From(ticketsCollection).
		Where(dbx.HashExp{"event": eventID}).
		OrderBy("owner_id ASC").
		WithContext(ctx).
		Column(&owners)
	if err != nil {
		return nil, fmt.Errorf("%w: list ticket owners: %w", status.ErrPersistence, err)
	}
	return owners, nil
}

// RecordReconciliation stores a paid checkout that produced no ticket. A
// second call for the same payment ref returns the stored record.
func (s *Store) RecordReconciliation(ctx context.Context, rec models.Reconciliation) (*models.Reconciliation, error) {
	existing, err := s.app.FindFirstRecordByData(reconciliationsCollection, "payment_ref", rec.PaymentRef)
	if err == nil {
		return reconciliationFromRecord(existing), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: find reconciliation: %w", status.ErrPersistence, err)
	}

	collection, err := s.app.FindCachedCollectionByNameOrId(reconciliationsCollection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", status.ErrPersistence, err)
	}

	if rec.Status == "" {
		rec.Status = ReconciliationOpen
	}

	record := core.NewRecord(collection)
	record.Set("payment_ref", rec.PaymentRef)
	record.Set("event_id", rec.EventID)
	record.Set("owner_id", rec.OwnerID)
	record.Set("owner_name", rec.OwnerName)
	record.Set("contact", rec.Contact)
	record.Set("amount", rec.Amount)
	record.Set("reason", rec.Reason)
	record.Set("status", rec.Status)

	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return nil, fmt.Errorf("%w: record reconciliation: %w", status.ErrPersistence, err)
	}
	return reconciliationFromRecord(record), nil
}

func (s *Store) ListOpenReconciliations(ctx context.Context) ([]models.Reconciliation, error) {
	var records []*core.Record
	err := s.app.RecordQuery(reconciliationsCollection).
		WithContext(ctx).
		AndWhere(dbx.HashExp{"status": ReconciliationOpen}).
		OrderBy("created ASC").
		All(&records)
	if err != nil {
		return nil, fmt.Errorf("%w: list reconciliations: %w", status.ErrPersistence, err)
	}

	out := make([]models.Reconciliation, 0, len(records))
	for _, r := range records {
		out = append(out, *reconciliationFromRecord(r))
	}
	return out, nil
}

type eventSales struct {
	ID    string  `db:"id"`
	Name  string  `db:"name"`
	Price float64 `db:"price"`
	Sold  int     `db:"sold"`
}

// SalesStats sums revenue over every sold ticket and picks the event with
// the most tickets sold.
func (s *Store) SalesStats(ctx context.Context) (*models.SalesStats, error) {
	var rows []eventSales
	err := s.app.DB().NewQuery(`
		SELECT e.id, e.name, e.price, COUNT(t.id) AS sold
		FROM events e
		LEFT JOIN tickets t ON t.event = e.id
		GROUP BY e.id, e.name, e.price
		ORDER BY sold DESC, e.name ASC`).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("%w: sales stats: %w", status.ErrPersistence, err)
	}

	stats := &models.SalesStats{TotalRevenue: decimal.Zero, EventCount: len(rows)}
	for _, row := range rows {
		price := decimal.NewFromFloat(row.Price)
		stats.TotalRevenue = stats.TotalRevenue.Add(price.Mul(decimal.NewFromInt(int64(row.Sold))))
		stats.TicketsSold += row.Sold
	}
	if len(rows) > 0 && rows[0].Sold > 0 {
		stats.TopEvent = rows[0].Name
	}
	return stats, nil
}

func newTicketRecord(app core.App, d models.TicketDraft) (*core.Record, error) {
	collection, err := app.FindCachedCollectionByNameOrId(ticketsCollection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", status.ErrPersistence, err)
	}

	record := core.NewRecord(collection)
	record.Set("event", d.EventID)
	record.Set("owner_id", d.OwnerID)
	record.Set("owner_name", d.OwnerName)
	record.Set("contact", d.Contact)
	record.Set("payment_ref", d.PaymentRef)
	return record, nil
}

func eventFromRecord(r *core.Record) *models.Event {
	return &models.Event{
		ID:            r.Id,
		Name:          r.GetString("name"),
		Date:          r.GetString("date"),
		Location:      r.GetString("location"),
		Price:         decimal.NewFromFloat(r.GetFloat("price")),
		TotalCapacity: r.GetInt("total_capacity"),
		CreatedAt:     r.GetDateTime("created").Time(),
	}
}

func eventsFromRecords(records []*core.Record) []models.Event {
	events := make([]models.Event, 0, len(records))
	for _, r := range records {
		events = append(events, *eventFromRecord(r))
	}
	return events
}

func ticketFromRecord(r *core.Record) *models.Ticket {
	return &models.Ticket{
		ID:          r.Id,
		EventID:     r.GetString("event"),
		OwnerID:     r.GetString("owner_id"),
		OwnerName:   r.GetString("owner_name"),
		Contact:     r.GetString("contact"),
		PaymentRef:  r.GetString("payment_ref"),
		PurchasedAt: r.GetDateTime("created").Time(),
	}
}

func reconciliationFromRecord(r *core.Record) *models.Reconciliation {
	return &models.Reconciliation{
		ID:         r.Id,
		PaymentRef: r.GetString("payment_ref"),
		EventID:    r.GetString("event_id"),
		OwnerID:    r.GetString("owner_id"),
		OwnerName:  r.GetString("owner_name"),
		Contact:    r.GetString("contact"),
		Amount:     r.GetString("amount"),
		Reason:     r.GetString("reason"),
		Status:     r.GetString("status"),
	}
}
