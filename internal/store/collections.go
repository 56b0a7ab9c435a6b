package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

const (
	eventsCollection          = "events"
	ticketsCollection         = "tickets"
	reconciliationsCollection = "reconciliations"
)

// EnsureCollections creates the events, tickets and reconciliations
// collections when they are missing. Existing collections are left as is.
func EnsureCollections(app core.App) error {
	events, err := ensureCollection(app, eventsCollection, func(c *core.Collection) error {
		c.Fields.Add(
			&core.TextField{Name: "name", Required: true, Max: 200},
			&core.TextField{Name: "date", Required: true, Pattern: `^\d{4}-\d{2}-\d{2}$`},
			&core.TextField{Name: "location", Max: 300},
			&core.NumberField{Name: "price", Min: types.Pointer(0.0)},
			&core.NumberField{Name: "total_capacity", Required: true, OnlyInt: true, Min: types.Pointer(1.0)},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		c.AddIndex("idx_events_date", false, "date", "")
		return nil
	})
	if err != nil {
		return err
	}

	_, err = ensureCollection(app, ticketsCollection, func(c *core.Collection) error {
		c.Fields.Add(
			&core.RelationField{Name: "event", Required: true, CollectionId: events.Id, MaxSelect: 1},
			&core.TextField{Name: "owner_id", Required: true, Max: 100},
			&core.TextField{Name: "owner_name", Max: 200},
			&core.TextField{Name: "contact", Max: 50},
			&core.TextField{Name: "payment_ref", Max: 255},
			&core.AutodateField{Name: "created", OnCreate: true},
		)
		c.AddIndex("idx_tickets_event", false, "event", "")
		c.AddIndex("idx_tickets_owner", false, "owner_id", "")
		// one ticket per gateway checkout
		c.AddIndex("idx_tickets_payment_ref", true, "payment_ref", "payment_ref != ''")
		return nil
	})
	if err != nil {
		return err
	}

	_, err = ensureCollection(app, reconciliationsCollection, func(c *core.Collection) error {
		c.Fields.Add(
			&core.TextField{Name: "payment_ref", Required: true, Max: 255},
			&core.TextField{Name: "event_id", Max: 100},
			&core.TextField{Name: "owner_id", Max: 100},
			&core.TextField{Name: "owner_name", Max: 200},
			&core.TextField{Name: "contact", Max: 50},
			&core.TextField{Name: "amount", Max: 50},
			&core.TextField{Name: "reason", Max: 500},
			&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{ReconciliationOpen, ReconciliationResolved}},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)
		c.AddIndex("idx_reconciliations_payment_ref", true, "payment_ref", "")
		return nil
	})
	return err
}

// DropCollections removes the collections in reverse dependency order.
func DropCollections(app core.App) error {
	for _, name := range []string{reconciliationsCollection, ticketsCollection, eventsCollection} {
		collection, err := app.FindCollectionByNameOrId(name)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return err
		}
		if err := app.Delete(collection); err != nil {
			return fmt.Errorf("delete collection %s: %w", name, err)
		}
	}
	return nil
}

func ensureCollection(app core.App, name string, define func(c *core.Collection) error) (*core.Collection, error) {
	existing, err := app.FindCollectionByNameOrId(name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find collection %s: %w", name, err)
	}

	collection := core.NewBaseCollection(name)
	if err := define(collection); err != nil {
		return nil, err
	}
	if err := app.Save(collection); err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}
	return collection, nil
}
