package pbstore

import (
	"github.com/pocketbase/pocketbase/core"

	"github.com/shaunfitzgarald/events-app-sub001/internal/store"
	"github.com/shaunfitzgarald/events-app-sub001/models"
)

// EnsureCollections creates the ticketing collections and adds the ticket
// settings fields to an existing events collection. It is safe to run more
// than once.
func EnsureCollections(app core.App) error {
	if err := ensureEvents(app); err != nil {
		return err
	}
	if err := ensureTickets(app); err != nil {
		return err
	}
	return ensureHolds(app)
}

func findOrNew(app core.App, name string) *core.Collection {
	collection, err := app.FindCollectionByNameOrId(name)
	if err != nil {
		return core.NewBaseCollection(name)
	}
	return collection
}

// addMissing appends fields that the collection does not already have, so
// existing field ids and data stay untouched.
func addMissing(collection *core.Collection, fields ...core.Field) {
	for _, f := range fields {
		if collection.Fields.GetByName(f.GetName()) == nil {
			collection.Fields.Add(f)
		}
	}
}

func timestamps() []core.Field {
	return []core.Field{
		&core.AutodateField{Name: "created", OnCreate: true},
		&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
	}
}

func ensureEvents(app core.App) error {
	collection := findOrNew(app, store.CollectionEvents)

	addMissing(collection,
		&core.TextField{Name: "name"},
		&core.BoolField{Name: "tickets_enabled"},
		&core.NumberField{Name: "tickets_available", OnlyInt: true},
		&core.NumberField{Name: "tickets_sold", OnlyInt: true},
		&core.NumberField{Name: "ticket_price"},
		&core.TextField{Name: "ticket_currency", Max: 3},
		&core.BoolField{Name: "ticket_verification_required"},
	)
	addMissing(collection, timestamps()...)

	return app.Save(collection)
}

func ensureTickets(app core.App) error {
	collection := findOrNew(app, store.CollectionTickets)

	addMissing(collection,
		&core.TextField{Name: "ticket_number", Required: true, Min: 16, Max: 16, Pattern: `^\d{16}$`},
		&core.TextField{Name: "verification_code", Max: 6},
		&core.TextField{Name: "event_id", Required: true},
		&core.TextField{Name: "user_id", Required: true},
		&core.NumberField{Name: "price"},
		&core.TextField{Name: "currency", Max: 3},
		&core.JSONField{Name: "payment"},
		&core.SelectField{
			Name:      "status",
			Required:  true,
			MaxSelect: 1,
			Values: []string{
				string(models.TicketStatusActive),
				string(models.TicketStatusUsed),
				string(models.TicketStatusCancelled),
				string(models.TicketStatusRefunded),
			},
		},
		&core.BoolField{Name: "checked_in"},
		&core.DateField{Name: "checked_in_at"},
		&core.DateField{Name: "purchased_at"},
	)
	addMissing(collection, timestamps()...)

	collection.AddIndex("idx_tickets_ticket_number", true, "ticket_number", "")
	collection.AddIndex("idx_tickets_event_id", false, "event_id", "")
	collection.AddIndex("idx_tickets_user_id", false, "user_id", "")

	return app.Save(collection)
}

func ensureHolds(app core.App) error {
	collection := findOrNew(app, store.CollectionHolds)

	addMissing(collection,
		&core.TextField{Name: "ticket_number", Required: true},
		&core.TextField{Name: "user_id"},
		&core.DateField{Name: "held_at"},
		&core.DateField{Name: "expires_at", Required: true},
	)
	addMissing(collection, timestamps()...)

	collection.AddIndex("idx_ticket_holds_ticket_number", true, "ticket_number", "")
	collection.AddIndex("idx_ticket_holds_expires_at", false, "expires_at", "")

	return app.Save(collection)
}

// DropCollections removes the collections EnsureCollections created. The
// events collection is left in place.
func DropCollections(app core.App) error {
	for _, name := range []string{store.CollectionHolds, store.CollectionTickets} {
		collection, err := app.FindCollectionByNameOrId(name)
		if err != nil {
			continue
		}
		if err := app.Delete(collection); err != nil {
			return err
		}
	}
	return nil
}
