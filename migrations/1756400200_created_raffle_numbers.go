package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("raffle_numbers")

		collection.Fields.Add(
			&core.TextField{Name: "raffle_id", Required: true, Max: 50},
			&core.NumberField{Name: "number", OnlyInt: true},
			&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{"available", "reserved", "sold"}},
			&core.TextField{Name: "order_id", Max: 50},
			&core.TextField{Name: "buyer_id", Max: 50},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// One row per slot; the conditional claim update relies on this.
		collection.AddIndex("idx_raffle_numbers_slot", true, "raffle_id, number", "")
		collection.AddIndex("idx_raffle_numbers_status", false, "raffle_id, status", "")
		collection.AddIndex("idx_raffle_numbers_order", false, "order_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("raffle_numbers")
		if err != nil {
			return nil
		}
		return app.Delete(collection)
	})
}
