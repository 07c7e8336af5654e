package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("orders")

		collection.Fields.Add(
			&core.TextField{Name: "raffle_id", Required: true, Max: 50},
			&core.TextField{Name: "buyer_id", Required: true, Max: 50},
			&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{"pending", "paid", "expired", "canceled"}},
			&core.NumberField{Name: "amount_cents", Required: true, OnlyInt: true},
			&core.DateField{Name: "expires_at"},
			&core.TextField{Name: "affiliate_code", Max: 20},
			&core.DateField{Name: "paid_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// The sweeper scans by (status, expires_at).
		collection.AddIndex("idx_orders_due", false, "status, expires_at", "")
		collection.AddIndex("idx_orders_buyer", false, "raffle_id, buyer_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("orders")
		if err != nil {
			return nil
		}
		return app.Delete(collection)
	})
}
