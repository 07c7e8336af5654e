package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("payments")

		collection.Fields.Add(
			&core.TextField{Name: "order_id", Required: true, Max: 50},
			&core.TextField{Name: "provider", Required: true, Max: 30},
			&core.SelectField{Name: "method", Required: true, MaxSelect: 1, Values: []string{"pix", "card"}},
			&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{"pending", "initiated", "failed"}},
			&core.TextField{Name: "provider_reference", Max: 100},
			&core.TextField{Name: "pix_qr_code", Max: 20000},
			&core.TextField{Name: "pix_copy_paste", Max: 2000},
			&core.URLField{Name: "checkout_url"},
			&core.JSONField{Name: "raw", MaxSize: 100000},
			&core.DateField{Name: "expires_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// At most one open attempt per (order, provider, method); a losing
		// concurrent insert hits this and re-reads the winner.
		collection.AddIndex("idx_payments_active", true, "order_id, provider, method", "status IN ('pending', 'initiated')")
		collection.AddIndex("idx_payments_order", false, "order_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("payments")
		if err != nil {
			return nil
		}
		return app.Delete(collection)
	})
}
