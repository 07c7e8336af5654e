package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("platform_events")

		collection.Fields.Add(
			&core.TextField{Name: "event_type", Required: true, Max: 60},
			&core.SelectField{Name: "level", Required: true, MaxSelect: 1, Values: []string{"info", "warn", "error"}},
			&core.TextField{Name: "request_id", Max: 60},
			&core.TextField{Name: "order_id", Max: 50},
			&core.TextField{Name: "raffle_id", Max: 50},
			&core.TextField{Name: "provider", Max: 30},
			&core.JSONField{Name: "payload", MaxSize: 100000},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_platform_events_type", false, "event_type, created", "")
		collection.AddIndex("idx_platform_events_order", false, "order_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("platform_events")
		if err != nil {
			return nil
		}
		return app.Delete(collection)
	})
}
