package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("raffles")

		collection.Fields.Add(
			&core.TextField{Name: "title", Required: true, Max: 200},
			&core.TextField{Name: "slug", Required: true, Max: 100},
			&core.SelectField{Name: "status", Required: true, MaxSelect: 1, Values: []string{"draft", "active", "closed", "drawn"}},
			&core.NumberField{Name: "total_numbers", Required: true, OnlyInt: true},
			&core.NumberField{Name: "price_cents", Required: true, OnlyInt: true},
			&core.NumberField{Name: "max_per_user", OnlyInt: true},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_raffles_slug", true, "slug", "")
		collection.AddIndex("idx_raffles_status", false, "status", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("raffles")
		if err != nil {
			return nil
		}
		return app.Delete(collection)
	})
}
