package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("affiliates")

		collection.Fields.Add(
			&core.TextField{Name: "user_id", Required: true, Max: 50},
			&core.TextField{Name: "code", Required: true, Max: 20},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_affiliates_code", true, "code", "")
		collection.AddIndex("idx_affiliates_user", true, "user_id", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("affiliates")
		if err != nil {
			return nil
		}
		return app.Delete(collection)
	})
}
