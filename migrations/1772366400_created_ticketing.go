package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"

	"github.com/shaunfitzgarald/events-app-sub001/internal/store/pbstore"
)

func init() {
	m.Register(func(app core.App) error {
		return pbstore.EnsureCollections(app)
	}, func(app core.App) error {
		return pbstore.DropCollections(app)
	}, "1772366400_created_ticketing.go")
}
