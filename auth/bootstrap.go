package auth

import (
	"context"
	"fmt"

	"github.com/doujins-org/plankit/config"
	"github.com/doujins-org/plankit/dashboard"
	"github.com/doujins-org/plankit/menu"
	"github.com/doujins-org/plankit/pg"
)

// Apps whose report and widget permissions are created after a migration.
var Apps = []string{"common", "input", "output", "execute"}

// RemovePermissions drops the permissions nobody should be granted: those of
// the admin log and of content types, and the ones managing permissions.
func RemovePermissions(ctx context.Context, db pg.DBTX, database string) error {
	s := NewStore(db)
	if _, err := s.RemoveModelPermissions(ctx, "admin", "logentry"); err != nil {
		return fmt.Errorf("%s: %w", database, err)
	}
	if _, err := s.RemoveModelPermissions(ctx, "contenttypes", "contenttype"); err != nil {
		return fmt.Errorf("%s: %w", database, err)
	}
	if _, err := s.DeletePermissionsByCodename(ctx,
		"add_permission", "change_permission", "delete_permission", "view_permission",
	); err != nil {
		return fmt.Errorf("%s: %w", database, err)
	}
	return nil
}

// CreateExtraPermissions returns a post-migrate hook creating the report
// permissions of m and the widget permissions of d for every app. It only
// acts on the default database.
func CreateExtraPermissions(m *menu.Menu, d *dashboard.Registry, apps ...string) func(context.Context, pg.DBTX, string) error {
	return func(ctx context.Context, db pg.DBTX, database string) error {
		if database != config.DefaultDatabase {
			return nil
		}
		s := NewStore(db)
		for _, app := range apps {
			if m != nil {
				if err := m.CreateReportPermissions(ctx, s, app); err != nil {
					return err
				}
			}
			if d != nil {
				if err := d.CreateWidgetPermissions(ctx, s, app); err != nil {
					return err
				}
			}
		}
		return nil
	}
}
