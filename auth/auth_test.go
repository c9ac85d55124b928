package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doujins-org/plankit/dashboard"
	"github.com/doujins-org/plankit/internal/pgtest"
	"github.com/doujins-org/plankit/menu"
)

func TestPrincipalPermissions(t *testing.T) {
	p := Principal{User: User{IsActive: true}, Perms: map[string]struct{}{"output.view_buffer_overview": {}}}
	assert.False(t, p.Superuser())
	assert.True(t, p.HasPerm("output.view_buffer_overview"))
	assert.False(t, p.HasPerm("output.view_resource_overview"))

	super := Principal{User: User{IsActive: true, IsSuperuser: true}}
	assert.True(t, super.Superuser())
	assert.True(t, super.HasPerm("anything.at_all"))

	inactive := Principal{User: User{IsSuperuser: true}, Perms: p.Perms}
	assert.False(t, inactive.Superuser())
	assert.False(t, inactive.HasPerm("output.view_buffer_overview"))
}

func TestUserByUsername(t *testing.T) {
	db := pgtest.New().On("FROM common_user", pgtest.Result{Rows: [][]any{{int64(7), "planner", false, true}}})
	u, err := NewStore(db).UserByUsername(context.Background(), " planner ")
	require.NoError(t, err)
	assert.Equal(t, User{ID: 7, Username: "planner", IsActive: true}, *u)
	assert.Equal(t, "planner", db.Calls[0].Args[0])
}

func TestUserByUsernameNotFound(t *testing.T) {
	s := NewStore(pgtest.New())
	_, err := s.UserByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = s.UserByUsername(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestPrincipalLoadsPermissions(t *testing.T) {
	db := pgtest.New().
		On("FROM common_user_permissions", pgtest.Result{Rows: [][]any{
			{"output", "view_resource_overview"},
			{"common", "view_user"},
		}}).
		On("FROM common_user", pgtest.Result{Rows: [][]any{{int64(3), "viewer", false, true}}})

	p, err := NewStore(db).Principal(context.Background(), "viewer")
	require.NoError(t, err)
	assert.True(t, p.HasPerm("common.view_user"))
	assert.True(t, p.HasPerm("output.view_resource_overview"))
	assert.False(t, p.HasPerm("output.view_buffer_overview"))

	calls := db.Executed("FROM common_user_permissions")
	require.Len(t, calls, 1)
	assert.Equal(t, int64(3), calls[0].Args[0])
}

func TestEnsurePermission(t *testing.T) {
	db := pgtest.New().On("INSERT INTO django_content_type", pgtest.Result{Rows: [][]any{{int64(42)}}})

	err := NewStore(db).EnsurePermission(context.Background(), "output", "resource_overview", "view_resource_overview", "")
	require.NoError(t, err)

	calls := db.Executed("INSERT INTO auth_permission")
	require.Len(t, calls, 1)
	assert.Equal(t, []any{"view_resource_overview", int64(42), "view_resource_overview"}, calls[0].Args)
}

func TestEnsurePermissionValidates(t *testing.T) {
	s := NewStore(pgtest.New())
	assert.Error(t, s.EnsurePermission(context.Background(), "output", "x", "", "name"))
	assert.Error(t, s.EnsurePermission(context.Background(), "", "x", "view_x", "name"))

	var nilStore Store
	_, err := nilStore.RemoveModelPermissions(context.Background(), "a", "b")
	assert.Error(t, err)
}

func TestRemoveModelPermissions(t *testing.T) {
	db := pgtest.New().On("DELETE FROM auth_permission p", pgtest.Result{Tag: "DELETE 3"})
	s := NewStore(db)

	n, err := s.RemoveModelPermissions(context.Background(), "common", "parameter", "view_parameter")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	calls := db.Executed("DELETE FROM auth_permission p")
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].SQL, "NOT (p.codename = ANY($3::text[]))")
	assert.Equal(t, []any{"common", "parameter", []string{"view_parameter"}}, calls[0].Args)

	_, err = s.RemoveModelPermissions(context.Background(), "admin", "logentry")
	require.NoError(t, err)
	calls = db.Executed("DELETE FROM auth_permission p")
	require.Len(t, calls, 2)
	assert.NotContains(t, calls[1].SQL, "$3")
}

func TestRemovePermissions(t *testing.T) {
	db := pgtest.New()
	require.NoError(t, RemovePermissions(context.Background(), db, "scenario1"))

	require.Len(t, db.Calls, 3)
	assert.Equal(t, []any{"admin", "logentry"}, db.Calls[0].Args)
	assert.Equal(t, []any{"contenttypes", "contenttype"}, db.Calls[1].Args)
	assert.Equal(t, []any{[]string{"add_permission", "change_permission", "delete_permission", "view_permission"}}, db.Calls[2].Args)
}

func TestRemovePermissionsError(t *testing.T) {
	db := pgtest.New().On("DELETE", pgtest.Result{Err: errors.New("locked")})
	err := RemovePermissions(context.Background(), db, "default")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}

func TestCreateExtraPermissionsDefaultDatabaseOnly(t *testing.T) {
	m := menu.New()
	menu.RegisterDefaults(m, "", "1.0.0")
	d := dashboard.New()
	dashboard.RegisterDefaults(d)
	hook := CreateExtraPermissions(m, d, Apps...)

	db := pgtest.New()
	require.NoError(t, hook(context.Background(), db, "scenario1"))
	assert.Empty(t, db.Calls)

	db = pgtest.New().On("INSERT INTO django_content_type", pgtest.Result{Rows: [][]any{{int64(1)}}})
	require.NoError(t, hook(context.Background(), db, "default"))

	var codenames []any
	for _, c := range db.Executed("INSERT INTO auth_permission") {
		codenames = append(codenames, c.Args[2])
	}
	// Two reports, then the same codenames under the two output widgets.
	assert.Equal(t, []any{
		"view_buffer_overview", "view_resource_overview",
		"view_buffer_overview", "view_resource_overview",
	}, codenames)
}
