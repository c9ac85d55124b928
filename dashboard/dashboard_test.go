package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doujins-org/plankit/report"
)

type ensured struct {
	app, model, codename string
}

type store struct {
	got []ensured
	err error
}

func (s *store) EnsurePermission(_ context.Context, app, model, codename, _ string) error {
	s.got = append(s.got, ensured{app, model, codename})
	return s.err
}

func TestRegisterValidates(t *testing.T) {
	r := New()
	assert.Error(t, r.Register(Widget{App: "output"}))
	assert.Error(t, r.Register(Widget{Name: "w"}))
	assert.Empty(t, r.Widgets())
}

func TestRegisterReplaces(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Widget{Name: "b", App: "output", Title: "old"}))
	require.NoError(t, r.Register(Widget{Name: "a", App: "output"}))
	require.NoError(t, r.Register(Widget{Name: "b", App: "output", Title: "new"}))

	ws := r.Widgets()
	require.Len(t, ws, 2)
	assert.Equal(t, "a", ws[0].Name)
	assert.Equal(t, "new", ws[1].Title)
}

func TestCreateWidgetPermissions(t *testing.T) {
	r := New()
	RegisterDefaults(r)

	s := &store{}
	require.NoError(t, r.CreateWidgetPermissions(context.Background(), s, "output"))
	assert.Equal(t, []ensured{
		{"output", "inventory_by_location", "view_buffer_overview"},
		{"output", "resource_utilization", "view_resource_overview"},
	}, s.got)

	s = &store{}
	require.NoError(t, r.CreateWidgetPermissions(context.Background(), s, "common"))
	assert.Empty(t, s.got)
}

func TestCreateWidgetPermissionsError(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Widget{Name: "w", App: "output", Permissions: []report.Permission{{Codename: "view_w"}}}))
	err := r.CreateWidgetPermissions(context.Background(), &store{err: errors.New("denied")}, "output")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "widget w")
}
