// Package dashboard keeps the registry of dashboard widgets and creates the
// permissions they declare.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/doujins-org/plankit/menu"
	"github.com/doujins-org/plankit/report"
)

type Widget struct {
	Name        string
	Title       string
	App         string
	Permissions []report.Permission
}

type Registry struct {
	mu      sync.RWMutex
	widgets map[string]Widget
}

func New() *Registry {
	return &Registry{widgets: map[string]Widget{}}
}

// Register adds w, replacing any widget with the same name.
func (r *Registry) Register(w Widget) error {
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("widget name is required")
	}
	if strings.TrimSpace(w.App) == "" {
		return fmt.Errorf("widget %s: app is required", w.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.widgets[w.Name] = w
	return nil
}

// Widgets returns the registered widgets ordered by name.
func (r *Registry) Widgets() []Widget {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Widget, 0, len(r.widgets))
	for _, w := range r.widgets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CreateWidgetPermissions ensures the permissions of every widget of app,
// each under the content type named after the widget.
func (r *Registry) CreateWidgetPermissions(ctx context.Context, store menu.PermissionStore, app string) error {
	for _, w := range r.Widgets() {
		if w.App != app {
			continue
		}
		for _, p := range w.Permissions {
			if err := store.EnsurePermission(ctx, w.App, w.Name, p.Codename, p.Name); err != nil {
				return fmt.Errorf("widget %s: %w", w.Name, err)
			}
		}
	}
	return nil
}

// RegisterDefaults adds the widgets shipped with the application.
func RegisterDefaults(r *Registry) {
	_ = r.Register(Widget{
		Name:  "resource_utilization",
		Title: "Resource utilization",
		App:   "output",
		Permissions: []report.Permission{
			{Codename: "view_resource_overview", Name: "Can view Resource report"},
		},
	})
	_ = r.Register(Widget{
		Name:  "inventory_by_location",
		Title: "Inventory by location",
		App:   "output",
		Permissions: []report.Permission{
			{Codename: "view_buffer_overview", Name: "Can view Inventory report"},
		},
	})
	_ = r.Register(Widget{Name: "welcome", Title: "Welcome", App: "common"})
}
