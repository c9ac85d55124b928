// Package menu is the application menu: a registry filled by declarative
// AddItem calls at startup and rendered per user.
package menu

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/doujins-org/plankit/report"
)

// Item is one menu entry. A separator item only carries Name and Index.
// Model restricts the item to users allowed to view the model, given as
// "app.model".
type Item struct {
	Name       string
	Label      string
	URL        string
	Report     report.Report
	Index      int
	Model      string
	Permission string
	Admin      bool
	Window     bool
	Prefix     bool
	Javascript string
	Separator  bool
}

type Group struct {
	Name  string
	Label string
	Index int
	Items []Item
}

// Principal is the user a menu is rendered for.
type Principal interface {
	Superuser() bool
	HasPerm(perm string) bool
}

// PermissionStore creates permission rows.
type PermissionStore interface {
	EnsurePermission(ctx context.Context, app string, model string, codename string, name string) error
}

type Menu struct {
	mu     sync.RWMutex
	groups map[string]*Group
}

func New() *Menu {
	return &Menu{groups: map[string]*Group{}}
}

// AddGroup registers or relabels a group.
func (m *Menu) AddGroup(name string, label string, index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[name]
	if !ok {
		g = &Group{Name: name}
		m.groups[name] = g
	}
	g.Label = label
	g.Index = index
}

// AddItem registers item under group, replacing any item of the same name.
// Unknown groups are created with the group name as label.
func (m *Menu) AddItem(group string, name string, item Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[group]
	if !ok {
		g = &Group{Name: group, Label: group, Index: len(m.groups) * 100}
		m.groups[group] = g
	}
	item.Name = name
	if item.Label == "" && item.Report != nil {
		item.Label = item.Report.Title()
	}
	if item.Label == "" {
		item.Label = name
	}
	for i := range g.Items {
		if g.Items[i].Name == name {
			g.Items[i] = item
			return
		}
	}
	g.Items = append(g.Items, item)
}

// Groups returns every group with its items, both ordered by index.
func (m *Menu) Groups() []Group {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Group, 0, len(m.groups))
	for _, g := range m.groups {
		c := *g
		c.Items = append([]Item(nil), g.Items...)
		sort.SliceStable(c.Items, func(i, j int) bool { return c.Items[i].Index < c.Items[j].Index })
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Reports returns the distinct reports registered in the menu.
func (m *Menu) Reports() []report.Report {
	seen := map[string]struct{}{}
	var out []report.Report
	for _, g := range m.Groups() {
		for _, it := range g.Items {
			if it.Report == nil {
				continue
			}
			key := it.Report.App() + "." + it.Report.Name()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, it.Report)
		}
	}
	return out
}

// CreateReportPermissions ensures the permissions of every report of app.
func (m *Menu) CreateReportPermissions(ctx context.Context, store PermissionStore, app string) error {
	for _, r := range m.Reports() {
		if r.App() != app {
			continue
		}
		for _, p := range r.Permissions() {
			if err := store.EnsurePermission(ctx, r.App(), r.Name(), p.Codename, p.Name); err != nil {
				return fmt.Errorf("report %s: %w", r.Name(), err)
			}
		}
	}
	return nil
}

// For returns the groups and items user may see. Separators are kept only
// between visible items; groups left empty are dropped.
func (m *Menu) For(user Principal) []Group {
	var out []Group
	for _, g := range m.Groups() {
		var items []Item
		for _, it := range g.Items {
			if it.Separator {
				if len(items) > 0 && !items[len(items)-1].Separator {
					items = append(items, it)
				}
				continue
			}
			if visible(it, user) {
				items = append(items, it)
			}
		}
		if n := len(items); n > 0 && items[n-1].Separator {
			items = items[:n-1]
		}
		if len(items) == 0 {
			continue
		}
		g.Items = items
		out = append(out, g)
	}
	return out
}

func visible(it Item, user Principal) bool {
	if user == nil {
		return false
	}
	if user.Superuser() {
		return true
	}
	if it.Admin && it.Permission == "" && it.Model == "" && it.Report == nil {
		return false
	}
	if it.Permission != "" {
		return user.HasPerm(it.Permission)
	}
	if it.Report != nil {
		for _, p := range it.Report.Permissions() {
			if user.HasPerm(it.Report.App() + "." + p.Codename) {
				return true
			}
		}
		return false
	}
	if it.Model != "" {
		app, model, ok := splitModel(it.Model)
		return ok && user.HasPerm(app+".view_"+model)
	}
	return true
}

func splitModel(s string) (string, string, bool) {
	app, model, ok := strings.Cut(s, ".")
	return app, model, ok && app != "" && model != ""
}
