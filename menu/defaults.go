package menu

import (
	"fmt"
	"strings"

	"github.com/doujins-org/plankit/report"
)

// DocumentationURL links the documentation of the major.minor release of
// version, or the current documentation when version cannot be split.
func DocumentationURL(base string, version string) string {
	base = strings.TrimRight(base, "/")
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Sprintf("%s/docs/current/index.html", base)
	}
	return fmt.Sprintf("%s/docs/%s.%s/index.html", base, parts[0], parts[1])
}

// RegisterDefaults fills m with the standard groups and items.
func RegisterDefaults(m *Menu, docBase string, version string) {
	m.AddGroup("inventory", "Inventory", 300)
	m.AddGroup("capacity", "Capacity", 400)
	m.AddGroup("admin", "Admin", 800)
	m.AddGroup("help", "Help", 900)

	m.AddItem("inventory", "inventory report", Item{URL: "/buffer/", Report: report.BufferOverview{}, Index: 100})
	m.AddItem("capacity", "resource report", Item{URL: "/resource/", Report: report.ResourceOverview{}, Index: 100})

	m.AddItem("admin", "parameter admin", Item{Label: "Parameters", URL: "/data/common/parameter/", Index: 1100, Model: "common.parameter", Admin: true})
	m.AddItem("admin", "bucket admin", Item{Label: "Buckets", URL: "/data/common/bucket/", Index: 1200, Model: "common.bucket", Admin: true})
	m.AddItem("admin", "bucketdetail admin", Item{Label: "Bucket dates", URL: "/data/common/bucketdetail/", Index: 1300, Model: "common.bucketdetail", Admin: true})
	m.AddItem("admin", "comment admin", Item{Label: "Comments", URL: "/data/common/comment/", Index: 1400, Model: "common.comment", Admin: true})

	m.AddItem("admin", "users", Item{Separator: true, Index: 2000})
	m.AddItem("admin", "user admin", Item{Label: "Users", URL: "/data/common/user/", Index: 2100, Model: "common.user", Admin: true})
	m.AddItem("admin", "group admin", Item{Label: "Groups", URL: "/data/auth/group/", Index: 2200, Permission: "auth.change_group", Admin: true})

	m.AddItem("help", "documentation", Item{Label: "Documentation", URL: DocumentationURL(docBase, version), Window: true, Index: 300})
	m.AddItem("help", "API", Item{Label: "REST API help", URL: "/api/", Window: true, Prefix: true, Index: 400})
	if docBase != "" {
		m.AddItem("help", "website", Item{Label: "Website", URL: docBase, Window: true, Index: 500})
	}
	m.AddItem("help", "about", Item{Label: "About", Javascript: "about_show()", Index: 600})
}
