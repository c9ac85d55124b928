package pg

import (
	"context"
	"fmt"
	"strings"
)

// maxIdentLen is NAMEDATALEN-1 of a stock Postgres build.
const maxIdentLen = 63

// QuoteIdent validates a schema or table name and returns it double quoted.
// Only ASCII letters, digits and underscores are accepted, and the name must
// not start with a digit.
func QuoteIdent(ident string) (string, error) {
	ident = strings.TrimSpace(ident)
	switch {
	case ident == "":
		return "", fmt.Errorf("empty identifier")
	case len(ident) > maxIdentLen:
		return "", fmt.Errorf("identifier %q longer than %d bytes", ident, maxIdentLen)
	case ident[0] >= '0' && ident[0] <= '9':
		return "", fmt.Errorf("identifier %q starts with a digit", ident)
	}
	for _, r := range ident {
		if r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			continue
		}
		return "", fmt.Errorf("invalid identifier %q", ident)
	}
	return `"` + ident + `"`, nil
}

// SetSearchPath points the unqualified names of the current transaction at
// schema.
func SetSearchPath(ctx context.Context, db DBTX, schema string) error {
	quoted, err := QuoteIdent(schema)
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	if _, err := db.Exec(ctx, "SET LOCAL search_path = "+quoted); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	return nil
}
