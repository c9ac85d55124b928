// Package auth stores users, content types and permissions, and holds the
// post-migrate hooks that prune and create permission rows.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/doujins-org/plankit/pg"
)

// ErrUserNotFound is returned when no user has the requested username.
var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID          int64
	Username    string
	IsSuperuser bool
	IsActive    bool
}

// Principal is a user together with the permissions granted to it, in
// "app_label.codename" form.
type Principal struct {
	User  User
	Perms map[string]struct{}
}

func (p Principal) Superuser() bool {
	return p.User.IsSuperuser && p.User.IsActive
}

// HasPerm reports whether p holds perm. Active superusers hold every permission.
func (p Principal) HasPerm(perm string) bool {
	if !p.User.IsActive {
		return false
	}
	if p.User.IsSuperuser {
		return true
	}
	_, ok := p.Perms[perm]
	return ok
}

type Store struct {
	db pg.DBTX
}

func NewStore(db pg.DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	if s.db == nil {
		return nil, fmt.Errorf("db is required")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrUserNotFound
	}
	var u User
	err := s.db.QueryRow(ctx, `
		SELECT id, username, is_superuser, is_active
		FROM common_user
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.IsSuperuser, &u.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}
	return &u, nil
}

// Principal loads username and its directly granted permissions.
func (s *Store) Principal(ctx context.Context, username string) (*Principal, error) {
	u, err := s.UserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `
		SELECT ct.app_label, p.codename
		FROM common_user_permissions up
		JOIN auth_permission p ON p.id = up.permission_id
		JOIN django_content_type ct ON ct.id = p.content_type_id
		WHERE up.user_id = $1
	`, u.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	perms := map[string]struct{}{}
	for rows.Next() {
		var app, codename string
		if err := rows.Scan(&app, &codename); err != nil {
			return nil, err
		}
		perms[app+"."+codename] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &Principal{User: *u, Perms: perms}, nil
}

// EnsureContentType returns the id of the (app, model) content type,
// creating it when missing.
func (s *Store) EnsureContentType(ctx context.Context, app string, model string) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("db is required")
	}
	if strings.TrimSpace(app) == "" || strings.TrimSpace(model) == "" {
		return 0, fmt.Errorf("app and model are required")
	}
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO django_content_type (app_label, model)
		VALUES ($1, $2)
		ON CONFLICT (app_label, model) DO UPDATE SET model = EXCLUDED.model
		RETURNING id
	`, app, model).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure content type %s.%s: %w", app, model, err)
	}
	return id, nil
}

// EnsurePermission creates codename under the (app, model) content type
// unless it already exists; an existing row gets its name refreshed.
func (s *Store) EnsurePermission(ctx context.Context, app string, model string, codename string, name string) error {
	if strings.TrimSpace(codename) == "" {
		return fmt.Errorf("codename is required")
	}
	ctID, err := s.EnsureContentType(ctx, app, model)
	if err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		name = codename
	}
	if _, err := s.db.Exec(ctx, `
		INSERT INTO auth_permission (name, content_type_id, codename)
		VALUES ($1, $2, $3)
		ON CONFLICT (content_type_id, codename) DO UPDATE SET name = EXCLUDED.name
	`, name, ctID, codename); err != nil {
		return fmt.Errorf("ensure permission %s.%s: %w", app, codename, err)
	}
	return nil
}

// RemoveModelPermissions deletes the permissions of the (app, model) content
// type, keeping the codenames listed in exclude.
func (s *Store) RemoveModelPermissions(ctx context.Context, app string, model string, exclude ...string) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("db is required")
	}
	q := `
		DELETE FROM auth_permission p
		USING django_content_type ct
		WHERE ct.id = p.content_type_id AND ct.app_label = $1 AND ct.model = $2`
	args := []any{app, model}
	if len(exclude) > 0 {
		q += ` AND NOT (p.codename = ANY($3::text[]))`
		args = append(args, exclude)
	}
	tag, err := s.db.Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("remove %s.%s permissions: %w", app, model, err)
	}
	return tag.RowsAffected(), nil
}

// DeletePermissionsByCodename deletes every permission with one of codenames,
// whatever its content type.
func (s *Store) DeletePermissionsByCodename(ctx context.Context, codenames ...string) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("db is required")
	}
	if len(codenames) == 0 {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM auth_permission WHERE codename = ANY($1::text[])`, codenames)
	if err != nil {
		return 0, fmt.Errorf("delete permissions: %w", err)
	}
	return tag.RowsAffected(), nil
}
