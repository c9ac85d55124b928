package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/doujins-org/plankit/pg"
)

var (
	// ErrNotFound is returned when no task has the requested identifier.
	ErrNotFound = errors.New("task not found")

	// ErrNotWaiting is returned by Claim when the task exists but is not a
	// waiting task of the requested kind, or another process claimed it first.
	ErrNotWaiting = errors.New("task is not waiting")
)

const taskTable = "execute_task"

const taskColumns = `id, name, submitted, started, finished, COALESCE(arguments, ''), status,
	COALESCE(message, ''), COALESCE(logfile, ''), user_id, processid`

type Repo struct {
	db pg.DBTX
}

func NewRepo(db pg.DBTX) *Repo {
	return &Repo{db: db}
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	if err := row.Scan(
		&t.ID,
		&t.Name,
		&t.Submitted,
		&t.Started,
		&t.Finished,
		&t.Arguments,
		&t.Status,
		&t.Message,
		&t.Logfile,
		&t.UserID,
		&t.ProcessID,
	); err != nil {
		return nil, err
	}
	return &t, nil
}

// Create inserts t and sets its ID.
func (r *Repo) Create(ctx context.Context, t *Task) error {
	if r.db == nil {
		return fmt.Errorf("db is required")
	}
	if t == nil {
		return fmt.Errorf("task is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("task name is required")
	}
	if t.Submitted.IsZero() {
		t.Submitted = time.Now()
	}
	q := fmt.Sprintf(`
		INSERT INTO %s (name, submitted, started, finished, arguments, status, message, logfile, user_id, processid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, taskTable)
	if err := r.db.QueryRow(ctx, q,
		t.Name, t.Submitted, t.Started, t.Finished, t.Arguments, t.Status, t.Message, t.Logfile, t.UserID, t.ProcessID,
	).Scan(&t.ID); err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// Save writes every mutable field of t.
func (r *Repo) Save(ctx context.Context, t *Task) error {
	if r.db == nil {
		return fmt.Errorf("db is required")
	}
	if t == nil || t.ID <= 0 {
		return fmt.Errorf("saved task needs an id")
	}
	q := fmt.Sprintf(`
		UPDATE %s
		SET started = $2, finished = $3, arguments = $4, status = $5,
		    message = $6, logfile = $7, user_id = $8, processid = $9
		WHERE id = $1
	`, taskTable)
	tag, err := r.db.Exec(ctx, q, t.ID, t.Started, t.Finished, t.Arguments, t.Status, t.Message, t.Logfile, t.UserID, t.ProcessID)
	if err != nil {
		return fmt.Errorf("save task %d: %w", t.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Start is what a claim writes onto a waiting task.
type Start struct {
	Status    string
	Started   time.Time
	Logfile   string
	Arguments string
	ProcessID *int
}

// Claim moves task id from waiting to started in a single statement, so of
// two processes claiming the same task only one gets it back. The task must
// be named one of names.
func (r *Repo) Claim(ctx context.Context, id int64, names []string, st Start) (*Task, error) {
	if r.db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("task names are required")
	}
	q := fmt.Sprintf(`
		UPDATE %s
		SET status = $4, started = $5, logfile = $6, arguments = $7, processid = $8
		WHERE id = $1 AND status = $3 AND started IS NULL AND finished IS NULL
		  AND name = ANY($2::text[])
		RETURNING %s
	`, taskTable, taskColumns)
	t, err := scanTask(r.db.QueryRow(ctx, q, id, names, StatusWaiting, st.Status, st.Started, st.Logfile, st.Arguments, st.ProcessID))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim task %d: %w", id, err)
	}

	var exists bool
	q = fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, taskTable)
	if err := r.db.QueryRow(ctx, q, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("claim task %d: %w", id, err)
	}
	if !exists {
		return nil, ErrNotFound
	}
	return nil, ErrNotWaiting
}

// ListWaiting returns up to limit tasks that are waiting to start, oldest first,
// restricted to the given names.
func (r *Repo) ListWaiting(ctx context.Context, names []string, limit int) ([]Task, error) {
	if r.db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if limit <= 0 || len(names) == 0 {
		return nil, nil
	}
	q := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE status = $1 AND started IS NULL AND finished IS NULL
		  AND name = ANY($2::text[]) AND submitted <= now()
		ORDER BY submitted ASC, id ASC
		LIMIT $3
	`, taskColumns, taskTable)
	rows, err := r.db.Query(ctx, q, StatusWaiting, names, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
