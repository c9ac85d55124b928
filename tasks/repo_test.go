package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/doujins-org/plankit/internal/pgtest"
)

func TestProgress(t *testing.T) {
	cases := []struct {
		done, total int
		want        string
	}{
		{0, 8, "0%"},
		{1, 8, "12%"},
		{7, 8, "87%"},
		{8, 8, "100%"},
		{0, 0, "0%"},
	}
	for _, c := range cases {
		if got := Progress(c.done, c.total); got != c.want {
			t.Fatalf("Progress(%d, %d) = %s, want %s", c.done, c.total, got, c.want)
		}
	}
}

func TestRepoCreateValidation(t *testing.T) {
	repo := NewRepo(pgtest.New())
	if err := repo.Create(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil task")
	}
	if err := repo.Create(context.Background(), &Task{}); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestRepoCreateSetsID(t *testing.T) {
	db := pgtest.New().On("INSERT INTO execute_task", pgtest.Result{Rows: [][]any{{int64(11)}}})
	task := &Task{Name: "exporttofolder", Status: "0%"}
	if err := NewRepo(db).Create(context.Background(), task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.ID != 11 {
		t.Fatalf("expected id 11, got %d", task.ID)
	}
	if task.Submitted.IsZero() {
		t.Fatalf("expected submitted to default to now")
	}
}

func TestRepoSave(t *testing.T) {
	db := pgtest.New().On("UPDATE execute_task", pgtest.Result{Tag: "UPDATE 1"})
	repo := NewRepo(db)
	if err := repo.Save(context.Background(), &Task{}); err == nil {
		t.Fatalf("expected error for task without id")
	}
	if err := repo.Save(context.Background(), &Task{ID: 3, Status: StatusDone}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := db.Executed("UPDATE execute_task")
	if len(calls) != 1 || calls[0].Args[4] != StatusDone {
		t.Fatalf("expected one update carrying the status, got %+v", calls)
	}
}

func TestRepoSaveMissingRow(t *testing.T) {
	db := pgtest.New().On("UPDATE execute_task", pgtest.Result{Tag: "UPDATE 0"})
	if err := NewRepo(db).Save(context.Background(), &Task{ID: 3}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepoListWaiting(t *testing.T) {
	now := time.Now()
	db := pgtest.New().On("WHERE status = $1", pgtest.Result{Rows: [][]any{
		{int64(1), "exporttofolder", now, nil, nil, "", StatusWaiting, "", "", nil, nil},
		{int64(2), "exporttofolder", now, nil, nil, "", StatusWaiting, "", "", nil, nil},
	}})
	repo := NewRepo(db)

	got, err := repo.ListWaiting(context.Background(), []string{"exporttofolder"}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
		t.Fatalf("unexpected tasks %+v", got)
	}

	none, err := repo.ListWaiting(context.Background(), nil, 10)
	if err != nil || none != nil {
		t.Fatalf("expected no tasks without names, got %v %v", none, err)
	}
}

func TestRepoClaim(t *testing.T) {
	started := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	pid := 4242
	db := pgtest.New().On("UPDATE execute_task", pgtest.Result{Rows: [][]any{{
		int64(7), "exporttofolder", started, started, nil, "", "0%", "", "exporttofolder-20261018120000.log", nil, pid,
	}}})

	task, err := NewRepo(db).Claim(context.Background(), 7, []string{"exporttofolder"}, Start{
		Status:    "0%",
		Started:   started,
		Logfile:   "exporttofolder-20261018120000.log",
		ProcessID: &pid,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.Status != "0%" || task.ProcessID == nil || *task.ProcessID != pid {
		t.Fatalf("unexpected task %+v", task)
	}
	calls := db.Executed("UPDATE execute_task")
	if len(calls) != 1 || calls[0].Args[2] != StatusWaiting {
		t.Fatalf("expected one guarded update, got %+v", calls)
	}
	if n := len(db.Executed("SELECT EXISTS")); n != 0 {
		t.Fatalf("a won claim must not look the task up again")
	}
}

func TestRepoClaimLost(t *testing.T) {
	db := pgtest.New().On("SELECT EXISTS", pgtest.Result{Rows: [][]any{{true}}})
	_, err := NewRepo(db).Claim(context.Background(), 7, []string{"exporttofolder"}, Start{Status: "0%"})
	if !errors.Is(err, ErrNotWaiting) {
		t.Fatalf("expected ErrNotWaiting, got %v", err)
	}

	db = pgtest.New().On("SELECT EXISTS", pgtest.Result{Rows: [][]any{{false}}})
	_, err = NewRepo(db).Claim(context.Background(), 99, []string{"exporttofolder"}, Start{Status: "0%"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	db = pgtest.New().On("UPDATE execute_task", pgtest.Result{Err: errors.New("connection reset")})
	_, err = NewRepo(db).Claim(context.Background(), 7, []string{"exporttofolder"}, Start{Status: "0%"})
	if err == nil || errors.Is(err, ErrNotWaiting) || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected the database error, got %v", err)
	}
}
