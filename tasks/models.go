package tasks

import (
	"strconv"
	"time"
)

const (
	StatusWaiting = "Waiting"
	StatusFailed  = "Failed"
	StatusDone    = "100%"
)

// Task tracks the progress of a long-running background operation.
type Task struct {
	ID        int64
	Name      string
	Submitted time.Time
	Started   *time.Time
	Finished  *time.Time
	Arguments string
	Status    string
	Message   string
	Logfile   string
	UserID    *int64
	ProcessID *int
}

// Progress formats done out of total as a percentage status.
func Progress(done, total int) string {
	if total <= 0 {
		return "0%"
	}
	return strconv.Itoa(done*100/total) + "%"
}
