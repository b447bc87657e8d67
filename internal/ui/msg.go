package ui

import (
	"time"

	"github.com/vanlt3/LifeTime-Swing/internal/alert"
	"github.com/vanlt3/LifeTime-Swing/internal/health"
	"github.com/vanlt3/LifeTime-Swing/internal/position"
)

// Tea message types for UI communication

// SnapshotMsg carries one poll of the monitor API.
type SnapshotMsg struct {
	Status    health.Status
	Positions []position.Position
	Alerts    []alert.Alert
	FetchedAt time.Time
}

// ErrMsg reports a failed poll. The last good snapshot stays on screen.
type ErrMsg struct {
	Err error
}

func (e ErrMsg) Error() string { return e.Err.Error() }

// TickMsg triggers the next poll.
type TickMsg time.Time
