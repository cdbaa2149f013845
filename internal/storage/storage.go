// Package storage defines where ET runs, scene results and skip reports go,
// and how the REST server reads them back.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/chrissnell/sebal/internal/database"
)

// ErrNotFound is returned by readers for unknown runs or scenes.
var ErrNotFound = errors.New("not found")

// Sink receives the output of a run.
type Sink interface {
	SaveRun(ctx context.Context, run database.Run) error
	SaveResult(ctx context.Context, result database.SceneResult) error
	SaveSkip(ctx context.Context, skip database.SceneSkip) error
}

// Reader serves stored runs. Results from ListResults carry no payload.
type Reader interface {
	ListRuns(ctx context.Context, limit int) ([]database.Run, error)
	GetRun(ctx context.Context, id string) (database.Run, error)
	ListResults(ctx context.Context, runID string) ([]database.SceneResult, error)
	GetResult(ctx context.Context, runID, sceneID string) (database.SceneResult, error)
	ListSkips(ctx context.Context, runID string) ([]database.SceneSkip, error)
}

// Health describes the state of a storage backend.
type Health struct {
	Backend   string    `json:"backend" msgpack:"backend"`
	Status    string    `json:"status" msgpack:"status"`
	Message   string    `json:"message,omitempty" msgpack:"message,omitempty"`
	LastCheck time.Time `json:"last_check" msgpack:"last_check"`
}

// Store is a full read/write backend.
type Store interface {
	Sink
	Reader
	Health(ctx context.Context) Health
	Close() error
}
