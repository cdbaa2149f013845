// Package timescaledb stores ET runs in PostgreSQL with scene results in a
// TimescaleDB hypertable keyed on acquisition time.
package timescaledb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chrissnell/sebal/internal/database"
	"github.com/chrissnell/sebal/internal/log"
	"github.com/chrissnell/sebal/internal/storage"
)

// Storage is a storage.Store backed by TimescaleDB.
type Storage struct {
	TimescaleDBConn *gorm.DB
}

var _ storage.Store = (*Storage)(nil)

// New connects to TimescaleDB and prepares the schema. The connection is
// closed again if any setup step fails.
func New(ctx context.Context, connectionString string) (*Storage, error) {
	conn, err := database.CreateConnection(connectionString)
	if err != nil {
		return nil, err
	}
	return open(ctx, conn)
}

func open(ctx context.Context, conn *gorm.DB) (*Storage, error) {
	t := &Storage{TimescaleDBConn: conn}
	if err := t.prepare(ctx); err != nil {
		if cerr := t.Close(); cerr != nil {
			log.Warnf("could not close TimescaleDB connection: %v", cerr)
		}
		return nil, err
	}
	return t, nil
}

func (t *Storage) prepare(ctx context.Context) error {
	db := t.TimescaleDBConn.WithContext(ctx)

	log.Info("creating TimescaleDB extension...")
	if err := db.Exec(createExtensionSQL).Error; err != nil {
		log.Warn("warning: could not create TimescaleDB extension")
		return err
	}

	log.Info("migrating ET tables...")
	if err := db.AutoMigrate(&database.Run{}, &database.SceneResult{}, &database.SceneSkip{}); err != nil {
		log.Warn("warning: could not migrate ET tables")
		return err
	}

	for _, step := range []struct{ what, sql string }{
		{"hypertable", createHypertableSQL},
		{"result index", createResultIndexSQL},
		{"daily ET view", createDailyViewSQL},
	} {
		log.Infof("creating %s...", step.what)
		if err := db.Exec(step.sql).Error; err != nil {
			log.Warnf("warning: could not create %s", step.what)
			return err
		}
	}
	return nil
}

// SaveRun upserts a run.
func (t *Storage) SaveRun(ctx context.Context, run database.Run) error {
	err := t.TimescaleDBConn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&run).Error
	if err != nil {
		log.Error("could not store run:", err)
		return err
	}
	return nil
}

// SaveResult upserts a scene result.
func (t *Storage) SaveResult(ctx context.Context, r database.SceneResult) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	err := t.TimescaleDBConn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}, {Name: "scene_id"}, {Name: "acquired"}},
		UpdateAll: true,
	}).Create(&r).Error
	if err != nil {
		log.Error("could not store scene result:", err)
		return err
	}
	return nil
}

// SaveSkip inserts a skip record.
func (t *Storage) SaveSkip(ctx context.Context, s database.SceneSkip) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	s.ID = 0
	if err := t.TimescaleDBConn.WithContext(ctx).Create(&s).Error; err != nil {
		log.Error("could not store scene skip:", err)
		return err
	}
	return nil
}

// ListRuns returns runs, newest first.
func (t *Storage) ListRuns(ctx context.Context, limit int) ([]database.Run, error) {
	var runs []database.Run
	q := t.TimescaleDBConn.WithContext(ctx).Order("started_at DESC, id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run.
func (t *Storage) GetRun(ctx context.Context, id string) (database.Run, error) {
	var run database.Run
	err := t.TimescaleDBConn.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return database.Run{}, fmt.Errorf("run %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return database.Run{}, fmt.Errorf("fetching run %s: %w", id, err)
	}
	return run, nil
}

// ListResults returns a run's results in acquisition order, without payloads.
func (t *Storage) ListResults(ctx context.Context, runID string) ([]database.SceneResult, error) {
	var results []database.SceneResult
	err := t.TimescaleDBConn.WithContext(ctx).
		Omit("payload").
		Where("run_id = ?", runID).
		Order("acquired, scene_id").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("listing results of run %s: %w", runID, err)
	}
	return results, nil
}

// GetResult returns one scene result with its payload.
func (t *Storage) GetResult(ctx context.Context, runID, sceneID string) (database.SceneResult, error) {
	var r database.SceneResult
	err := t.TimescaleDBConn.WithContext(ctx).
		Where("run_id = ? AND scene_id = ?", runID, sceneID).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return database.SceneResult{}, fmt.Errorf("scene %s of run %s: %w", sceneID, runID, storage.ErrNotFound)
	}
	if err != nil {
		return database.SceneResult{}, fmt.Errorf("fetching scene %s: %w", sceneID, err)
	}
	return r, nil
}

// ListSkips returns a run's skip records in insertion order.
func (t *Storage) ListSkips(ctx context.Context, runID string) ([]database.SceneSkip, error) {
	var skips []database.SceneSkip
	err := t.TimescaleDBConn.WithContext(ctx).Where("run_id = ?", runID).Order("id").Find(&skips).Error
	if err != nil {
		return nil, fmt.Errorf("listing skips of run %s: %w", runID, err)
	}
	return skips, nil
}

// Health pings the database and counts stored results.
func (t *Storage) Health(ctx context.Context) storage.Health {
	h := storage.Health{Backend: "timescaledb", LastCheck: time.Now().UTC()}

	sqlDB, err := t.TimescaleDBConn.DB()
	if err != nil {
		h.Status, h.Message = "unhealthy", fmt.Sprintf("failed to get underlying database: %v", err)
		return h
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		h.Status, h.Message = "unhealthy", fmt.Sprintf("database ping failed: %v", err)
		return h
	}

	var count int64
	if err := t.TimescaleDBConn.WithContext(ctx).Model(&database.SceneResult{}).Count(&count).Error; err != nil {
		h.Status, h.Message = "unhealthy", fmt.Sprintf("database query failed: %v", err)
		return h
	}

	h.Status, h.Message = "healthy", fmt.Sprintf("%d scene results stored", count)
	return h
}

// Close closes the connection pool.
func (t *Storage) Close() error {
	sqlDB, err := t.TimescaleDBConn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
