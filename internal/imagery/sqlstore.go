package imagery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/chrissnell/sebal/internal/log"
	"github.com/chrissnell/sebal/internal/raster"
	"github.com/chrissnell/sebal/internal/sensors"
	"github.com/chrissnell/sebal/internal/types"
)

// SQLStore is an imagery catalog held in SQLite or PostgreSQL. Scene
// metadata lives in the scenes table; each band is a MessagePack raster
// blob in scene_bands, stored under the sensor's own band name.
type SQLStore struct {
	db     *sqlx.DB
	driver string
}

type sceneRow struct {
	ID           string  `db:"id"`
	ProductID    string  `db:"product_id"`
	Sensor       string  `db:"sensor"`
	AcquiredMS   int64   `db:"acquired_ms"`
	SunElevation float64 `db:"sun_elevation"`
	SunAzimuth   float64 `db:"sun_azimuth"`
	CloudCover   float64 `db:"cloud_cover"`
	Path         int     `db:"path"`
	Row          int     `db:"row_num"`
	Grid         []byte  `db:"grid"`
	Scaled       bool    `db:"scaled"`
}

type bandRow struct {
	Band    string `db:"band"`
	Payload []byte `db:"payload"`
}

// OpenSQLStore connects to the catalog. driver is "sqlite" or "pgx".
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	switch driver {
	case "sqlite", "pgx":
	default:
		return nil, fmt.Errorf("unsupported imagery catalog driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, unavailable("open catalog", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable("ping catalog", err)
	}

	log.Infof("imagery catalog connected (%s)", driver)
	return &SQLStore{db: db, driver: driver}, nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) blobType() string {
	if s.driver == "pgx" {
		return "BYTEA"
	}
	return "BLOB"
}

// Init creates the catalog tables if they do not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	blob := s.blobType()
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scenes (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL,
			sensor TEXT NOT NULL,
			acquired_ms BIGINT NOT NULL,
			sun_elevation DOUBLE PRECISION NOT NULL,
			sun_azimuth DOUBLE PRECISION NOT NULL,
			cloud_cover DOUBLE PRECISION NOT NULL,
			path INTEGER NOT NULL,
			row_num INTEGER NOT NULL,
			grid ` + blob + ` NOT NULL,
			scaled BOOLEAN NOT NULL DEFAULT FALSE,
			min_x DOUBLE PRECISION,
			min_y DOUBLE PRECISION,
			max_x DOUBLE PRECISION,
			max_y DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS scenes_lookup ON scenes (sensor, path, row_num, acquired_ms)`,
		`CREATE TABLE IF NOT EXISTS scene_bands (
			scene_id TEXT NOT NULL,
			band TEXT NOT NULL,
			payload ` + blob + ` NOT NULL,
			PRIMARY KEY (scene_id, band)
		)`,
		`CREATE TABLE IF NOT EXISTS dems (
			footprint TEXT PRIMARY KEY,
			payload ` + blob + ` NOT NULL
		)`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("creating imagery catalog schema: %w", err)
		}
	}
	return nil
}

// PutScene stores a scene's metadata and bands, replacing any earlier copy.
func (s *SQLStore) PutScene(ctx context.Context, sd SceneData) error {
	cal, err := sensors.For(sd.Meta.Sensor)
	if err != nil {
		return err
	}
	grid, err := msgpack.Marshal(&sd.Meta.Grid)
	if err != nil {
		return fmt.Errorf("encoding grid: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning scene insert: %w", err)
	}
	defer tx.Rollback()

	m := sd.Meta
	var minX, minY, maxX, maxY sql.NullFloat64
	if m.Grid.Validate() == nil {
		b := m.Grid.Bound()
		minX = sql.NullFloat64{Float64: b.Min[0], Valid: true}
		minY = sql.NullFloat64{Float64: b.Min[1], Valid: true}
		maxX = sql.NullFloat64{Float64: b.Max[0], Valid: true}
		maxY = sql.NullFloat64{Float64: b.Max[1], Valid: true}
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM scene_bands WHERE scene_id = ?`), m.ID); err != nil {
		return fmt.Errorf("clearing bands of %s: %w", m.ID, err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM scenes WHERE id = ?`), m.ID); err != nil {
		return fmt.Errorf("clearing scene %s: %w", m.ID, err)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO scenes (id, product_id, sensor, acquired_ms, sun_elevation, sun_azimuth,
		                    cloud_cover, path, row_num, grid, scaled, min_x, min_y, max_x, max_y)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		m.ID, m.ProductID, string(m.Sensor), m.Acquired.UnixMilli(), m.SunElevation, m.SunAzimuth,
		m.CloudCover, m.Path, m.Row, grid, sd.Scaled, minX, minY, maxX, maxY)
	if err != nil {
		return fmt.Errorf("inserting scene %s: %w", m.ID, err)
	}

	for band, layer := range sd.Bands {
		name := cal.SourceBand(band)
		if name == "" {
			return fmt.Errorf("scene %s: band %s has no %s counterpart", m.ID, band, cal.Family())
		}
		payload, err := raster.Marshal(layer)
		if err != nil {
			return fmt.Errorf("encoding band %s of %s: %w", band, m.ID, err)
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO scene_bands (scene_id, band, payload) VALUES (?, ?, ?)`),
			m.ID, name, payload)
		if err != nil {
			return fmt.Errorf("inserting band %s of %s: %w", band, m.ID, err)
		}
	}

	return tx.Commit()
}

// PutDEM stores the elevation layer for a footprint.
func (s *SQLStore) PutDEM(ctx context.Context, fp types.Footprint, dem raster.Layer) error {
	payload, err := raster.Marshal(dem)
	if err != nil {
		return fmt.Errorf("encoding dem: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM dems WHERE footprint = ?`), fp.String()); err != nil {
		return fmt.Errorf("clearing dem %s: %w", fp, err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO dems (footprint, payload) VALUES (?, ?)`), fp.String(), payload); err != nil {
		return fmt.Errorf("inserting dem %s: %w", fp, err)
	}
	return nil
}

// QueryScenes implements Source with the same matching rules as Matches:
// zero path or row is a wildcard and scenes with a stored extent must
// intersect the footprint bounds.
func (s *SQLStore) QueryScenes(ctx context.Context, fp types.Footprint, dr types.DateRange, gen types.SensorGeneration) ([]types.SceneMetadata, error) {
	where := []string{"sensor = ?", "acquired_ms >= ?", "acquired_ms < ?"}
	args := []any{string(gen), dr.Start.UnixMilli(), dr.End.UnixMilli()}
	if fp.Path != 0 {
		where = append(where, "path = ?")
		args = append(args, fp.Path)
	}
	if fp.Row != 0 {
		where = append(where, "row_num = ?")
		args = append(args, fp.Row)
	}
	if len(fp.Polygon) > 0 {
		b := fp.Bound()
		where = append(where, "(min_x IS NULL OR (max_x >= ? AND min_x <= ? AND max_y >= ? AND min_y <= ?))")
		args = append(args, b.Min[0], b.Max[0], b.Min[1], b.Max[1])
	}

	var rows []sceneRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT id, product_id, sensor, acquired_ms, sun_elevation, sun_azimuth,
		       cloud_cover, path, row_num, grid, scaled
		FROM scenes
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY acquired_ms`), args...)
	if err != nil {
		return nil, unavailable("query scenes", err)
	}

	out := make([]types.SceneMetadata, 0, len(rows))
	for _, r := range rows {
		md, err := r.metadata()
		if err != nil {
			return nil, unavailable("decode scene "+r.ID, err)
		}
		out = append(out, md)
	}
	return out, nil
}

func (r sceneRow) metadata() (types.SceneMetadata, error) {
	var g raster.Grid
	if err := msgpack.Unmarshal(r.Grid, &g); err != nil {
		return types.SceneMetadata{}, fmt.Errorf("decoding grid: %w", err)
	}
	return types.SceneMetadata{
		ID:           r.ID,
		ProductID:    r.ProductID,
		Sensor:       types.SensorGeneration(r.Sensor),
		Acquired:     time.UnixMilli(r.AcquiredMS).UTC(),
		SunElevation: r.SunElevation,
		SunAzimuth:   r.SunAzimuth,
		CloudCover:   r.CloudCover,
		Path:         r.Path,
		Row:          r.Row,
		Grid:         g,
	}, nil
}

// LoadScene implements Source.
func (s *SQLStore) LoadScene(ctx context.Context, meta types.SceneMetadata) (SceneData, error) {
	cal, err := sensors.For(meta.Sensor)
	if err != nil {
		return SceneData{}, err
	}

	var scaled bool
	err = s.db.GetContext(ctx, &scaled, s.db.Rebind(`SELECT scaled FROM scenes WHERE id = ?`), meta.ID)
	if err != nil {
		return SceneData{}, unavailable("load scene "+meta.ID, err)
	}

	var rows []bandRow
	err = s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT band, payload FROM scene_bands WHERE scene_id = ?`), meta.ID)
	if err != nil {
		return SceneData{}, unavailable("load bands of "+meta.ID, err)
	}

	byName := make(map[string][]byte, len(rows))
	for _, r := range rows {
		byName[r.Band] = r.Payload
	}

	sd := SceneData{Meta: meta, Bands: make(map[sensors.Band]raster.Layer), Scaled: scaled}
	for _, b := range append(append([]sensors.Band{}, sensors.ReflectiveBands...), sensors.Thermal, sensors.QA) {
		payload, ok := byName[cal.SourceBand(b)]
		if !ok {
			continue
		}
		layer, err := raster.Unmarshal(payload)
		if err != nil {
			return SceneData{}, unavailable("decode band "+string(b), err)
		}
		sd.Bands[b] = layer
	}
	return sd, nil
}

// LoadDEM implements Source.
func (s *SQLStore) LoadDEM(ctx context.Context, fp types.Footprint, g raster.Grid) (raster.Layer, error) {
	var payload []byte
	err := s.db.GetContext(ctx, &payload, s.db.Rebind(`SELECT payload FROM dems WHERE footprint = ?`), fp.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, unavailable("load dem", fmt.Errorf("no elevation for footprint %s", fp))
	}
	if err != nil {
		return nil, unavailable("load dem", err)
	}

	dem, err := raster.Unmarshal(payload)
	if err != nil {
		return nil, unavailable("decode dem", err)
	}
	if !dem.Grid().Equal(g) {
		return nil, fmt.Errorf("dem for %s: %w", fp, raster.ErrGridMismatch)
	}
	return dem, nil
}
