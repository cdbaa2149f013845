package config

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/chrissnell/sebal/internal/meteo"
	"github.com/chrissnell/sebal/internal/sebal"
	"github.com/chrissnell/sebal/pkg/migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const defaultConfigName = "default"

// MigrationTable records the applied configuration schema versions.
const MigrationTable = "config_schema_migrations"

// Migrations returns the configuration database schema migrations embedded
// in the binary.
func Migrations() (*migrate.FSProvider, error) {
	sub, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return nil, err
	}
	return migrate.NewFSProvider(sub, MigrationTable, "sqlite"), nil
}

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider opens the configuration database and brings its schema
// up to date.
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	migrations, err := Migrations()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate.NewMigrator(db, migrations).MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate configuration database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

func (s *SQLiteProvider) configID() (int64, error) {
	var id int64
	err := s.db.QueryRow(`SELECT id FROM configs WHERE name = ?`, defaultConfigName).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("no %q configuration stored in %s", defaultConfigName, s.dbPath)
	}
	return id, err
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	id, err := s.configID()
	if err != nil {
		return nil, err
	}

	config := &ConfigData{}
	if err := s.db.QueryRow(`SELECT workers FROM configs WHERE id = ?`, id).Scan(&config.Workers); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	job, err := s.GetJob()
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	config.Job = *job

	if config.Engine, err = s.getEngine(id); err != nil {
		return nil, fmt.Errorf("failed to load engine config: %w", err)
	}
	if config.Meteorology, err = s.getMeteorology(id); err != nil {
		return nil, fmt.Errorf("failed to load meteorology config: %w", err)
	}
	if config.Imagery, err = s.getImagery(id); err != nil {
		return nil, fmt.Errorf("failed to load imagery config: %w", err)
	}

	storage, err := s.GetStorageConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	config.Storage = *storage

	if config.REST, err = s.getREST(id); err != nil {
		return nil, fmt.Errorf("failed to load REST config: %w", err)
	}
	if config.Fields, err = s.getFields(id); err != nil {
		return nil, fmt.Errorf("failed to load fields config: %w", err)
	}

	config.ApplyDefaults()
	return config, nil
}

// GetJob returns the job section
func (s *SQLiteProvider) GetJob() (*JobData, error) {
	id, err := s.configID()
	if err != nil {
		return nil, err
	}

	var job JobData
	var footprint, startDate, endDate, sensors sql.NullString
	err = s.db.QueryRow(`
		SELECT path, row_num, footprint, start_date, end_date, cloud_max, sensors
		FROM job_configs WHERE config_id = ?`, id).Scan(
		&job.Path, &job.Row, &footprint, &startDate, &endDate, &job.CloudMax, &sensors,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &job, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job: %w", err)
	}

	job.Footprint = footprint.String
	job.StartDate = startDate.String
	job.EndDate = endDate.String
	if sensors.Valid && sensors.String != "" {
		job.Sensors = strings.Split(sensors.String, ",")
	}
	return &job, nil
}

func (s *SQLiteProvider) getEngine(id int64) (sebal.Config, error) {
	var c sebal.Config
	var method, longwave sql.NullString
	err := s.db.QueryRow(`
		SELECT cold_ndvi_percent, cold_lst_percentile, hot_ndvi_percent, hot_lst_percentile,
		       iterations, cold_h_fraction, vegetation_height,
		       et_method, longwave_reference, lapse_datum
		FROM engine_configs WHERE config_id = ?`, id).Scan(
		&c.Endmember.ColdNDVIPercent, &c.Endmember.ColdLSTPercentile,
		&c.Endmember.HotNDVIPercent, &c.Endmember.HotLSTPercentile,
		&c.Solver.Iterations, &c.Solver.ColdHFraction, &c.Solver.VegetationHeight,
		&method, &longwave, &c.LapseDatum,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return sebal.Config{}, nil
	}
	if err != nil {
		return sebal.Config{}, err
	}
	c.ETMethod = sebal.ETMethod(method.String)
	c.Longwave = sebal.LongwaveReference(longwave.String)
	return c, nil
}

func (s *SQLiteProvider) getMeteorology(id int64) (MeteorologyData, error) {
	var m MeteorologyData
	var source, stationConn, stationName sql.NullString
	var stationHeight sql.NullFloat64
	var stationImperial sql.NullBool

	err := s.db.QueryRow(`
		SELECT source, latitude, longitude, elevation,
		       air_temperature_c, wind_speed, relative_humidity, rn24, etr_instant, etr24, measurement_height,
		       station_connection_string, station_name, station_measurement_height, station_imperial
		FROM meteorology_configs WHERE config_id = ?`, id).Scan(
		&source, &m.Site.Latitude, &m.Site.Longitude, &m.Site.Elevation,
		&m.Static.AirTemperatureC, &m.Static.WindSpeed, &m.Static.RelativeHumidity,
		&m.Static.Rn24, &m.Static.ETrInstant, &m.Static.ETr24, &m.Static.MeasurementHeight,
		&stationConn, &stationName, &stationHeight, &stationImperial,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return m, nil
	}
	if err != nil {
		return m, err
	}
	m.Source = source.String
	if stationConn.Valid {
		m.Station = &StationData{
			ConnectionString:  stationConn.String,
			Name:              stationName.String,
			MeasurementHeight: stationHeight.Float64,
			Imperial:          stationImperial.Bool,
		}
	}

	rows, err := s.db.Query(`
		SELECT date, air_temperature_c, wind_speed, relative_humidity, rn24, etr_instant, etr24, measurement_height
		FROM meteorology_overrides WHERE config_id = ? ORDER BY date`, id)
	if err != nil {
		return m, fmt.Errorf("failed to query meteorology overrides: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var date string
		var c meteo.Context
		if err := rows.Scan(&date, &c.AirTemperatureC, &c.WindSpeed, &c.RelativeHumidity,
			&c.Rn24, &c.ETrInstant, &c.ETr24, &c.MeasurementHeight); err != nil {
			return m, fmt.Errorf("failed to scan meteorology override: %w", err)
		}
		if m.ByDate == nil {
			m.ByDate = make(map[string]meteo.Context)
		}
		m.ByDate[date] = c
	}
	return m, rows.Err()
}

func (s *SQLiteProvider) getImagery(id int64) (ImageryData, error) {
	var im ImageryData
	var dsn sql.NullString
	err := s.db.QueryRow(`SELECT driver, dsn FROM imagery_configs WHERE config_id = ?`, id).Scan(&im.Driver, &dsn)
	if errors.Is(err, sql.ErrNoRows) {
		return im, nil
	}
	im.DSN = dsn.String
	return im, err
}

// GetStorageConfig returns storage configuration from the database
func (s *SQLiteProvider) GetStorageConfig() (*StorageData, error) {
	id, err := s.configID()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT backend_type, timescale_connection_string
		FROM storage_configs
		WHERE config_id = ? AND enabled = 1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage configs: %w", err)
	}
	defer rows.Close()

	storage := &StorageData{}
	for rows.Next() {
		var backendType string
		var timescaleConnectionString sql.NullString
		if err := rows.Scan(&backendType, &timescaleConnectionString); err != nil {
			return nil, fmt.Errorf("failed to scan storage config row: %w", err)
		}

		switch backendType {
		case "timescaledb":
			if timescaleConnectionString.Valid {
				storage.TimescaleDB = &TimescaleDBData{
					ConnectionString: timescaleConnectionString.String,
				}
			}
		}
	}
	return storage, rows.Err()
}

func (s *SQLiteProvider) getREST(id int64) (*RESTServerData, error) {
	var cert, key, listenAddr sql.NullString
	var port sql.NullInt64
	err := s.db.QueryRow(`SELECT tls_cert, tls_key, port, listen_addr FROM rest_configs WHERE config_id = ?`, id).Scan(
		&cert, &key, &port, &listenAddr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &RESTServerData{Cert: cert.String, Key: key.String, Port: int(port.Int64), ListenAddr: listenAddr.String}, nil
}

func (s *SQLiteProvider) getFields(id int64) (*FieldsData, error) {
	var f FieldsData
	var table sql.NullString
	var buffer sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT connection_string, schema_name, table_name, buffer
		FROM fields_configs WHERE config_id = ?`, id).Scan(&f.ConnectionString, &f.Schema, &table, &buffer)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.Table = table.String
	f.Buffer = buffer.Float64
	return &f, nil
}

// IsReadOnly returns false since SQLite supports write operations
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration. Field seasons are not
// persisted; SQLite configurations use the default seasons.
func (s *SQLiteProvider) SaveConfig(c *ConfigData) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := clearExistingConfig(tx); err != nil {
		return fmt.Errorf("failed to clear existing config: %w", err)
	}
	res, err := tx.Exec(`INSERT INTO configs (name, workers) VALUES (?, ?)`, defaultConfigName, c.Workers)
	if err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	j := c.Job
	if _, err := tx.Exec(`
		INSERT INTO job_configs (config_id, path, row_num, footprint, start_date, end_date, cloud_max, sensors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, j.Path, j.Row, nullString(j.Footprint), nullString(j.StartDate), nullString(j.EndDate),
		j.CloudMax, nullString(strings.Join(j.Sensors, ","))); err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	e := c.Engine
	if _, err := tx.Exec(`
		INSERT INTO engine_configs (config_id, cold_ndvi_percent, cold_lst_percentile, hot_ndvi_percent,
			hot_lst_percentile, iterations, cold_h_fraction, vegetation_height, et_method, longwave_reference, lapse_datum)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, e.Endmember.ColdNDVIPercent, e.Endmember.ColdLSTPercentile, e.Endmember.HotNDVIPercent,
		e.Endmember.HotLSTPercentile, e.Solver.Iterations, e.Solver.ColdHFraction, e.Solver.VegetationHeight,
		nullString(string(e.ETMethod)), nullString(string(e.Longwave)), e.LapseDatum); err != nil {
		return fmt.Errorf("failed to insert engine config: %w", err)
	}

	if err := insertMeteorology(tx, id, &c.Meteorology); err != nil {
		return fmt.Errorf("failed to insert meteorology config: %w", err)
	}

	if _, err := tx.Exec(`INSERT INTO imagery_configs (config_id, driver, dsn) VALUES (?, ?, ?)`,
		id, c.Imagery.Driver, nullString(c.Imagery.DSN)); err != nil {
		return fmt.Errorf("failed to insert imagery config: %w", err)
	}

	if c.Storage.TimescaleDB != nil {
		if _, err := tx.Exec(`
			INSERT INTO storage_configs (config_id, backend_type, enabled, timescale_connection_string)
			VALUES (?, 'timescaledb', 1, ?)`, id, c.Storage.TimescaleDB.ConnectionString); err != nil {
			return fmt.Errorf("failed to insert storage config: %w", err)
		}
	}

	if r := c.REST; r != nil {
		if _, err := tx.Exec(`INSERT INTO rest_configs (config_id, tls_cert, tls_key, port, listen_addr) VALUES (?, ?, ?, ?, ?)`,
			id, nullString(r.Cert), nullString(r.Key), r.Port, nullString(r.ListenAddr)); err != nil {
			return fmt.Errorf("failed to insert REST config: %w", err)
		}
	}

	if f := c.Fields; f != nil {
		if _, err := tx.Exec(`
			INSERT INTO fields_configs (config_id, connection_string, schema_name, table_name, buffer)
			VALUES (?, ?, ?, ?, ?)`,
			id, f.ConnectionString, f.Schema, nullString(f.Table), nullFloat64(f.Buffer)); err != nil {
			return fmt.Errorf("failed to insert fields config: %w", err)
		}
	}

	return tx.Commit()
}

func clearExistingConfig(tx *sql.Tx) error {
	for _, table := range []string{
		"job_configs", "engine_configs", "meteorology_configs", "meteorology_overrides",
		"imagery_configs", "storage_configs", "rest_configs", "fields_configs",
	} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE config_id IN (SELECT id FROM configs WHERE name = ?)`, table)
		if _, err := tx.Exec(query, defaultConfigName); err != nil {
			return err
		}
	}
	_, err := tx.Exec(`DELETE FROM configs WHERE name = ?`, defaultConfigName)
	return err
}

func insertMeteorology(tx *sql.Tx, id int64, m *MeteorologyData) error {
	var conn, name sql.NullString
	var height sql.NullFloat64
	var imperial sql.NullBool
	if st := m.Station; st != nil {
		conn, name = nullString(st.ConnectionString), nullString(st.Name)
		height = nullFloat64(st.MeasurementHeight)
		imperial = sql.NullBool{Bool: st.Imperial, Valid: true}
	}

	st := m.Static
	if _, err := tx.Exec(`
		INSERT INTO meteorology_configs (config_id, source, latitude, longitude, elevation,
			air_temperature_c, wind_speed, relative_humidity, rn24, etr_instant, etr24, measurement_height,
			station_connection_string, station_name, station_measurement_height, station_imperial)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, nullString(m.Source), m.Site.Latitude, m.Site.Longitude, m.Site.Elevation,
		st.AirTemperatureC, st.WindSpeed, st.RelativeHumidity, st.Rn24, st.ETrInstant, st.ETr24, st.MeasurementHeight,
		conn, name, height, imperial); err != nil {
		return err
	}

	for date, c := range m.ByDate {
		if _, err := tx.Exec(`
			INSERT INTO meteorology_overrides (config_id, date, air_temperature_c, wind_speed, relative_humidity,
				rn24, etr_instant, etr24, measurement_height)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, date, c.AirTemperatureC, c.WindSpeed, c.RelativeHumidity,
			c.Rn24, c.ETrInstant, c.ETr24, c.MeasurementHeight); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions for handling nullable fields
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat64(f float64) sql.NullFloat64 {
	if f == 0 {
		return sql.NullFloat64{Valid: false}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}
