package timescaledb

const createExtensionSQL = `CREATE EXTENSION IF NOT EXISTS timescaledb;`

const createHypertableSQL = `SELECT create_hypertable('et_scene_results', 'acquired', if_not_exists => true, migrate_data => true);`

const createResultIndexSQL = `CREATE INDEX IF NOT EXISTS et_scene_results_run_idx ON et_scene_results (run_id, acquired);`

// Daily mean ET, one row per run per sensor per day.
const createDailyViewSQL = `
CREATE OR REPLACE VIEW et_daily AS
SELECT
    run_id,
    time_bucket('1 day', acquired) AS bucket,
    sensor,
    avg(mean_et) AS mean_et,
    max(max_et) AS max_et,
    sum(valid_pixels) AS valid_pixels
FROM et_scene_results
GROUP BY run_id, bucket, sensor;`
