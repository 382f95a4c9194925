package storage

import (
	_ "embed"
)

const (
	insertRunSQL = `
INSERT INTO runs (run_id,
                  started_at,
                  finished_at,
                  input_path,
                  frame_id,
                  state,
                  strategy,
                  cache_hit,
                  target_ra,
                  target_dec,
                  centre_ra,
                  centre_dec,
                  offset_ra,
                  offset_dec,
                  site_latitude,
                  site_longitude,
                  target_altitude,
                  error,
                  wcs)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectRunsSQL = `
SELECT id,
       run_id,
       started_at,
       finished_at,
       input_path,
       frame_id,
       state,
       strategy,
       cache_hit,
       target_ra,
       target_dec,
       centre_ra,
       centre_dec,
       offset_ra,
       offset_dec,
       site_latitude,
       site_longitude,
       target_altitude,
       error,
       wcs
FROM runs`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at);
CREATE INDEX IF NOT EXISTS idx_runs_frame_id ON runs (frame_id);`
)

//go:embed schema.sql
var initSchemaSQL string
