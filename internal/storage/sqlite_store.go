// Package storage keeps a journal of pointing correction runs in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// RunsOption narrows a journal query
type RunsOption func(q *runsQuery)

type runsQuery struct {
	limit   int
	frameID string
	state   string
}

// WithLimit returns at most n runs, newest first
func WithLimit(n int) RunsOption {
	return func(q *runsQuery) {
		q.limit = n
	}
}

// WithFrameID returns only runs of the given frame
func WithFrameID(frameID string) RunsOption {
	return func(q *runsQuery) {
		q.frameID = frameID
	}
}

// WithState returns only runs that ended in state
func WithState(state string) RunsOption {
	return func(q *runsQuery) {
		q.state = state
	}
}

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store for the database at dbPath. The database and
// its schema are created on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// RecordRun appends a run to the journal and returns its row ID
func (s *SqliteStore) RecordRun(ctx context.Context, r *Run) (id int64, err error) {
	data, err := toRunData(r)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertRunSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(
		ctx,
		data.RunID,
		data.StartedAt,
		data.FinishedAt,
		data.InputPath,
		data.FrameID,
		data.State,
		data.Strategy,
		data.CacheHit,
		data.TargetRA,
		data.TargetDec,
		data.CentreRA,
		data.CentreDec,
		data.OffsetRA,
		data.OffsetDec,
		data.SiteLatitude,
		data.SiteLongitude,
		data.TargetAltitude,
		data.Error,
		data.WCS,
	)
	if err != nil {
		err = fmt.Errorf("inserting run: %w", err)
		return
	}

	id, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting run ID: %w", err)
	}
	return
}

// Runs returns journal entries, newest first
func (s *SqliteStore) Runs(ctx context.Context, options ...RunsOption) (runs []*Run, err error) {
	var q runsQuery
	for _, option := range options {
		option(&q)
	}

	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	var (
		sb    strings.Builder
		where []string
		args  []any
	)
	sb.WriteString(selectRunsSQL)

	if q.frameID != "" {
		where = append(where, "frame_id = ?")
		args = append(args, q.frameID)
	}
	if q.state != "" {
		where = append(where, "state = ?")
		args = append(args, q.state)
	}
	if len(where) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString("\nORDER BY started_at DESC, id DESC")
	if q.limit > 0 {
		sb.WriteString("\nLIMIT ?")
		args = append(args, q.limit)
	}

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		err = fmt.Errorf("querying runs: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			id int64
			d  runData
		)
		if err = rows.Scan(
			&id,
			&d.RunID,
			&d.StartedAt,
			&d.FinishedAt,
			&d.InputPath,
			&d.FrameID,
			&d.State,
			&d.Strategy,
			&d.CacheHit,
			&d.TargetRA,
			&d.TargetDec,
			&d.CentreRA,
			&d.CentreDec,
			&d.OffsetRA,
			&d.OffsetDec,
			&d.SiteLatitude,
			&d.SiteLongitude,
			&d.TargetAltitude,
			&d.Error,
			&d.WCS,
		); err != nil {
			err = fmt.Errorf("scanning run: %w", err)
			return
		}

		var run *Run
		if run, err = fromRunData(id, &d); err != nil {
			return
		}
		runs = append(runs, run)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
