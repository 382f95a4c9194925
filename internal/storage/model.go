package storage

import (
	"database/sql"
	"time"
)

// Run is one pointing correction attempt as recorded in the journal
type Run struct {
	ID         int64
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	InputPath string
	FrameID   string
	State     string // final pipeline state
	Strategy  string // solver that produced the solution, or "cache"
	CacheHit  bool

	TargetRA  float64
	TargetDec float64

	CentreRA  *float64
	CentreDec *float64
	OffsetRA  *float64
	OffsetDec *float64

	SiteLatitude   *float64
	SiteLongitude  *float64
	TargetAltitude *float64 // degrees above the horizon at exposure time

	Error string

	// WCS holds the solution keywords, stored CBOR encoded
	WCS map[string]any
}

type runData struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	InputPath  string
	FrameID    sql.NullString
	State      string
	Strategy   sql.NullString
	CacheHit   bool
	TargetRA   float64
	TargetDec  float64

	CentreRA  sql.NullFloat64
	CentreDec sql.NullFloat64
	OffsetRA  sql.NullFloat64
	OffsetDec sql.NullFloat64

	SiteLatitude   sql.NullFloat64
	SiteLongitude  sql.NullFloat64
	TargetAltitude sql.NullFloat64

	Error sql.NullString
	WCS   []byte
}
