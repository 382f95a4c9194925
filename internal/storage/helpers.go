package storage

import (
	"database/sql"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func toRunData(r *Run) (*runData, error) {
	var blob []byte
	if len(r.WCS) > 0 {
		var err error
		if blob, err = cborMode.Marshal(r.WCS); err != nil {
			return nil, fmt.Errorf("encoding WCS keywords: %w", err)
		}
	}

	return &runData{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		InputPath:  r.InputPath,
		FrameID:    toNullString(r.FrameID),
		State:      r.State,
		Strategy:   toNullString(r.Strategy),
		CacheHit:   r.CacheHit,
		TargetRA:   r.TargetRA,
		TargetDec:  r.TargetDec,

		CentreRA:  toNullFloat(r.CentreRA),
		CentreDec: toNullFloat(r.CentreDec),
		OffsetRA:  toNullFloat(r.OffsetRA),
		OffsetDec: toNullFloat(r.OffsetDec),

		SiteLatitude:   toNullFloat(r.SiteLatitude),
		SiteLongitude:  toNullFloat(r.SiteLongitude),
		TargetAltitude: toNullFloat(r.TargetAltitude),

		Error: toNullString(r.Error),
		WCS:   blob,
	}, nil
}

func fromRunData(id int64, d *runData) (*Run, error) {
	r := Run{
		ID:         id,
		RunID:      d.RunID,
		StartedAt:  d.StartedAt,
		FinishedAt: d.FinishedAt,
		InputPath:  d.InputPath,
		FrameID:    d.FrameID.String,
		State:      d.State,
		Strategy:   d.Strategy.String,
		CacheHit:   d.CacheHit,
		TargetRA:   d.TargetRA,
		TargetDec:  d.TargetDec,

		CentreRA:  fromNullFloat(d.CentreRA),
		CentreDec: fromNullFloat(d.CentreDec),
		OffsetRA:  fromNullFloat(d.OffsetRA),
		OffsetDec: fromNullFloat(d.OffsetDec),

		SiteLatitude:   fromNullFloat(d.SiteLatitude),
		SiteLongitude:  fromNullFloat(d.SiteLongitude),
		TargetAltitude: fromNullFloat(d.TargetAltitude),

		Error: d.Error.String,
	}

	if len(d.WCS) > 0 {
		if err := cbor.Unmarshal(d.WCS, &r.WCS); err != nil {
			return nil, fmt.Errorf("decoding WCS keywords: %w", err)
		}
	}

	return &r, nil
}

func toNullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func fromNullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return &f.Float64
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// cborMode sorts map keys so identical solutions produce identical blobs
var cborMode cbor.EncMode

func init() {
	var err error
	if cborMode, err = cbor.CanonicalEncOptions().EncMode(); err != nil {
		panic(err)
	}
}
