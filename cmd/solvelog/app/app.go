package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	sexa "github.com/soniakeys/sexagesimal"
	"github.com/soniakeys/unit"

	"github.com/colibri-telescope/astrocorr/internal/offset"
	"github.com/colibri-telescope/astrocorr/internal/storage"
)

func Run(ctx context.Context, config *Config, w io.Writer) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	opts := []storage.RunsOption{storage.WithLimit(config.Limit)}
	if config.FrameID != "" {
		opts = append(opts, storage.WithFrameID(config.FrameID))
	}
	if config.State != "" {
		opts = append(opts, storage.WithState(strings.ToUpper(config.State)))
	}

	runs, err := store.Runs(ctx, opts...)
	if err != nil {
		return fmt.Errorf("reading runs: %w", err)
	}

	return printRuns(w, runs, config.Verbose)
}

func printRuns(w io.Writer, runs []*storage.Run, verbose bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "STARTED\tINPUT\tSTATE\tSOLVER\tCENTRE\tOFFSET\tTOOK")
	for _, r := range runs {
		solvedBy := r.Strategy
		if solvedBy == "" {
			solvedBy = "-"
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(r.StartedAt),
			r.InputPath,
			r.State,
			solvedBy,
			centre(r),
			offsetOf(r),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

		if verbose {
			printDetails(tw, r)
		}
	}

	return tw.Flush()
}

func printDetails(w io.Writer, r *storage.Run) {
	_, _ = fmt.Fprintf(w, "\trun %s, frame %s\n", r.RunID, orDash(r.FrameID))
	_, _ = fmt.Fprintf(w, "\ttarget %s\n", offset.Coordinates{RA: r.TargetRA, Dec: r.TargetDec})

	if r.SiteLatitude != nil && r.SiteLongitude != nil {
		line := fmt.Sprintf("\tsite %+.0d %+.0d",
			sexa.FmtAngle(unit.AngleFromDeg(*r.SiteLatitude)),
			sexa.FmtAngle(unit.AngleFromDeg(*r.SiteLongitude)))
		if r.TargetAltitude != nil {
			line += fmt.Sprintf(", target altitude %.1f°", *r.TargetAltitude)
		}
		_, _ = fmt.Fprintln(w, line)
	}
	if r.Error != "" {
		_, _ = fmt.Fprintf(w, "\terror: %s\n", r.Error)
	}

	keys := make([]string, 0, len(r.WCS))
	for k := range r.WCS {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "\t  %-8s = %v\n", k, r.WCS[k])
	}
}

func centre(r *storage.Run) string {
	if r.CentreRA == nil || r.CentreDec == nil {
		return "-"
	}
	return offset.Coordinates{RA: *r.CentreRA, Dec: *r.CentreDec}.String()
}

func offsetOf(r *storage.Run) string {
	if r.OffsetRA == nil || r.OffsetDec == nil {
		return offset.FailSafe
	}
	return offset.Offset{RA: *r.OffsetRA, Dec: *r.OffsetDec}.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
