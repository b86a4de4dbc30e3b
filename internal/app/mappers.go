package app

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"pnr_quality/internal/adapters/observability"
	"pnr_quality/internal/domain"
	"pnr_quality/internal/importer"
	"pnr_quality/internal/quality"
)

/********** import run mapping **********/

func mapRun(run domain.ImportRun, res importer.Result, err error, done time.Time) domain.ImportRun {
	run.Rows = res.Stats.Rows
	run.Processed = res.Stats.Processed
	run.Skipped = res.Stats.Skipped
	run.BadDates = res.Stats.BadDates
	run.CompletedAt = done
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
		return run
	}
	run.Status = "ok"
	run.PNRs = len(res.Batch.PNRs)
	run.Passengers = len(res.Batch.Passengers)
	run.Contacts = len(res.Batch.Contacts)
	return run
}

func rowCounts(st importer.Stats) observability.RowCounts {
	return observability.RowCounts{
		Processed:           st.Processed,
		Skipped:             st.Skipped,
		BadDates:            st.BadDates,
		DuplicatePassengers: st.DuplicatePassengers,
		DuplicateContacts:   st.DuplicateContacts,
	}
}

/********** cache keys **********/

// filterKey is stable under reordering of the filter's lists.
func filterKey(f domain.PNRFilter) string {
	sorted := func(in []string) string {
		cp := append([]string(nil), in...)
		sort.Strings(cp)
		return strings.Join(cp, ",")
	}
	day := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format("2006-01-02")
	}
	return strings.Join([]string{sorted(f.Offices), sorted(f.DeliverySystems), day(f.From), day(f.To)}, "|")
}

func cacheKey(generation, kind string, f domain.PNRFilter, extra ...string) string {
	parts := append([]string{kind, filterKey(f)}, extra...)
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return "stats:" + generation + ":" + hex.EncodeToString(sum[:])
}

/********** flags **********/

const (
	FlagMissingContact = "missing_contact"
	FlagWronglyPlaced  = "wrongly_placed"
	FlagWrongFormat    = "wrong_format"
	FlagUnreachable    = "unreachable"
)

// flagFilter returns the predicate for a list flag; "" matches everything.
func flagFilter(flag string) (func(quality.ScoredPNR) bool, bool) {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "":
		return func(quality.ScoredPNR) bool { return true }, true
	case FlagMissingContact:
		return func(p quality.ScoredPNR) bool { return p.MissingContact }, true
	case FlagWronglyPlaced:
		return func(p quality.ScoredPNR) bool { return p.WronglyPlacedContact }, true
	case FlagWrongFormat:
		return func(p quality.ScoredPNR) bool { return p.WrongFormatContact }, true
	case FlagUnreachable:
		return func(p quality.ScoredPNR) bool { return !p.Earned(quality.ComponentContact) }, true
	}
	return nil, false
}
