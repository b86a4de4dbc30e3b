package domain

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrEmptyTable    = errors.New("table has no data rows")
	ErrMissingColumn = errors.New("required column missing")
	ErrForeignSource = errors.New("source is outside the configured feed")
)

type PNRRepository interface {
	// Write paths
	ReplaceAll(ctx context.Context, b Batch) error
	ClearAll(ctx context.Context) error
	LogImport(ctx context.Context, run ImportRun) error

	// Read paths
	ListPNRs(ctx context.Context, f PNRFilter) ([]PNR, error)
	GetPNR(ctx context.Context, controlNumber string) (PNR, error)
	LatestImport(ctx context.Context) (ImportRun, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
}

// TableReader turns an uploaded file into string-typed rows.
type TableReader interface {
	Read(r io.Reader) (Table, error)
}

// SourceClient downloads a booking extract from the configured feed.
// ref is resolved against the feed URL; "" fetches the feed URL itself and
// any other scheme or host fails with ErrForeignSource.
type SourceClient interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Batch is one deduplicated import, ready for insertion.
// Passengers and Contacts reference their PNR by ControlNumber.
type Batch struct {
	PNRs       []PNR
	Passengers []Passenger
	Contacts   []Contact
}

// Table is a header plus rows; every row has len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]string
}

type PNRFilter struct {
	Offices         []string
	DeliverySystems []string
	From, To        *time.Time // inclusive creation date bounds
}
