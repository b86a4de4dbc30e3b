package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"pnr_quality/internal/adapters/observability"
	"pnr_quality/internal/domain"
	"pnr_quality/internal/importer"
)

// generationKey holds the id of the import that produced the stored
// snapshot. Every memoized result is keyed under it.
const generationKey = "stats:generation"

var ErrNoSource = errors.New("no source client configured")

type ImportService struct {
	reader domain.TableReader
	source domain.SourceClient
	dedup  *importer.Deduplicator
	repo   domain.PNRRepository
	cache  domain.Cache
	now    func() time.Time

	// one replace at a time; a second import waits for the first
	running *semaphore.Weighted
}

// NewImportService accepts a nil source (URL imports disabled) and a nil cache.
func NewImportService(tr domain.TableReader, src domain.SourceClient, r domain.PNRRepository, c domain.Cache, workers int) *ImportService {
	return &ImportService{
		reader: tr,
		source: src,
		dedup:  importer.NewDeduplicator(workers),
		repo:   r,
		cache:  c,
		now:    time.Now,

		running: semaphore.NewWeighted(1),
	}
}

// ImportReader replaces the stored dataset with the table read from r.
// A batch-level failure leaves the previous snapshot untouched; the run is
// logged either way.
func (s *ImportService) ImportReader(ctx context.Context, source string, r io.Reader) (domain.ImportRun, error) {
	if err := s.running.Acquire(ctx, 1); err != nil {
		return domain.ImportRun{}, err
	}
	defer s.running.Release(1)

	run := domain.ImportRun{ID: uuid.NewString(), Source: source, StartedAt: s.now().UTC()}
	lg := log.With().Str("run", run.ID).Str("source", source).Logger()

	res, err := s.load(ctx, r)
	if err == nil {
		err = s.repo.ReplaceAll(ctx, res.Batch)
	}
	run = s.record(ctx, run, res, err)
	if err != nil {
		lg.Error().Err(err).Int("rows", res.Stats.Rows).Msg("import failed")
		return run, err
	}
	s.bumpGeneration(ctx, run.ID)

	lg.Info().
		Int("rows", run.Rows).
		Int("processed", run.Processed).
		Int("skipped", run.Skipped).
		Int("bad_dates", run.BadDates).
		Int("pnrs", run.PNRs).
		Int("passengers", run.Passengers).
		Int("contacts", run.Contacts).
		Dur("took", run.CompletedAt.Sub(run.StartedAt)).
		Msg("import done")
	return run, nil
}

// record finishes run, writes it to the import log and the metrics.
func (s *ImportService) record(ctx context.Context, run domain.ImportRun, res importer.Result, err error) domain.ImportRun {
	run = mapRun(run, res, err, s.now().UTC())
	if lerr := s.repo.LogImport(ctx, run); lerr != nil {
		log.Warn().Err(lerr).Str("run", run.ID).Msg("import log write failed")
	}
	observability.ObserveImport(run.Status, rowCounts(res.Stats), run.CompletedAt.Sub(run.StartedAt), err)
	return run
}

func (s *ImportService) load(ctx context.Context, r io.Reader) (importer.Result, error) {
	t, err := s.reader.Read(r)
	if err != nil {
		return importer.Result{}, err
	}
	return s.dedup.Run(ctx, t)
}

// ImportURL downloads an extract from the configured feed, then imports it.
// ref is a path or URL on the feed; "" imports the feed URL itself. A failed
// download is logged as a failed run and leaves the stored dataset alone.
func (s *ImportService) ImportURL(ctx context.Context, ref string) (domain.ImportRun, error) {
	if s.source == nil {
		return domain.ImportRun{}, ErrNoSource
	}
	source := ref
	if source == "" {
		source = "sbrfeed"
	}
	started := s.now().UTC()
	b, err := s.source.Fetch(ctx, ref)
	if err != nil {
		err = fmt.Errorf("fetch %s: %w", source, err)
		run := domain.ImportRun{ID: uuid.NewString(), Source: source, StartedAt: started}
		run = s.record(ctx, run, importer.Result{}, err)
		log.Error().Err(err).Str("run", run.ID).Msg("import failed")
		return run, err
	}
	return s.ImportReader(ctx, source, bytes.NewReader(b))
}

// Clear removes every PNR, passenger and contact.
func (s *ImportService) Clear(ctx context.Context) error {
	if err := s.running.Acquire(ctx, 1); err != nil {
		return err
	}
	defer s.running.Release(1)

	if err := s.repo.ClearAll(ctx); err != nil {
		return err
	}
	s.bumpGeneration(ctx, "clear-"+uuid.NewString())
	log.Info().Msg("dataset cleared")
	return nil
}

func (s *ImportService) bumpGeneration(ctx context.Context, gen string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, generationKey, gen, 0); err != nil {
		// the old generation's entries still expire on their TTL
		log.Warn().Err(err).Msg("cache generation bump failed")
	}
}
