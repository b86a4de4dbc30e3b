package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pnr_quality/internal/adapters/sbrfeed"
	"pnr_quality/internal/adapters/tabular"
	"pnr_quality/internal/app"
	"pnr_quality/internal/domain"
	"pnr_quality/internal/quality"
)

// ---- fakes ----

type fakeRepo struct {
	mu       sync.Mutex
	pnrs     []domain.PNR
	runs     []domain.ImportRun
	listed   int
	replaced int
	failWith error
}

func (f *fakeRepo) ReplaceAll(ctx context.Context, b domain.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.replaced++
	byCN := map[string]int{}
	f.pnrs = nil
	for _, p := range b.PNRs {
		byCN[p.ControlNumber] = len(f.pnrs)
		f.pnrs = append(f.pnrs, p)
	}
	for _, x := range b.Passengers {
		i := byCN[x.ControlNumber]
		f.pnrs[i].Passengers = append(f.pnrs[i].Passengers, x)
	}
	for _, c := range b.Contacts {
		i := byCN[c.ControlNumber]
		f.pnrs[i].Contacts = append(f.pnrs[i].Contacts, c)
	}
	return nil
}
func (f *fakeRepo) ClearAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pnrs = nil
	return nil
}
func (f *fakeRepo) LogImport(ctx context.Context, run domain.ImportRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}
func (f *fakeRepo) ListPNRs(ctx context.Context, flt domain.PNRFilter) ([]domain.PNR, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed++
	var out []domain.PNR
	for _, p := range f.pnrs {
		if len(flt.Offices) > 0 && !contains(flt.Offices, p.OfficeID) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
func (f *fakeRepo) GetPNR(ctx context.Context, cn string) (domain.PNR, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.pnrs {
		if p.ControlNumber == cn {
			return p, nil
		}
	}
	return domain.PNR{}, domain.ErrNotFound
}
func (f *fakeRepo) LatestImport(ctx context.Context) (domain.ImportRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		return domain.ImportRun{}, domain.ErrNotFound
	}
	return f.runs[len(f.runs)-1], nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// fakeCache round-trips through JSON like the redis adapter does.
type fakeCache struct {
	mu    sync.Mutex
	store map[string][]byte
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}
func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.store[key] = b
	return nil
}

type fakeSource struct{ body string }

func (s fakeSource) Fetch(ctx context.Context, ref string) ([]byte, error) {
	return []byte(s.body), nil
}

const extract = `ControlNumber,OfficeID,creationDate,DeliverySystemCompany,Surname,FirstName,FFNumber,SeatRowNumber,SeatColumn,Meal,ContactType,ContactDetail
TEST001,NBOKQ08AA,010124,1A,DOE,JOHN,KQ1,12,A,AVML,APE,john@example.com
TEST001,NBOKQ08AA,010124,1A,DOE,JOHN,KQ1,12,A,AVML,APM,+254700000000
TEST002,NBOKQ08AA,020124,1A,SMITH,JANE,,,,,APM,jane@example.com
TEST003,WEB001,,1A,ROE,RICK,,,,,,
`

func newServices(repo *fakeRepo, cache *fakeCache) (*app.ImportService, *app.QueryService) {
	imp := app.NewImportService(tabular.NewCSVReader(","), fakeSource{body: extract}, repo, cache, 2)
	q := app.NewQueryService(repo, cache, 5*time.Minute, nil, 2)
	return imp, q
}

// ---- tests ----

func TestImport_ReplacesAndLogs(t *testing.T) {
	repo, cache := &fakeRepo{}, &fakeCache{}
	imp, _ := newServices(repo, cache)

	run, err := imp.ImportReader(context.Background(), "upload.csv", strings.NewReader(extract))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if run.Status != "ok" || run.Rows != 4 || run.PNRs != 3 || run.Passengers != 3 || run.Contacts != 3 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.ID == "" || run.Source != "upload.csv" {
		t.Fatalf("missing run identity: %+v", run)
	}
	if len(repo.runs) != 1 || repo.runs[0].ID != run.ID {
		t.Fatalf("run not logged: %+v", repo.runs)
	}
	var gen string
	if ok, _ := cache.Get(context.Background(), "stats:generation", &gen); !ok || gen != run.ID {
		t.Fatalf("generation not bumped: %q", gen)
	}
}

func TestImport_EmptyTableLeavesDataIntact(t *testing.T) {
	repo, cache := &fakeRepo{}, &fakeCache{}
	imp, _ := newServices(repo, cache)
	ctx := context.Background()

	if _, err := imp.ImportReader(ctx, "a.csv", strings.NewReader(extract)); err != nil {
		t.Fatalf("seed import: %v", err)
	}
	run, err := imp.ImportReader(ctx, "b.csv", strings.NewReader("ControlNumber,OfficeID\n"))
	if !errors.Is(err, domain.ErrEmptyTable) {
		t.Fatalf("expected ErrEmptyTable, got %v", err)
	}
	if run.Status != "failed" || run.Error == "" {
		t.Fatalf("failed run not reported: %+v", run)
	}
	if repo.replaced != 1 || len(repo.pnrs) != 3 {
		t.Fatalf("previous snapshot touched: replaced=%d pnrs=%d", repo.replaced, len(repo.pnrs))
	}
	if len(repo.runs) != 2 {
		t.Fatalf("failed run not logged")
	}
}

func TestImport_MissingColumnAndStoreFailure(t *testing.T) {
	repo, cache := &fakeRepo{}, &fakeCache{}
	imp, _ := newServices(repo, cache)

	_, err := imp.ImportReader(context.Background(), "x.csv", strings.NewReader("Surname\nDOE\n"))
	if !errors.Is(err, domain.ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}

	repo.failWith = errors.New("deadlock")
	run, err := imp.ImportReader(context.Background(), "y.csv", strings.NewReader(extract))
	if err == nil || run.Status != "failed" {
		t.Fatalf("expected store failure to fail the run: %+v %v", run, err)
	}
	if ok, _ := cache.Get(context.Background(), "stats:generation", new(string)); ok {
		t.Fatalf("failed imports must not bump the generation")
	}
}

func TestImportURL(t *testing.T) {
	repo, cache := &fakeRepo{}, &fakeCache{}
	imp, _ := newServices(repo, cache)
	run, err := imp.ImportURL(context.Background(), "https://feed.example/extract.csv")
	if err != nil || run.PNRs != 3 || run.Source != "https://feed.example/extract.csv" {
		t.Fatalf("url import: %+v %v", run, err)
	}

	run, err = imp.ImportURL(context.Background(), "")
	if err != nil || run.Source != "sbrfeed" {
		t.Fatalf("feed import: %+v %v", run, err)
	}

	noSrc := app.NewImportService(tabular.NewCSVReader(","), nil, repo, cache, 1)
	if _, err := noSrc.ImportURL(context.Background(), "https://x"); !errors.Is(err, app.ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
}

func TestImportURL_RejectsForeignHost(t *testing.T) {
	var foreignAuth atomic.Value
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		foreignAuth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(extract))
	}))
	defer foreign.Close()
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// a redirect off the feed must not be followed
		http.Redirect(w, r, foreign.URL+"/steal", http.StatusFound)
	}))
	defer feed.Close()

	src, err := sbrfeed.New(feed.URL, "s3cret", 100, 0)
	if err != nil {
		t.Fatal(err)
	}
	repo, cache := &fakeRepo{}, &fakeCache{}
	imp := app.NewImportService(tabular.NewCSVReader(","), src, repo, cache, 1)

	for _, ref := range []string{foreign.URL + "/steal", "/redirected"} {
		if _, err := imp.ImportURL(context.Background(), ref); !errors.Is(err, domain.ErrForeignSource) {
			t.Fatalf("%s: expected ErrForeignSource, got %v", ref, err)
		}
	}
	if v := foreignAuth.Load(); v != nil {
		t.Fatalf("foreign host was contacted, Authorization=%q", v)
	}
	if repo.replaced != 0 || len(repo.pnrs) != 0 {
		t.Fatalf("a rejected fetch must not touch the dataset")
	}
	if len(repo.runs) != 2 || repo.runs[0].Status != "failed" || repo.runs[0].Error == "" {
		t.Fatalf("failed fetches must be logged: %+v", repo.runs)
	}
	if ok, _ := cache.Get(context.Background(), "stats:generation", new(string)); ok {
		t.Fatalf("failed fetches must not bump the generation")
	}
}

func TestStats_CacheMissThenHitThenInvalidated(t *testing.T) {
	repo, cache := &fakeRepo{}, &fakeCache{}
	imp, q := newServices(repo, cache)
	ctx := context.Background()
	if _, err := imp.ImportReader(ctx, "a.csv", strings.NewReader(extract)); err != nil {
		t.Fatalf("import: %v", err)
	}

	st, err := q.Stats(ctx, domain.PNRFilter{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	// TEST001: 100, TEST002: APM email is misplaced, seat/ff/meal absent -> 0, TEST003: 0
	if st.TotalPNRs != 3 || st.ReachablePNRs != 1 || st.WronglyPlacedContact != 1 || st.MissingContact != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.AvgScore != 33.33 {
		t.Fatalf("avg: %v", st.AvgScore)
	}

	if _, err := q.Stats(ctx, domain.PNRFilter{}); err != nil {
		t.Fatalf("stats again: %v", err)
	}
	if repo.listed != 1 {
		t.Fatalf("expected cache hit, repo listed %d times", repo.listed)
	}

	// a new import switches generation; the cached result is not served
	if _, err := imp.ImportReader(ctx, "b.csv", strings.NewReader(strings.SplitAfter(extract, "\n")[0]+"ONLY1,NBO,,,,,,,,,APE,a@b.co\n")); err != nil {
		t.Fatalf("reimport: %v", err)
	}
	st, err = q.Stats(ctx, domain.PNRFilter{})
	if err != nil {
		t.Fatalf("stats after import: %v", err)
	}
	if st.TotalPNRs != 1 || repo.listed != 2 {
		t.Fatalf("stale stats served: %+v listed=%d", st, repo.listed)
	}

	if err := imp.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	st, _ = q.Stats(ctx, domain.PNRFilter{})
	if st.TotalPNRs != 0 {
		t.Fatalf("stats after clear: %+v", st)
	}
}

func TestGroups_IncludesFilteredOffices(t *testing.T) {
	repo, cache := &fakeRepo{}, &fakeCache{}
	imp, q := newServices(repo, cache)
	ctx := context.Background()
	if _, err := imp.ImportReader(ctx, "a.csv", strings.NewReader(extract)); err != nil {
		t.Fatalf("import: %v", err)
	}

	gs, err := q.Groups(ctx, domain.PNRFilter{Offices: []string{"NBOKQ08AA", "MBA001"}}, "office")
	if err != nil {
		t.Fatalf("groups: %v", err)
	}
	if len(gs) != 2 || gs[0].Group != "MBA001" || gs[0].Count != 0 || gs[1].Count != 2 {
		t.Fatalf("unexpected groups: %+v", gs)
	}

	if _, err := q.Groups(ctx, domain.PNRFilter{}, "planet"); !errors.Is(err, app.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestListPNRs_FlagAndPaging(t *testing.T) {
	repo, cache := &fakeRepo{}, &fakeCache{}
	imp, q := newServices(repo, cache)
	ctx := context.Background()
	if _, err := imp.ImportReader(ctx, "a.csv", strings.NewReader(extract)); err != nil {
		t.Fatalf("import: %v", err)
	}

	pg, err := q.ListPNRs(ctx, domain.PNRFilter{}, "", 2, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if pg.Total != 3 || len(pg.Items) != 2 || pg.Items[0].ControlNumber != "TEST002" {
		t.Fatalf("unexpected page: %+v", pg)
	}

	pg, _ = q.ListPNRs(ctx, domain.PNRFilter{}, app.FlagUnreachable, 0, 0)
	if pg.Total != 2 || pg.Limit != 50 {
		t.Fatalf("unreachable page: %+v", pg)
	}
	pg, _ = q.ListPNRs(ctx, domain.PNRFilter{}, app.FlagWronglyPlaced, 10, 0)
	if pg.Total != 1 || pg.Items[0].ControlNumber != "TEST002" {
		t.Fatalf("wrongly placed page: %+v", pg)
	}

	if _, err := q.ListPNRs(ctx, domain.PNRFilter{}, "sparkly", 10, 0); !errors.Is(err, app.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestGetPNR_ScoredAndCached(t *testing.T) {
	repo, cache := &fakeRepo{}, &fakeCache{}
	imp, q := newServices(repo, cache)
	ctx := context.Background()
	if _, err := imp.ImportReader(ctx, "a.csv", strings.NewReader(extract)); err != nil {
		t.Fatalf("import: %v", err)
	}

	p, err := q.GetPNR(ctx, "TEST001")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Score != quality.MaxScore || len(p.Classifications) != 2 {
		t.Fatalf("unexpected scored pnr: %+v", p)
	}
	// second read comes from the cache even if the store changes underneath
	repo.pnrs = nil
	if p, err = q.GetPNR(ctx, "TEST001"); err != nil || p.Score != quality.MaxScore {
		t.Fatalf("cached get: %+v %v", p, err)
	}

	if _, err := q.GetPNR(ctx, "NOPE"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLatestImportAndClassify(t *testing.T) {
	repo, cache := &fakeRepo{}, &fakeCache{}
	imp, q := newServices(repo, cache)
	ctx := context.Background()

	if _, err := q.LatestImport(ctx); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	run, _ := imp.ImportReader(ctx, "a.csv", strings.NewReader(extract))
	got, err := q.LatestImport(ctx)
	if err != nil || got.ID != run.ID {
		t.Fatalf("latest: %+v %v", got, err)
	}

	c := q.Classify("APM", "john@example.com")
	if !c.IsWronglyPlaced || c.IsValidEmail || c.IsValidPhone {
		t.Fatalf("unexpected classification: %+v", c)
	}
}
