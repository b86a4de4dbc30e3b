//go:build integration || !unit

package integration

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"

	server "pnr_quality/internal/adapters/http_server"
	redisad "pnr_quality/internal/adapters/redis"
	"pnr_quality/internal/adapters/tabular"
	"pnr_quality/internal/app"
	"pnr_quality/internal/domain"
	"pnr_quality/internal/quality"
	mysqlrepo "pnr_quality/internal/storage/mysql"
)

// ---------- helpers ----------
func mustEnv(t *testing.T, k string) string {
	t.Helper()
	v := os.Getenv(k)
	if v == "" {
		t.Fatalf("%s not set; export it (e.g. MIGRATIONS_DIR=/path/to/sql)", k)
	}
	return v
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := mustEnv(t, "MIGRATIONS_DIR")

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)
	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

// one booking, two passengers, three contacts, denormalized to six rows
const extract = `ControlNumber,OfficeID,Agent,creationDate,DeliverySystemCompany,DeliverySystemLocation,Surname,FirstName,FFNumber,SeatRowNumber,SeatColumn,Meal,ContactType,ContactDetail
TEST001,NBOKQ08AA,0001AA,010124,1A,NBO,DOE,JOHN,KQ1,12,A,AVML,APE,john@example.com
TEST001,NBOKQ08AA,0001AA,010124,1A,NBO,DOE,JOHN,KQ1,12,A,AVML,APM,+254700000000
TEST001,NBOKQ08AA,0001AA,010124,1A,NBO,DOE,JOHN,KQ1,12,A,AVML,APE,jane@example.com
TEST001,NBOKQ08AA,0001AA,010124,1A,NBO,SMITH,JANE,,,,,APE,john@example.com
TEST001,NBOKQ08AA,0001AA,010124,1A,NBO,SMITH,JANE,,,,,APM,+254700000000
TEST001,NBOKQ08AA,0001AA,010124,1A,NBO,SMITH,JANE,,,,,APE,jane@example.com
TEST002,WEB001,0002BB,02/01/2024,1A,MBA,ROE,RICK,,,,,APM,rick@example.com
`

func post(t *testing.T, url string) domain.ImportRun {
	t.Helper()
	res, err := http.Post(url+"/v1/imports", "text/csv", strings.NewReader(extract))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("import status %d", res.StatusCode)
	}
	var run domain.ImportRun
	if err := json.NewDecoder(res.Body).Decode(&run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	return run
}

func get(t *testing.T, url string, dst any) {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

// ---------- the test ----------
func TestHTTP_EndToEnd_ImportAndScore(t *testing.T) {
	// Start isolated MySQL container
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=pnrq",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		"root", hostPort, "pnrq")

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	// Apply the real migrations
	applyMigrations(t, db)

	mr := miniredis.RunT(t)
	cache := redisad.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = cache.Close() })

	repo := mysqlrepo.New(db)
	srv := server.New(server.Options{})
	srv.MountHandlers(&server.Handlers{
		Q: app.NewQueryService(repo, cache, 5*time.Minute, nil, 4),
		I: app.NewImportService(tabular.NewCSVReader(","), nil, repo, cache, 4),
	})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	// Importing the same extract twice yields the same dataset
	for i := 0; i < 2; i++ {
		run := post(t, ts.URL)
		if run.PNRs != 2 || run.Passengers != 3 || run.Contacts != 4 || run.Rows != 7 {
			t.Fatalf("run %d: %+v", i, run)
		}
		if n := countRows(t, db, "pnrs"); n != 2 {
			t.Fatalf("pnrs after run %d: %d", i, n)
		}
		if n := countRows(t, db, "contacts"); n != 4 {
			t.Fatalf("contacts after run %d: %d", i, n)
		}
	}

	var st quality.Stats
	get(t, ts.URL+"/v1/stats", &st)
	if st.TotalPNRs != 2 || st.AvgScore != 50 || st.WronglyPlacedContact != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}

	var p quality.ScoredPNR
	get(t, ts.URL+"/v1/pnrs/TEST001", &p)
	if p.Score != 100 || len(p.Passengers) != 2 || len(p.Contacts) != 3 {
		t.Fatalf("unexpected pnr: %+v", p)
	}
	if p.CreationDate == nil || !p.CreationDate.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("creation date: %v", p.CreationDate)
	}

	var groups struct {
		Groups []quality.GroupSummary `json:"groups"`
	}
	get(t, ts.URL+"/v1/stats/groups?by=day&from=2024-01-02&to=2024-01-02", &groups)
	if len(groups.Groups) != 1 || groups.Groups[0].Group != "2024-01-02" || groups.Groups[0].Count != 1 {
		t.Fatalf("unexpected groups: %+v", groups.Groups)
	}
}
