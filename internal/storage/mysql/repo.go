package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"pnr_quality/internal/domain"
)

// chunkSize bounds the tuples per INSERT, well under max_allowed_packet
// and the 65535 placeholder limit.
const chunkSize = 500

func valStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func valTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

func nullStr(s sql.NullString) string {
	if s.Valid {
		return s.String
	}
	return ""
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// ReplaceAll swaps the whole dataset for b in one transaction, so readers
// see either the previous snapshot or the new one.
func (r *Repo) ReplaceAll(ctx context.Context, b domain.Batch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := clearAll(ctx, tx); err != nil {
		return err
	}
	if err := insertPNRs(ctx, tx, b.PNRs); err != nil {
		return fmt.Errorf("insert pnrs: %w", err)
	}

	ids, err := pnrIDs(ctx, tx)
	if err != nil {
		return err
	}
	if err := insertPassengers(ctx, tx, ids, b.Passengers); err != nil {
		return fmt.Errorf("insert passengers: %w", err)
	}
	if err := insertContacts(ctx, tx, ids, b.Contacts); err != nil {
		return fmt.Errorf("insert contacts: %w", err)
	}
	return tx.Commit()
}

func (r *Repo) ClearAll(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := clearAll(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func clearAll(ctx context.Context, tx *sql.Tx) error {
	for _, q := range []string{deleteContactsSQL, deletePassengersSQL, deletePNRsSQL} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
	}
	return nil
}

// insertChunked runs prefix + tuples in chunks; row appends one tuple's args.
func insertChunked(ctx context.Context, tx *sql.Tx, prefix, tuple string, n, perRow int, row func(i int, args []any) []any) error {
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		values := make([]string, 0, end-start)
		args := make([]any, 0, (end-start)*perRow)
		for i := start; i < end; i++ {
			values = append(values, tuple)
			args = row(i, args)
		}
		if _, err := tx.ExecContext(ctx, prefix+strings.Join(values, ","), args...); err != nil {
			return err
		}
	}
	return nil
}

func insertPNRs(ctx context.Context, tx *sql.Tx, ps []domain.PNR) error {
	return insertChunked(ctx, tx, insertPNRsPrefix, "(?,?,?,?,?,?)", len(ps), 6, func(i int, args []any) []any {
		p := ps[i]
		return append(args,
			p.ControlNumber,
			p.OfficeID,
			p.Agent,
			valTime(p.CreationDate),
			p.DeliverySystemCompany,
			p.DeliverySystemLocation,
		)
	})
}

func pnrIDs(ctx context.Context, tx *sql.Tx) (map[string]int64, error) {
	rows, err := tx.QueryContext(ctx, selectPNRIDsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var id int64
		var cn string
		if err := rows.Scan(&id, &cn); err != nil {
			return nil, err
		}
		ids[cn] = id
	}
	return ids, rows.Err()
}

func insertPassengers(ctx context.Context, tx *sql.Tx, ids map[string]int64, ps []domain.Passenger) error {
	ps = ownedBy(ids, ps, func(p domain.Passenger) string { return p.ControlNumber })
	return insertChunked(ctx, tx, insertPassengersPrefix, "(?,?,?,?,?,?,?,?,?,?)", len(ps), 10, func(i int, args []any) []any {
		p := ps[i]
		return append(args,
			ids[p.ControlNumber],
			p.Surname, p.FirstName, p.FFNumber, p.FFTier,
			p.BoardPoint, p.OffPoint, p.SeatRowNumber, p.SeatColumn, p.Meal,
		)
	})
}

func insertContacts(ctx context.Context, tx *sql.Tx, ids map[string]int64, cs []domain.Contact) error {
	cs = ownedBy(ids, cs, func(c domain.Contact) string { return c.ControlNumber })
	return insertChunked(ctx, tx, insertContactsPrefix, "(?,?,?)", len(cs), 3, func(i int, args []any) []any {
		c := cs[i]
		return append(args, ids[c.ControlNumber], c.ContactType, c.ContactDetail)
	})
}

// ownedBy drops children whose booking was not inserted.
func ownedBy[T any](ids map[string]int64, in []T, cn func(T) string) []T {
	out := in[:0:0]
	for _, v := range in {
		if _, ok := ids[cn(v)]; ok {
			out = append(out, v)
		}
	}
	return out
}

func (r *Repo) LogImport(ctx context.Context, run domain.ImportRun) error {
	_, err := r.db.ExecContext(ctx, insertImportRunSQL,
		run.ID,
		run.Source,
		run.Status,
		run.Rows,
		run.Processed,
		run.Skipped,
		run.BadDates,
		run.PNRs,
		run.Passengers,
		run.Contacts,
		valStr(run.Error),
		run.StartedAt.UTC(),
		run.CompletedAt.UTC(),
	)
	return err
}

func (r *Repo) LatestImport(ctx context.Context) (domain.ImportRun, error) {
	var run domain.ImportRun
	var errText sql.NullString
	err := r.db.QueryRowContext(ctx, latestImportSQL).Scan(
		&run.ID,
		&run.Source,
		&run.Status,
		&run.Rows,
		&run.Processed,
		&run.Skipped,
		&run.BadDates,
		&run.PNRs,
		&run.Passengers,
		&run.Contacts,
		&errText,
		&run.StartedAt,
		&run.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return domain.ImportRun{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ImportRun{}, err
	}
	run.Error = nullStr(errText)
	return run, nil
}

// filterClause renders f against the p alias.
func filterClause(f domain.PNRFilter) (string, []any) {
	var where []string
	var args []any
	in := func(col string, vals []string) {
		if len(vals) == 0 {
			return
		}
		marks := strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",")
		where = append(where, col+" IN ("+marks+")")
		for _, v := range vals {
			args = append(args, v)
		}
	}
	in("p.office_id", f.Offices)
	in("p.delivery_system_company", f.DeliverySystems)
	if f.From != nil {
		where = append(where, "p.creation_date >= ?")
		args = append(args, valTime(f.From))
	}
	if f.To != nil {
		where = append(where, "p.creation_date <= ?")
		args = append(args, valTime(f.To))
	}
	if len(where) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(where, " AND ") + "\n", args
}

func (r *Repo) ListPNRs(ctx context.Context, f domain.PNRFilter) ([]domain.PNR, error) {
	where, args := filterClause(f)
	pnrs, err := r.queryPNRs(ctx, selectPNRsSQL+where+"ORDER BY p.id", args...)
	if err != nil {
		return nil, err
	}
	if err := r.attach(ctx, pnrs, where, args); err != nil {
		return nil, err
	}
	return pnrs, nil
}

func (r *Repo) GetPNR(ctx context.Context, controlNumber string) (domain.PNR, error) {
	where := "WHERE p.control_number = ?\n"
	args := []any{controlNumber}
	pnrs, err := r.queryPNRs(ctx, selectPNRsSQL+where, args...)
	if err != nil {
		return domain.PNR{}, err
	}
	if len(pnrs) == 0 {
		return domain.PNR{}, domain.ErrNotFound
	}
	if err := r.attach(ctx, pnrs, where, args); err != nil {
		return domain.PNR{}, err
	}
	return pnrs[0], nil
}

func (r *Repo) queryPNRs(ctx context.Context, q string, args ...any) ([]domain.PNR, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PNR
	for rows.Next() {
		var p domain.PNR
		var created sql.NullTime
		if err := rows.Scan(
			&p.ID,
			&p.ControlNumber,
			&p.OfficeID,
			&p.Agent,
			&created,
			&p.DeliverySystemCompany,
			&p.DeliverySystemLocation,
		); err != nil {
			return nil, err
		}
		if created.Valid {
			d := created.Time.UTC()
			p.CreationDate = &d
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// attach loads passengers and contacts for pnrs with the same WHERE clause.
func (r *Repo) attach(ctx context.Context, pnrs []domain.PNR, where string, args []any) error {
	byID := make(map[int64]*domain.PNR, len(pnrs))
	for i := range pnrs {
		byID[pnrs[i].ID] = &pnrs[i]
	}

	rows, err := r.db.QueryContext(ctx, selectPassengersSQL+where+"ORDER BY x.id", args...)
	if err != nil {
		return err
	}
	for rows.Next() {
		var x domain.Passenger
		if err := rows.Scan(
			&x.ID, &x.PNRID, &x.Surname, &x.FirstName, &x.FFNumber, &x.FFTier,
			&x.BoardPoint, &x.OffPoint, &x.SeatRowNumber, &x.SeatColumn, &x.Meal,
		); err != nil {
			rows.Close()
			return err
		}
		if p, ok := byID[x.PNRID]; ok {
			x.ControlNumber = p.ControlNumber
			p.Passengers = append(p.Passengers, x)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.db.QueryContext(ctx, selectContactsSQL+where+"ORDER BY x.id", args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var x domain.Contact
		if err := rows.Scan(&x.ID, &x.PNRID, &x.ContactType, &x.ContactDetail); err != nil {
			return err
		}
		if p, ok := byID[x.PNRID]; ok {
			x.ControlNumber = p.ControlNumber
			p.Contacts = append(p.Contacts, x)
		}
	}
	return rows.Err()
}
