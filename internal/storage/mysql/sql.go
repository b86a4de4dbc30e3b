package mysql

// Children first; the FKs cascade but explicit deletes keep row counts visible.
const (
	deleteContactsSQL   = `DELETE FROM contacts`
	deletePassengersSQL = `DELETE FROM passengers`
	deletePNRsSQL       = `DELETE FROM pnrs`
)

// Bulk inserts are built as prefix + N value tuples. INSERT IGNORE lets the
// unique keys drop any duplicate the deduplicator missed.
const insertPNRsPrefix = "INSERT IGNORE INTO pnrs\n" +
	"  (control_number, office_id, agent, creation_date, delivery_system_company, delivery_system_location)\nVALUES "

const insertPassengersPrefix = "INSERT IGNORE INTO passengers\n" +
	"  (pnr_id, surname, first_name, ff_number, ff_tier, board_point, off_point, seat_row_number, seat_column, meal)\nVALUES "

const insertContactsPrefix = "INSERT IGNORE INTO contacts\n" +
	"  (pnr_id, contact_type, contact_detail)\nVALUES "

const selectPNRIDsSQL = `SELECT id, control_number FROM pnrs`

const insertImportRunSQL = `
INSERT INTO import_runs
  (id, source, status, source_rows, processed, skipped, bad_dates,
   pnr_count, passenger_count, contact_count, error, started_at, completed_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const latestImportSQL = `
SELECT id, source, status, source_rows, processed, skipped, bad_dates,
       pnr_count, passenger_count, contact_count, error, started_at, completed_at
FROM import_runs
ORDER BY completed_at DESC
LIMIT 1
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

// The WHERE clause built from a PNRFilter is appended to each of these and
// always refers to the booking as p.
const selectPNRsSQL = `
SELECT p.id, p.control_number, p.office_id, p.agent, p.creation_date,
       p.delivery_system_company, p.delivery_system_location
FROM pnrs p
`

const selectPassengersSQL = `
SELECT x.id, x.pnr_id, x.surname, x.first_name, x.ff_number, x.ff_tier,
       x.board_point, x.off_point, x.seat_row_number, x.seat_column, x.meal
FROM passengers x
JOIN pnrs p ON p.id = x.pnr_id
`

const selectContactsSQL = `
SELECT x.id, x.pnr_id, x.contact_type, x.contact_detail
FROM contacts x
JOIN pnrs p ON p.id = x.pnr_id
`
