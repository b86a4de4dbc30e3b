package importer

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"pnr_quality/internal/domain"
)

// Stats counts what happened to the rows of one table.
type Stats struct {
	Rows                int `json:"rows"`
	Processed           int `json:"processed"`
	Skipped             int `json:"skipped"`   // empty booking identifier
	BadDates            int `json:"bad_dates"` // non-empty but unparseable creation date
	DuplicatePassengers int `json:"duplicate_passengers"`
	DuplicateContacts   int `json:"duplicate_contacts"`
}

type Result struct {
	Batch domain.Batch
	Stats Stats
}

type passengerKey struct{ controlNumber, surname, firstName, ffNumber string }
type contactKey struct{ controlNumber, contactType, contactDetail string }

// group is every row sharing one booking identifier, in table order.
type group struct {
	controlNumber string
	rows          [][]string
}

type groupResult struct {
	pnr                 domain.PNR
	passengers          []domain.Passenger
	contacts            []domain.Contact
	badDate             bool
	duplicatePassengers int
	duplicateContacts   int
}

// Deduplicator collapses a denormalized booking extract (one row per
// passenger/contact pairing) back into PNR, Passenger and Contact entities.
type Deduplicator struct {
	workers int
}

func NewDeduplicator(workers int) *Deduplicator {
	if workers <= 0 {
		workers = 1
	}
	return &Deduplicator{workers: workers}
}

// Run never fails on a single bad row. It fails the whole table only when
// there is nothing to import or the booking identifier column is missing.
func (d *Deduplicator) Run(ctx context.Context, t domain.Table) (Result, error) {
	if len(t.Header) == 0 || len(t.Rows) == 0 {
		return Result{}, domain.ErrEmptyTable
	}
	cols, err := resolveColumns(t.Header)
	if err != nil {
		return Result{}, err
	}

	var res Result
	res.Stats.Rows = len(t.Rows)

	// 1) normalize identifiers, drop empty ones, group preserving first-seen order
	index := make(map[string]int)
	var groups []group
	for _, row := range t.Rows {
		cn := cols.get(row, colControlNumber)
		if cn == "" {
			res.Stats.Skipped++
			continue
		}
		i, ok := index[cn]
		if !ok {
			i = len(groups)
			index[cn] = i
			groups = append(groups, group{controlNumber: cn})
		}
		groups[i].rows = append(groups[i].rows, row)
	}
	res.Stats.Processed = res.Stats.Rows - res.Stats.Skipped
	if len(groups) == 0 {
		return res, nil
	}

	// 2+3) groups share no state, so they are built independently
	out := make([]groupResult, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i := range groups {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = buildGroup(cols, groups[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	for _, gr := range out {
		res.Batch.PNRs = append(res.Batch.PNRs, gr.pnr)
		res.Batch.Passengers = append(res.Batch.Passengers, gr.passengers...)
		res.Batch.Contacts = append(res.Batch.Contacts, gr.contacts...)
		res.Stats.DuplicatePassengers += gr.duplicatePassengers
		res.Stats.DuplicateContacts += gr.duplicateContacts
		if gr.badDate {
			res.Stats.BadDates++
		}
	}
	return res, nil
}

func buildGroup(cols columns, grp group) groupResult {
	cn := grp.controlNumber
	first := grp.rows[0]

	rawDate := cols.get(first, colCreationDate)
	created := ParseCreationDate(rawDate)

	gr := groupResult{
		pnr: domain.PNR{
			ControlNumber:          cn,
			OfficeID:               cols.get(first, colOfficeID),
			Agent:                  cols.get(first, colAgent),
			CreationDate:           created,
			DeliverySystemCompany:  cols.get(first, colDeliverySystemCompany),
			DeliverySystemLocation: cols.get(first, colDeliverySystemLocation),
		},
		badDate: rawDate != "" && created == nil,
	}

	seenPassengers := make(map[passengerKey]struct{})
	seenContacts := make(map[contactKey]struct{})
	for _, row := range grp.rows {
		if cols.hasAny(row, passengerColumns...) {
			p := domain.Passenger{
				ControlNumber: cn,
				Surname:       cols.get(row, colSurname),
				FirstName:     cols.get(row, colFirstName),
				FFNumber:      cols.get(row, colFFNumber),
				FFTier:        cols.get(row, colFFTier),
				BoardPoint:    cols.get(row, colBoardPoint),
				OffPoint:      cols.get(row, colOffPoint),
				SeatRowNumber: cols.get(row, colSeatRow),
				SeatColumn:    cols.get(row, colSeatColumn),
				Meal:          cols.get(row, colMeal),
			}
			k := passengerKey{cn, p.Surname, p.FirstName, p.FFNumber}
			if _, dup := seenPassengers[k]; dup {
				gr.duplicatePassengers++
			} else {
				seenPassengers[k] = struct{}{}
				gr.passengers = append(gr.passengers, p)
			}
		}

		if cols.hasAny(row, colContactType, colContactDetail) {
			c := domain.Contact{
				ControlNumber: cn,
				ContactType:   strings.ToUpper(cols.get(row, colContactType)),
				ContactDetail: cols.get(row, colContactDetail),
			}
			k := contactKey{cn, c.ContactType, c.ContactDetail}
			if _, dup := seenContacts[k]; dup {
				gr.duplicateContacts++
			} else {
				seenContacts[k] = struct{}{}
				gr.contacts = append(gr.contacts, c)
			}
		}
	}
	return gr
}
