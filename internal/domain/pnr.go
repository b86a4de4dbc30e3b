package domain

import "time"

// PNR is one booking, unique by ControlNumber across the dataset.
type PNR struct {
	ID                     int64      `json:"-"`
	ControlNumber          string     `json:"control_number"`
	OfficeID               string     `json:"office_id"`
	Agent                  string     `json:"agent"`
	CreationDate           *time.Time `json:"creation_date"` // nil when the source date did not parse
	DeliverySystemCompany  string     `json:"delivery_system_company"`
	DeliverySystemLocation string     `json:"delivery_system_location"`

	Passengers []Passenger `json:"passengers"`
	Contacts   []Contact   `json:"contacts"`
}

type Passenger struct {
	ID            int64  `json:"-"`
	PNRID         int64  `json:"-"`
	ControlNumber string `json:"-"` // owning booking; resolved to PNRID on insert
	Surname       string `json:"surname"`
	FirstName     string `json:"first_name"`
	FFNumber      string `json:"ff_number"`
	FFTier        string `json:"ff_tier"`
	BoardPoint    string `json:"board_point"`
	OffPoint      string `json:"off_point"`
	SeatRowNumber string `json:"seat_row_number"`
	SeatColumn    string `json:"seat_column"`
	Meal          string `json:"meal"`
}

// HasSeat reports a seat assignment; both row and column are required.
func (p Passenger) HasSeat() bool {
	return p.SeatRowNumber != "" && p.SeatColumn != ""
}

type Contact struct {
	ID            int64  `json:"-"`
	PNRID         int64  `json:"-"`
	ControlNumber string `json:"-"`
	ContactType   string `json:"contact_type"`
	ContactDetail string `json:"contact_detail"`
}

// ImportRun is the persisted log line of one bulk import.
type ImportRun struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Status      string    `json:"status"` // ok|failed
	Rows        int       `json:"rows"`
	Processed   int       `json:"processed"`
	Skipped     int       `json:"skipped"`
	BadDates    int       `json:"bad_dates"`
	PNRs        int       `json:"pnrs"`
	Passengers  int       `json:"passengers"`
	Contacts    int       `json:"contacts"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}
