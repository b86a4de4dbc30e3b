package importer

import (
	"fmt"
	"strings"

	"pnr_quality/internal/domain"
)

// Canonical column names.
const (
	colControlNumber          = "control_number"
	colOfficeID               = "office_id"
	colAgent                  = "agent"
	colCreationDate           = "creation_date"
	colDeliverySystemCompany  = "delivery_system_company"
	colDeliverySystemLocation = "delivery_system_location"
	colSurname                = "surname"
	colFirstName              = "first_name"
	colFFNumber               = "ff_number"
	colFFTier                 = "ff_tier"
	colBoardPoint             = "board_point"
	colOffPoint               = "off_point"
	colSeatRow                = "seat_row_number"
	colSeatColumn             = "seat_column"
	colMeal                   = "meal"
	colContactType            = "contact_type"
	colContactDetail          = "contact_detail"
)

/********** alias registry (single source of truth) **********/

// Header cells are matched after lower-casing and dropping spaces,
// underscores, hyphens and dots.
var columnAliases = map[string][]string{
	colControlNumber:          {"controlnumber", "pnr", "recordlocator", "bookingreference", "pnrcontrolnumber"},
	colOfficeID:               {"officeid", "office", "pseudocitycode", "pcc"},
	colAgent:                  {"agent", "agentid", "agentsign", "issuingagent"},
	colCreationDate:           {"creationdate", "createdate", "pnrcreationdate", "bookingdate"},
	colDeliverySystemCompany:  {"deliverysystemcompany", "deliverysystem", "gds", "channel"},
	colDeliverySystemLocation: {"deliverysystemlocation", "deliverylocation"},
	colSurname:                {"surname", "lastname", "familyname"},
	colFirstName:              {"firstname", "givenname"},
	colFFNumber:               {"ffnumber", "frequentflyernumber", "frequentflyer", "ffn"},
	colFFTier:                 {"fftier", "frequentflyertier", "tierlevel", "tier"},
	colBoardPoint:             {"boardpoint", "boardingpoint", "origin"},
	colOffPoint:               {"offpoint", "destination"},
	colSeatRow:                {"seatrownumber", "seatrow", "row"},
	colSeatColumn:             {"seatcolumn", "seatletter", "column"},
	colMeal:                   {"meal", "mealcode", "specialmeal", "mealselection"},
	colContactType:            {"contacttype", "type"},
	colContactDetail:          {"contactdetail", "contact", "detail"},
}

var passengerColumns = []string{
	colSurname, colFirstName, colFFNumber, colFFTier, colBoardPoint,
	colOffPoint, colSeatRow, colSeatColumn, colMeal,
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer(" ", "", "_", "", "-", "", ".", "").Replace(h)
}

// columns maps canonical names to cell positions; absent columns are -1.
type columns map[string]int

func resolveColumns(header []string) (columns, error) {
	lookup := make(map[string]string, 64)
	for canon, aliases := range columnAliases {
		for _, a := range aliases {
			lookup[a] = canon
		}
	}
	cols := make(columns, len(columnAliases))
	for canon := range columnAliases {
		cols[canon] = -1
	}
	for i, h := range header {
		canon, ok := lookup[normalizeHeader(h)]
		if !ok || cols[canon] >= 0 {
			continue // unknown or repeated header: first one wins
		}
		cols[canon] = i
	}
	if cols[colControlNumber] < 0 {
		return nil, fmt.Errorf("%w: control number", domain.ErrMissingColumn)
	}
	return cols, nil
}

// get returns the trimmed cell, "" when the column is absent or the row short.
func (c columns) get(row []string, key string) string {
	i, ok := c[key]
	if !ok || i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (c columns) hasAny(row []string, keys ...string) bool {
	for _, k := range keys {
		if c.get(row, k) != "" {
			return true
		}
	}
	return false
}
