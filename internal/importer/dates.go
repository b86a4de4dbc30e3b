package importer

import (
	"strings"
	"time"
)

// dateLayouts are tried in order after the compact numeric forms.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"02Jan06",
	"02Jan2006",
}

// ParseCreationDate accepts ddmmyy (010124), dmmyy (10124) and a few
// spelled-out layouts. It returns nil instead of an error on anything else.
func ParseCreationDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if isDigits(s) {
		switch len(s) {
		case 5:
			s = "0" + s
			fallthrough
		case 6:
			return parseIn("020106", s)
		default:
			return nil
		}
	}
	for _, layout := range dateLayouts {
		if t := parseIn(layout, s); t != nil {
			return t
		}
	}
	return nil
}

func parseIn(layout, s string) *time.Time {
	t, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
