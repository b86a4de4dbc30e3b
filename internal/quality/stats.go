package quality

import (
	"strings"

	"pnr_quality/internal/domain"
)

// Stats is the dashboard headline over a whole snapshot.
type Stats struct {
	TotalPNRs            int     `json:"total_pnrs"`
	AvgScore             float64 `json:"avg_score"`
	ReachablePNRs        int     `json:"reachable_pnrs"`
	WithFrequentFlyer    int     `json:"with_ff"`
	WithMeal             int     `json:"with_meal"`
	WithSeat             int     `json:"with_seat"`
	MissingContact       int     `json:"missing_contact"`
	WronglyPlacedContact int     `json:"wrongly_placed_contact"`
	WrongFormatContact   int     `json:"wrong_format_contact"`

	EmailContacts    int `json:"email_contacts"`
	EmailWrongFormat int `json:"email_wrong_format"`
	PhoneContacts    int `json:"phone_contacts"`
	PhoneWrongFormat int `json:"phone_wrong_format"`

	ReachablePct        float64 `json:"reachable_pct"`
	FrequentFlyerPct    float64 `json:"ff_pct"`
	MealPct             float64 `json:"meal_pct"`
	SeatPct             float64 `json:"seat_pct"`
	MissingContactPct   float64 `json:"missing_contact_pct"`
	WronglyPlacedPct    float64 `json:"wrongly_placed_pct"`
	WrongFormatPct      float64 `json:"wrong_format_pct"`
	EmailWrongFormatPct float64 `json:"email_wrong_format_pct"`
	PhoneWrongFormatPct float64 `json:"phone_wrong_format_pct"`

	// ScoreBands counts PNRs per score value (0, 20, 40, ... with default weights).
	ScoreBands map[int]int `json:"score_bands"`
}

func ComputeStats(items []ScoredPNR) Stats {
	st := Stats{TotalPNRs: len(items), ScoreBands: map[int]int{}}
	sum := 0
	for _, it := range items {
		sum += it.Score
		st.ScoreBands[it.Score]++
		if it.Earned(ComponentContact) {
			st.ReachablePNRs++
		}
		if it.Earned(ComponentFrequentFlyer) {
			st.WithFrequentFlyer++
		}
		if it.Earned(ComponentMeal) {
			st.WithMeal++
		}
		if it.Earned(ComponentSeat) {
			st.WithSeat++
		}
		if it.MissingContact {
			st.MissingContact++
		}
		if it.WronglyPlacedContact {
			st.WronglyPlacedContact++
		}
		if it.WrongFormatContact {
			st.WrongFormatContact++
		}
		for _, c := range it.Classifications {
			// generic fields are neither email nor phone fields
			if domain.IsGenericType(c.ContactType) {
				continue
			}
			t := strings.TrimSpace(c.ContactType)
			switch {
			case domain.IsEmailEligible(t):
				st.EmailContacts++
				if c.HasWrongFormat {
					st.EmailWrongFormat++
				}
			case domain.IsPhoneEligible(t):
				st.PhoneContacts++
				if c.HasWrongFormat {
					st.PhoneWrongFormat++
				}
			}
		}
	}
	st.AvgScore = Mean(sum, st.TotalPNRs)
	st.ReachablePct = Percent(st.ReachablePNRs, st.TotalPNRs)
	st.FrequentFlyerPct = Percent(st.WithFrequentFlyer, st.TotalPNRs)
	st.MealPct = Percent(st.WithMeal, st.TotalPNRs)
	st.SeatPct = Percent(st.WithSeat, st.TotalPNRs)
	st.MissingContactPct = Percent(st.MissingContact, st.TotalPNRs)
	st.WronglyPlacedPct = Percent(st.WronglyPlacedContact, st.TotalPNRs)
	st.WrongFormatPct = Percent(st.WrongFormatContact, st.TotalPNRs)
	st.EmailWrongFormatPct = Percent(st.EmailWrongFormat, st.EmailContacts)
	st.PhoneWrongFormatPct = Percent(st.PhoneWrongFormat, st.PhoneContacts)
	return st
}
