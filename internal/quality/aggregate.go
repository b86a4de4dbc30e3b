package quality

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

type GroupKey string

const (
	GroupOffice         GroupKey = "office"
	GroupDeliverySystem GroupKey = "delivery_system"
	GroupDay            GroupKey = "day"
	GroupWeek           GroupKey = "week"
	GroupMonth          GroupKey = "month"
)

// UnknownGroup collects PNRs whose grouping field is empty or absent.
const UnknownGroup = "unknown"

func ParseGroupKey(s string) (GroupKey, error) {
	switch k := GroupKey(strings.ToLower(strings.TrimSpace(s))); k {
	case GroupOffice, GroupDeliverySystem, GroupDay, GroupWeek, GroupMonth:
		return k, nil
	case "":
		return GroupOffice, nil
	default:
		return "", fmt.Errorf("unknown group key %q", s)
	}
}

// GroupValue extracts the bucket a PNR falls into.
func GroupValue(p ScoredPNR, key GroupKey) string {
	var v string
	switch key {
	case GroupOffice:
		v = p.OfficeID
	case GroupDeliverySystem:
		v = p.DeliverySystemCompany
	case GroupDay, GroupWeek, GroupMonth:
		if p.CreationDate == nil {
			break
		}
		d := *p.CreationDate
		switch key {
		case GroupDay:
			v = d.Format("2006-01-02")
		case GroupWeek:
			y, w := d.ISOWeek()
			v = fmt.Sprintf("%04d-W%02d", y, w)
		default:
			v = d.Format("2006-01")
		}
	}
	if strings.TrimSpace(v) == "" {
		return UnknownGroup
	}
	return v
}

type GroupSummary struct {
	Group                string  `json:"group"`
	Count                int     `json:"count"`
	AvgScore             float64 `json:"avg_score"`
	Reachable            int     `json:"reachable"`
	MissingContact       int     `json:"missing_contact"`
	WronglyPlacedContact int     `json:"wrongly_placed_contact"`
	WrongFormatContact   int     `json:"wrong_format_contact"`
	ReachablePct         float64 `json:"reachable_pct"`
	MissingContactPct    float64 `json:"missing_contact_pct"`
	WronglyPlacedPct     float64 `json:"wrongly_placed_pct"`
	WrongFormatPct       float64 `json:"wrong_format_pct"`
}

// Summarize reduces one group. An empty group yields zero values.
func Summarize(group string, items []ScoredPNR) GroupSummary {
	gs := GroupSummary{Group: group, Count: len(items)}
	sum := 0
	for _, it := range items {
		sum += it.Score
		if it.Earned(ComponentContact) {
			gs.Reachable++
		}
		if it.MissingContact {
			gs.MissingContact++
		}
		if it.WronglyPlacedContact {
			gs.WronglyPlacedContact++
		}
		if it.WrongFormatContact {
			gs.WrongFormatContact++
		}
	}
	gs.AvgScore = Mean(sum, gs.Count)
	gs.ReachablePct = Percent(gs.Reachable, gs.Count)
	gs.MissingContactPct = Percent(gs.MissingContact, gs.Count)
	gs.WronglyPlacedPct = Percent(gs.WronglyPlacedContact, gs.Count)
	gs.WrongFormatPct = Percent(gs.WrongFormatContact, gs.Count)
	return gs
}

// Aggregate groups items by key, sorted by group value. Every value in
// include gets a row even if no PNR falls into it.
func Aggregate(items []ScoredPNR, key GroupKey, include ...string) []GroupSummary {
	buckets := make(map[string][]ScoredPNR)
	for _, v := range include {
		if v = strings.TrimSpace(v); v != "" {
			if _, ok := buckets[v]; !ok {
				buckets[v] = nil
			}
		}
	}
	for _, it := range items {
		g := GroupValue(it, key)
		buckets[g] = append(buckets[g], it)
	}

	names := make([]string, 0, len(buckets))
	for g := range buckets {
		names = append(names, g)
	}
	sort.Strings(names)

	out := make([]GroupSummary, 0, len(names))
	for _, g := range names {
		out = append(out, Summarize(g, buckets[g]))
	}
	return out
}

// Percent is part/total*100 clamped to [0,100], 0 when total is 0.
func Percent(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return round2(math.Min(100, math.Max(0, float64(part)/float64(total)*100)))
}

// Mean is sum/n, 0 when n is 0.
func Mean(sum, n int) float64 {
	if n <= 0 {
		return 0
	}
	return round2(float64(sum) / float64(n))
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
