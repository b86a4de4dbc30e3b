package quality

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"pnr_quality/internal/domain"
)

type Component string

const (
	ComponentContact       Component = "contact"
	ComponentFrequentFlyer Component = "ff"
	ComponentMeal          Component = "meal"
	ComponentSeat          Component = "seat"
)

const (
	MinScore = 0
	MaxScore = 100
)

// facts are computed once per PNR and shared by every rule.
type facts struct {
	pnr      domain.PNR
	contacts []Classification
}

type rule struct {
	component Component
	earned    func(f facts) bool
}

// rules lists every component with its eligibility predicate, in display order.
// Weights are kept apart so they can change without touching the predicates.
var rules = []rule{
	{ComponentContact, func(f facts) bool {
		for _, c := range f.contacts {
			if c.Reachable() {
				return true
			}
		}
		return false
	}},
	{ComponentFrequentFlyer, anyPassenger(func(p domain.Passenger) bool { return p.FFNumber != "" })},
	{ComponentMeal, anyPassenger(func(p domain.Passenger) bool { return p.Meal != "" })},
	{ComponentSeat, anyPassenger(domain.Passenger.HasSeat)},
}

func anyPassenger(pred func(domain.Passenger) bool) func(facts) bool {
	return func(f facts) bool {
		for _, p := range f.pnr.Passengers {
			if pred(p) {
				return true
			}
		}
		return false
	}
}

// Weights maps each component to the points it is worth when earned.
type Weights map[Component]int

// DefaultWeights sum to exactly MaxScore.
func DefaultWeights() Weights {
	return Weights{
		ComponentContact:       40,
		ComponentFrequentFlyer: 20,
		ComponentMeal:          20,
		ComponentSeat:          20,
	}
}

func (w Weights) Total() int {
	t := 0
	for _, v := range w {
		t += v
	}
	return t
}

// ParseWeights reads "contact=40,ff=20,meal=20,seat=20". Components that are
// not mentioned keep their default weight.
func ParseWeights(spec string) (Weights, error) {
	w := DefaultWeights()
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return w, nil
	}
	for _, part := range strings.Split(spec, ",") {
		name, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("weight %q: expected component=points", part)
		}
		c := Component(strings.ToLower(strings.TrimSpace(name)))
		if _, known := w[c]; !known {
			return nil, fmt.Errorf("weight %q: unknown component", name)
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("weight %q: points must be a non-negative integer", part)
		}
		w[c] = n
	}
	return w, nil
}

type ComponentResult struct {
	Component Component `json:"component"`
	Weight    int       `json:"weight"`
	Earned    bool      `json:"earned"`
}

// Result is the score of one PNR plus the contact rollups used by aggregation.
type Result struct {
	Score                int               `json:"score"`
	Components           []ComponentResult `json:"components"`
	MissingContact       bool              `json:"missing_contact"`
	WronglyPlacedContact bool              `json:"wrongly_placed_contact"`
	WrongFormatContact   bool              `json:"wrong_format_contact"`
	Classifications      []Classification  `json:"classifications"`
}

func (r Result) Earned(c Component) bool {
	for _, cr := range r.Components {
		if cr.Component == c {
			return cr.Earned
		}
	}
	return false
}

type Scorer struct{ weights Weights }

func NewScorer(w Weights) *Scorer {
	if w == nil {
		w = DefaultWeights()
	}
	return &Scorer{weights: w}
}

func (s *Scorer) Weights() Weights { return s.weights }

// Score is deterministic and side-effect free.
func (s *Scorer) Score(p domain.PNR) Result {
	f := facts{pnr: p, contacts: make([]Classification, 0, len(p.Contacts))}
	var res Result
	for _, c := range p.Contacts {
		cl := ClassifyContact(c)
		f.contacts = append(f.contacts, cl)
		res.WronglyPlacedContact = res.WronglyPlacedContact || cl.IsWronglyPlaced
		res.WrongFormatContact = res.WrongFormatContact || cl.HasWrongFormat
	}
	res.MissingContact = len(p.Contacts) == 0
	res.Classifications = f.contacts

	total := 0
	res.Components = make([]ComponentResult, 0, len(rules))
	for _, r := range rules {
		weight := s.weights[r.component]
		earned := r.earned(f)
		if earned {
			total += weight
		}
		res.Components = append(res.Components, ComponentResult{Component: r.component, Weight: weight, Earned: earned})
	}
	res.Score = clamp(total, MinScore, MaxScore)
	return res
}

// ScoredPNR is a PNR alongside its score. Relations are kept so the
// presentation layer can explain the flags.
type ScoredPNR struct {
	domain.PNR
	Result
}

// ScoreAll scores whole PNRs concurrently; output order matches input.
func (s *Scorer) ScoreAll(ctx context.Context, pnrs []domain.PNR, workers int) ([]ScoredPNR, error) {
	out := make([]ScoredPNR, len(pnrs))
	if workers <= 1 {
		for i, p := range pnrs {
			out[i] = ScoredPNR{PNR: p, Result: s.Score(p)}
		}
		return out, nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range pnrs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = ScoredPNR{PNR: pnrs[i], Result: s.Score(pnrs[i])}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
