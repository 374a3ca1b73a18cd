// Package scoring ranks candidate commuters for a subject commuter.
//
// A score is a weighted sum of four metrics, each normalized to its cutoff:
// home distance, company distance, missed working days, and start/end time
// differences. Lower is better and 0 is a perfect match. A candidate that
// breaches any single cutoff is excluded outright.
package scoring

import (
	"fmt"
	"sort"

	"github.com/example/carpool-match/internal/days"
	"github.com/example/carpool-match/internal/geo"
	"github.com/example/carpool-match/internal/models"
)

// Cutoffs. A metric strictly above its cutoff excludes the candidate.
const (
	StartDistanceCutoff = 4.0  // miles
	EndDistanceCutoff   = 4.0  // miles
	StartTimeCutoff     = 60.0 // minutes
	EndTimeCutoff       = 60.0 // minutes
	DaysCutoff          = 3.0
)

// Weights sum to 1.
const (
	StartDistanceWeight = 0.2
	EndDistanceWeight   = 0.3
	StartTimeWeight     = 0.15
	EndTimeWeight       = 0.15
	DaysWeight          = 0.2
)

// DriverPenalty pushes driver-driver pairs behind comparable rider-driver
// pairs without excluding them.
const DriverPenalty = 0.1

// Reason explains why a candidate was excluded.
type Reason string

const (
	ReasonRole          Reason = "role"
	ReasonNoSeats       Reason = "no_seats"
	ReasonStartTime     Reason = "start_time"
	ReasonEndTime       Reason = "end_time"
	ReasonStartDistance Reason = "start_distance"
	ReasonEndDistance   Reason = "end_distance"
	ReasonDays          Reason = "days"
)

// Input is everything the engine reads about a commuter.
type Input struct {
	ID        string
	Role      models.Role
	SeatAvail int
	Start     models.Coord
	Company   models.Coord
	Days      days.Week
	StartTime *models.TimeOfDay
	EndTime   *models.TimeOfDay
}

// InputFromCommuter decodes the persisted days mask. A malformed mask is a
// data fault and is returned as an error wrapping days.ErrMalformedMask.
func InputFromCommuter(c models.Commuter) (Input, error) {
	w, err := days.Decode(c.DaysWorking)
	if err != nil {
		return Input{}, fmt.Errorf("commuter %s: %w", c.ID, err)
	}
	return Input{
		ID:        c.ID,
		Role:      c.Role,
		SeatAvail: c.SeatAvail,
		Start:     c.StartCoord,
		Company:   c.CompanyCoord,
		Days:      w,
		StartTime: c.StartTime,
		EndTime:   c.EndTime,
	}, nil
}

func (in Input) hasTimes() bool { return in.StartTime != nil && in.EndTime != nil }

type Recommendation struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Metrics are the raw, un-normalized measurements for one pair.
// StartTime and EndTime are only meaningful when Timed is set.
type Metrics struct {
	StartDistance float64
	EndDistance   float64
	DayMismatch   int
	StartTime     int
	EndTime       int
	Timed         bool
}

// Scorer scores candidates against a fixed subject. It holds no mutable
// state and is safe for concurrent use.
type Scorer struct {
	subject Input
}

func NewScorer(subject Input) *Scorer { return &Scorer{subject: subject} }

// Measure computes the raw metrics for a candidate without applying
// eligibility or cutoffs.
func (s *Scorer) Measure(c Input) Metrics {
	m := Metrics{
		StartDistance: geo.ApproxMiles(s.subject.Start, c.Start),
		EndDistance:   geo.ApproxMiles(s.subject.Company, c.Company),
		DayMismatch:   s.subject.Days.Missing(c.Days),
	}
	if s.subject.hasTimes() && c.hasTimes() {
		m.Timed = true
		m.StartTime = absInt(s.subject.StartTime.MinuteOfDay() - c.StartTime.MinuteOfDay())
		m.EndTime = absInt(s.subject.EndTime.MinuteOfDay() - c.EndTime.MinuteOfDay())
	}
	return m
}

// Evaluate returns the candidate's score, or the first reason it was
// excluded. An empty Reason means the candidate is included.
func (s *Scorer) Evaluate(c Input) (Recommendation, Reason) {
	if s.subject.Role == models.RoleRider {
		if c.Role == models.RoleRider {
			return Recommendation{}, ReasonRole
		}
		if c.SeatAvail == 0 {
			return Recommendation{}, ReasonNoSeats
		}
	}

	m := s.Measure(c)
	if m.Timed {
		if float64(m.StartTime) > StartTimeCutoff {
			return Recommendation{}, ReasonStartTime
		}
		if float64(m.EndTime) > EndTimeCutoff {
			return Recommendation{}, ReasonEndTime
		}
	}
	switch {
	case m.StartDistance > StartDistanceCutoff:
		return Recommendation{}, ReasonStartDistance
	case m.EndDistance > EndDistanceCutoff:
		return Recommendation{}, ReasonEndDistance
	case float64(m.DayMismatch) > DaysCutoff:
		return Recommendation{}, ReasonDays
	}

	penalty := 0.0
	if s.subject.Role == models.RoleDriver && c.Role == models.RoleDriver {
		penalty = DriverPenalty
	}
	score := (m.StartDistance/StartDistanceCutoff)*StartDistanceWeight +
		(m.EndDistance/EndDistanceCutoff)*EndDistanceWeight +
		(float64(m.DayMismatch)/DaysCutoff)*DaysWeight +
		penalty

	if m.Timed {
		score += (float64(m.StartTime)/StartTimeCutoff)*StartTimeWeight +
			(float64(m.EndTime)/EndTimeCutoff)*EndTimeWeight
	} else {
		// Time-less pairs are rescaled by the missing time weight, not
		// zero-filled.
		score *= 1 / (StartTimeWeight + EndTimeWeight)
	}
	return Recommendation{ID: c.ID, Score: score}, ""
}

// Score reports the candidate's score and whether it passed.
func (s *Scorer) Score(c Input) (Recommendation, bool) {
	rec, reason := s.Evaluate(c)
	return rec, reason == ""
}

// Ranking is the outcome of one scoring pass.
type Ranking struct {
	Recommendations []Recommendation
	Excluded        map[Reason]int
}

// Rank scores every candidate, drops excluded ones and sorts the rest
// ascending by score. Equal scores keep their input order.
func Rank(subject Input, candidates []Input) Ranking {
	s := NewScorer(subject)
	r := Ranking{
		Recommendations: make([]Recommendation, 0, len(candidates)),
		Excluded:        make(map[Reason]int),
	}
	for _, c := range candidates {
		rec, reason := s.Evaluate(c)
		if reason != "" {
			r.Excluded[reason]++
			continue
		}
		r.Recommendations = append(r.Recommendations, rec)
	}
	sort.SliceStable(r.Recommendations, func(i, j int) bool {
		return r.Recommendations[i].Score < r.Recommendations[j].Score
	})
	return r
}

// ScoreCandidates is Rank without the exclusion tally.
func ScoreCandidates(subject Input, candidates []Input) []Recommendation {
	return Rank(subject, candidates).Recommendations
}

// RankCommuters converts persisted records and ranks them. It fails on the
// first record whose days mask cannot be decoded.
func RankCommuters(subject models.Commuter, candidates []models.Commuter) (Ranking, error) {
	in, err := InputFromCommuter(subject)
	if err != nil {
		return Ranking{}, fmt.Errorf("subject: %w", err)
	}
	cands := make([]Input, 0, len(candidates))
	for _, c := range candidates {
		ci, err := InputFromCommuter(c)
		if err != nil {
			return Ranking{}, fmt.Errorf("candidate: %w", err)
		}
		cands = append(cands, ci)
	}
	return Rank(in, cands), nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
