package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type Role string

const (
	RoleRider  Role = "RIDER"
	RoleDriver Role = "DRIVER"
)

func (r Role) Valid() bool { return r == RoleRider || r == RoleDriver }

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

func (s Status) Valid() bool { return s == StatusActive || s == StatusInactive }

// PlaceholderDate is the calendar date persisted times are pinned to, so
// that only the UTC hour and minute carry meaning.
var PlaceholderDate = time.Date(2022, time.November, 1, 0, 0, 0, 0, time.UTC)

// TimeOfDay is a wall-clock time with minute resolution.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "H:MM" or "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// TimeOfDayFromTime reads the UTC wall clock of t.
func TimeOfDayFromTime(t time.Time) TimeOfDay {
	u := t.UTC()
	return TimeOfDay{Hour: u.Hour(), Minute: u.Minute()}
}

func (t TimeOfDay) MinuteOfDay() int { return t.Hour*60 + t.Minute }

// Time pins t to PlaceholderDate in UTC.
func (t TimeOfDay) Time() time.Time {
	return PlaceholderDate.Add(time.Duration(t.MinuteOfDay()) * time.Minute)
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Commuter is the full persisted profile of a rider or driver.
type Commuter struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Image         string `json:"image,omitempty"`
	Bio           string `json:"bio"`
	PreferredName string `json:"preferred_name"`
	Pronouns      string `json:"pronouns"`

	Role      Role   `json:"role"`
	Status    Status `json:"status"`
	SeatAvail int    `json:"seat_avail"`

	CompanyName    string `json:"company_name"`
	CompanyAddress string `json:"company_address"`
	CompanyCoord   Coord  `json:"company_coord"`
	StartLocation  string `json:"start_location"`
	StartCoord     Coord  `json:"start_coord"`

	CompanyPOIAddress string `json:"company_poi_address"`
	CompanyPOICoord   Coord  `json:"company_poi_coord"`
	StartPOILocation  string `json:"start_poi_location"`
	StartPOICoord     Coord  `json:"start_poi_coord"`

	IsOnboarded bool       `json:"is_onboarded"`
	DaysWorking string     `json:"days_working"` // S,M,T,W,R,F,S
	StartTime   *TimeOfDay `json:"start_time"`
	EndTime     *TimeOfDay `json:"end_time"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PublicCommuter is what other commuters may see: no exact coordinates or
// street addresses.
type PublicCommuter struct {
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Image             string     `json:"image,omitempty"`
	Bio               string     `json:"bio"`
	PreferredName     string     `json:"preferred_name"`
	Pronouns          string     `json:"pronouns"`
	Role              Role       `json:"role"`
	Status            Status     `json:"status"`
	SeatAvail         int        `json:"seat_avail"`
	CompanyName       string     `json:"company_name"`
	StartLocation     string     `json:"start_location"`
	StartPOILocation  string     `json:"start_poi_location"`
	StartPOICoord     Coord      `json:"start_poi_coord"`
	CompanyPOIAddress string     `json:"company_poi_address"`
	CompanyPOICoord   Coord      `json:"company_poi_coord"`
	DaysWorking       string     `json:"days_working"`
	StartTime         *TimeOfDay `json:"start_time"`
	EndTime           *TimeOfDay `json:"end_time"`
}

func (c Commuter) Public() PublicCommuter {
	return PublicCommuter{
		Name:              c.Name,
		Email:             c.Email,
		Image:             c.Image,
		Bio:               c.Bio,
		PreferredName:     c.PreferredName,
		Pronouns:          c.Pronouns,
		Role:              c.Role,
		Status:            c.Status,
		SeatAvail:         c.SeatAvail,
		CompanyName:       c.CompanyName,
		StartLocation:     c.StartLocation,
		StartPOILocation:  c.StartPOILocation,
		StartPOICoord:     c.StartPOICoord,
		CompanyPOIAddress: c.CompanyPOIAddress,
		CompanyPOICoord:   c.CompanyPOICoord,
		DaysWorking:       c.DaysWorking,
		StartTime:         c.StartTime,
		EndTime:           c.EndTime,
	}
}

// RankedCommuter is one entry of a recommendation list, best first.
type RankedCommuter struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Commuter PublicCommuter `json:"commuter"`
}

// RecommendationFeed is returned by the API and pushed to live sessions.
type RecommendationFeed struct {
	CommuterID      string           `json:"commuter_id"`
	Recommendations []RankedCommuter `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// ProfileEvent is published whenever a commuter profile is written.
type ProfileEvent struct {
	CommuterID  string    `json:"commuter_id"`
	Status      Status    `json:"status"`
	IsOnboarded bool      `json:"is_onboarded"`
	UpdatedAt   time.Time `json:"updated_at"`
}
