package models

import (
	"fmt"

	"github.com/example/carpool-match/internal/days"
)

// Skeleton carries the fields that vary between generated commuters.
type Skeleton struct {
	ID           string
	Role         Role
	SeatAvail    int
	CompanyCoord Coord
	StartCoord   Coord
	DaysWorking  string // S,M,T,W,R,F,S
	StartTime    string // H:MM, UTC
	EndTime      string // H:MM, UTC
}

// NewCommuterFromSkeleton fills in the remaining profile fields with fixed
// sample values. Used by the seed command and tests.
func NewCommuterFromSkeleton(s Skeleton) (Commuter, error) {
	if _, err := days.Decode(s.DaysWorking); err != nil {
		return Commuter{}, fmt.Errorf("skeleton %s: %w", s.ID, err)
	}
	start, err := ParseTimeOfDay(s.StartTime)
	if err != nil {
		return Commuter{}, fmt.Errorf("skeleton %s: start time: %w", s.ID, err)
	}
	end, err := ParseTimeOfDay(s.EndTime)
	if err != nil {
		return Commuter{}, fmt.Errorf("skeleton %s: end time: %w", s.ID, err)
	}
	seats := s.SeatAvail
	if s.Role == RoleRider {
		seats = 0
	}
	return Commuter{
		ID:                s.ID,
		Name:              "User " + s.ID,
		Email:             "user" + s.ID + "@hotmail.com",
		Bio:               "My name is User " + s.ID + ". I like to drive",
		PreferredName:     "User " + s.ID,
		Pronouns:          "they/them",
		Role:              s.Role,
		Status:            StatusActive,
		SeatAvail:         seats,
		CompanyName:       "Sandbox Inc.",
		CompanyAddress:    "360 Huntington Ave",
		CompanyCoord:      s.CompanyCoord,
		StartLocation:     "Roxbury",
		StartCoord:        s.StartCoord,
		CompanyPOIAddress: "Northeastern University",
		CompanyPOICoord:   s.CompanyCoord,
		StartPOILocation:  "Greenfield Commons",
		StartPOICoord:     s.StartCoord,
		IsOnboarded:       true,
		DaysWorking:       s.DaysWorking,
		StartTime:         &start,
		EndTime:           &end,
	}, nil
}
