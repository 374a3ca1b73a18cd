package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidGroup = errors.New("invalid carpool group")

const maxGroupNameLen = 100

// CarpoolGroup is a named set of commuters who ride together.
type CarpoolGroup struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MemberIDs []string  `json:"member_ids"`
	CreatedAt time.Time `json:"created_at"`
}

func (g *CarpoolGroup) Validate() error {
	var errs []error
	if strings.TrimSpace(g.ID) == "" {
		errs = append(errs, fmt.Errorf("%w: id is required", ErrInvalidGroup))
	}
	name := strings.TrimSpace(g.Name)
	if name == "" {
		errs = append(errs, fmt.Errorf("%w: name is required", ErrInvalidGroup))
	}
	if len(name) > maxGroupNameLen {
		errs = append(errs, fmt.Errorf("%w: name longer than %d bytes", ErrInvalidGroup, maxGroupNameLen))
	}
	return errors.Join(errs...)
}

// GroupMember is a member as other members see them.
type GroupMember struct {
	ID       string         `json:"id"`
	Commuter PublicCommuter `json:"commuter"`
}

// GroupView is a group with its members resolved.
type GroupView struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	CreatedAt time.Time     `json:"created_at"`
	Members   []GroupMember `json:"members"`
}
