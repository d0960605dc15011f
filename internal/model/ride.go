package model

import (
	"slices"
	"time"
)

// Collection names in the document store.
const (
	CollectionRides = "rides"
	CollectionUsers = "users"
)

// Document field names touched by partial updates.
const (
	FieldRosterUserIDs = "roster_user_ids"
	FieldRosterCount   = "roster_count"
)

type GenderRestriction string

const (
	GenderMale   GenderRestriction = "Male"
	GenderFemale GenderRestriction = "Female"
	GenderCoed   GenderRestriction = "Co-ed"
)

// Valid reports whether g is one of the known restrictions.
func (g GenderRestriction) Valid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderCoed:
		return true
	}
	return false
}

// Ride is one ride posting. RosterCount is expected to equal
// len(RosterUserIDs); drift is tolerated and never repaired here.
type Ride struct {
	ID              string            `json:"id"`
	CreatorID       string            `json:"creator_id,omitempty"`
	Destination     string            `json:"destination"`
	MeetingLocation string            `json:"meeting_location"`
	Departure       time.Time         `json:"departure"`
	Return          *time.Time        `json:"return,omitempty"`
	Gender          GenderRestriction `json:"gender"`
	Capacity        int               `json:"capacity"`
	RosterUserIDs   []string          `json:"roster_user_ids"`
	RosterCount     int               `json:"roster_count"`
	HasLuggageSpace bool              `json:"has_luggage_space"`
	IsRoundTrip     bool              `json:"is_round_trip"`
}

// HasMember reports whether userID is on the roster. An empty userID is
// never a member.
func (r *Ride) HasMember(userID string) bool {
	if r == nil || userID == "" {
		return false
	}
	return slices.Contains(r.RosterUserIDs, userID)
}

// RidePatch is a shallow partial update. Nil fields are left untouched.
// ClearReturn removes the return time, which a nil Return cannot express.
type RidePatch struct {
	CreatorID       *string
	Destination     *string
	MeetingLocation *string
	Departure       *time.Time
	Return          *time.Time
	ClearReturn     bool
	Gender          *GenderRestriction
	Capacity        *int
	RosterUserIDs   []string
	RosterCount     *int
	HasLuggageSpace *bool
	IsRoundTrip     *bool
}

// PatchFrom builds a patch that overwrites every field with the values of r.
func PatchFrom(r *Ride) RidePatch {
	roster := r.RosterUserIDs
	if roster == nil {
		roster = []string{}
	}
	return RidePatch{
		CreatorID:       &r.CreatorID,
		Destination:     &r.Destination,
		MeetingLocation: &r.MeetingLocation,
		Departure:       &r.Departure,
		Return:          r.Return,
		ClearReturn:     r.Return == nil,
		Gender:          &r.Gender,
		Capacity:        &r.Capacity,
		RosterUserIDs:   roster,
		RosterCount:     &r.RosterCount,
		HasLuggageSpace: &r.HasLuggageSpace,
		IsRoundTrip:     &r.IsRoundTrip,
	}
}

// Apply returns a copy of r with the patch applied. r is not modified.
func (p RidePatch) Apply(r *Ride) *Ride {
	next := *r
	if p.CreatorID != nil {
		next.CreatorID = *p.CreatorID
	}
	if p.Destination != nil {
		next.Destination = *p.Destination
	}
	if p.MeetingLocation != nil {
		next.MeetingLocation = *p.MeetingLocation
	}
	if p.Departure != nil {
		next.Departure = *p.Departure
	}
	if p.Return != nil {
		ret := *p.Return
		next.Return = &ret
	} else if p.ClearReturn {
		next.Return = nil
	}
	if p.Gender != nil {
		next.Gender = *p.Gender
	}
	if p.Capacity != nil {
		next.Capacity = *p.Capacity
	}
	if p.RosterUserIDs != nil {
		next.RosterUserIDs = slices.Clone(p.RosterUserIDs)
	}
	if p.RosterCount != nil {
		next.RosterCount = *p.RosterCount
	}
	if p.HasLuggageSpace != nil {
		next.HasLuggageSpace = *p.HasLuggageSpace
	}
	if p.IsRoundTrip != nil {
		next.IsRoundTrip = *p.IsRoundTrip
	}
	return &next
}
