package model

import "time"

// Invitation is a per-member attribution token. TotalInvited and TotalLeft
// only ever grow, and TotalLeft never exceeds TotalInvited.
type Invitation struct {
	Code         string
	MemberID     int64
	Link         string
	TotalInvited int
	TotalLeft    int
	Active       bool
	CreatedAt    time.Time
	ExpiresAt    *time.Time
}

// Attribution links one invited member to the invitation that brought them
// in. A member has at most one attribution, set at their first verified
// join and never reassigned.
type Attribution struct {
	ID       int64
	Code     string
	MemberID int64
	HasLeft  bool
	JoinedAt time.Time
	LeftAt   *time.Time
}

type InvitationStats struct {
	Code          string
	Link          string
	TotalInvited  int
	TotalLeft     int
	ActiveMembers int
}

// InvitedMember is one row of an inviter's member listing.
type InvitedMember struct {
	MemberID int64
	Name     string
	HasLeft  bool
	JoinedAt time.Time
	LeftAt   *time.Time
}
