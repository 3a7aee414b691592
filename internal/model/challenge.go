package model

import "time"

// Challenge is one verification attempt with a deadline. At most one
// challenge per member may have a nil ResolvedAt at any time.
type Challenge struct {
	ID           int64
	MemberID     int64
	Question     string
	Answer       string
	MemberAnswer *string
	JoinCode     *string
	Solved       bool
	Attempts     int
	CreatedAt    time.Time
	ResolvedAt   *time.Time
	ExpiresAt    time.Time
}

func (c *Challenge) Resolved() bool {
	return c.ResolvedAt != nil
}

func (c *Challenge) Overdue(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
