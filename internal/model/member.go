package model

import "time"

type MemberStatus string

const (
	StatusPending  MemberStatus = "pending"
	StatusVerified MemberStatus = "verified"
	StatusFailed   MemberStatus = "failed"
	StatusExpired  MemberStatus = "expired"
)

// Member is any user the bot has seen, verified or not. Records are never
// deleted so ranking history survives removals from the group.
type Member struct {
	TelegramID   int64
	Username     string
	FirstName    string
	LanguageCode string
	Status       MemberStatus
	InvitedBy    *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName picks the best human-readable name available.
func (m *Member) DisplayName() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	if m.FirstName != "" {
		return m.FirstName
	}
	return "User"
}
