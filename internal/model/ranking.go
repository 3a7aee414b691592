package model

type RankingView string

const (
	ViewTotalInvited RankingView = "invited"
	ViewTotalLeft    RankingView = "left"
	ViewNetActive    RankingView = "active"
)

func ParseRankingView(s string) (RankingView, bool) {
	switch RankingView(s) {
	case ViewTotalInvited, ViewTotalLeft, ViewNetActive:
		return RankingView(s), true
	}
	return "", false
}

type RankingEntry struct {
	Rank     int
	MemberID int64
	Name     string
	Count    int
}

type RankingPage struct {
	View       RankingView
	Entries    []*RankingEntry
	Page       int
	TotalPages int
	Total      int
}

// MemberRank is a member's own position in one ranking view, returned even
// when the member falls outside the requested page.
type MemberRank struct {
	Rank  int
	Count int
	Total int
}
