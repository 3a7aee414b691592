package api

import (
	"errors"
	"net/http"
	"strconv"

	"TG_group_guardian/internal/model"
	"TG_group_guardian/internal/service"
	"TG_group_guardian/pkg/auth"
	"TG_group_guardian/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statsRoutes is the companion mini-app surface: a member's own standing
// and the leaderboards, read-only over the same services the bot uses.
type statsRoutes struct {
	is service.InvitationServiceI
	rs service.RankingServiceI
	a  *auth.TelegramAuth
}

func NewStatsRoutes(handler *gin.RouterGroup, is service.InvitationServiceI, rs service.RankingServiceI, a *auth.TelegramAuth) {
	r := &statsRoutes{is: is, rs: rs, a: a}
	h := handler.Group("/stats")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.GET("/me", r.GetMyStats)
		h.GET("/rankings/:view", r.GetRanking)
	}
}

type MyStatsResponse struct {
	InviteLink   string        `json:"invite_link,omitempty"`
	TotalInvited int           `json:"total_invited"`
	TotalLeft    int           `json:"total_left"`
	NetActive    int           `json:"net_active"`
	Ranks        map[string]int `json:"ranks"`
}

func (r *statsRoutes) requester(c *gin.Context) (*auth.TelegramUserData, bool) {
	log := logger.Logger()

	userData, exists := c.Get("telegram_user")
	if !exists {
		log.Error("telegram user data not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return nil, false
	}

	user, ok := userData.(*auth.TelegramUserData)
	if !ok {
		log.Error("invalid type assertion for telegram user data")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return nil, false
	}

	return user, true
}

func (r *statsRoutes) GetMyStats(c *gin.Context) {
	log := logger.Logger()

	user, ok := r.requester(c)
	if !ok {
		return
	}

	stats, err := r.is.MemberStats(c.Request.Context(), user.ID)
	if err != nil {
		log.Error("failed to get member stats", zap.Int64("member_id", user.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	resp := MyStatsResponse{
		InviteLink:   stats.Link,
		TotalInvited: stats.TotalInvited,
		TotalLeft:    stats.TotalLeft,
		NetActive:    stats.ActiveMembers,
		Ranks:        make(map[string]int),
	}

	for _, view := range []model.RankingView{model.ViewTotalInvited, model.ViewTotalLeft, model.ViewNetActive} {
		rank, err := r.rs.MemberRank(c.Request.Context(), view, user.ID)
		if err != nil {
			if errors.Is(err, service.ErrMemberNotFound) {
				continue
			}
			log.Error("failed to get member rank", zap.Int64("member_id", user.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		resp.Ranks[string(view)] = rank.Rank
	}

	c.JSON(http.StatusOK, resp)
}

type RankingEntryResponse struct {
	Rank     int    `json:"rank"`
	MemberID int64  `json:"member_id"`
	Name     string `json:"name"`
	Count    int    `json:"count"`
}

type RankingResponse struct {
	View       string                 `json:"view"`
	Page       int                    `json:"page"`
	TotalPages int                    `json:"total_pages"`
	Total      int                    `json:"total"`
	Entries    []RankingEntryResponse `json:"entries"`
	MyRank     *int                   `json:"my_rank,omitempty"`
}

func (r *statsRoutes) GetRanking(c *gin.Context) {
	log := logger.Logger()

	user, ok := r.requester(c)
	if !ok {
		return
	}

	view, ok := model.ParseRankingView(c.Param("view"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown ranking view"})
		return
	}

	page := 1
	if p := c.Query("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
			return
		}
		page = n
	}

	board, err := r.rs.Leaderboard(c.Request.Context(), view, page)
	if err != nil {
		log.Error("failed to get leaderboard", zap.String("view", string(view)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	resp := RankingResponse{
		View:       string(board.View),
		Page:       board.Page,
		TotalPages: board.TotalPages,
		Total:      board.Total,
		Entries:    make([]RankingEntryResponse, len(board.Entries)),
	}
	for i, e := range board.Entries {
		resp.Entries[i] = RankingEntryResponse{
			Rank:     e.Rank,
			MemberID: e.MemberID,
			Name:     e.Name,
			Count:    e.Count,
		}
	}

	if rank, err := r.rs.MemberRank(c.Request.Context(), view, user.ID); err == nil {
		resp.MyRank = &rank.Rank
	}

	c.JSON(http.StatusOK, resp)
}
