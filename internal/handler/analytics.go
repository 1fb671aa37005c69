package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/abdusco/linkpay/internal"
	"github.com/abdusco/linkpay/internal/auth"
	"github.com/abdusco/linkpay/internal/repo"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

const (
	defaultAnalyticsDays = 30
	maxAnalyticsDays     = 365
)

type LinkReader interface {
	GetByID(ctx context.Context, linkID int64) (*repo.LinkRow, error)
}

type ImpressionStats interface {
	DailyStats(ctx context.Context, linkID int64, since time.Time) ([]internal.DailyStats, error)
}

type AnalyticsHandler struct {
	links       LinkReader
	impressions ImpressionStats
	now         func() time.Time
}

func NewAnalyticsHandler(links LinkReader, impressions ImpressionStats) *AnalyticsHandler {
	return &AnalyticsHandler{links: links, impressions: impressions, now: time.Now}
}

type AnalyticsResponse struct {
	LinkID           int64                 `json:"link_id"`
	Code             string                `json:"short_code"`
	TotalClicks      int64                 `json:"total_clicks"`
	TotalImpressions int64                 `json:"total_impressions"`
	Days             []internal.DailyStats `json:"daily"`
}

func (h *AnalyticsHandler) LinkAnalytics(c echo.Context) error {
	ctx := c.Request().Context()

	principal, ok := auth.FromContext(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid link id")
	}

	days := defaultAnalyticsDays
	if raw := c.QueryParam("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days <= 0 || days > maxAnalyticsDays {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be between 1 and 365")
		}
	}

	link, err := h.links.GetByID(ctx, id)
	if err != nil {
		return toHTTPError(err)
	}
	// Other owners' links are reported as missing.
	if !principal.IsAdmin() && (link.OwnerID == nil || *link.OwnerID != principal.UserID) {
		return toHTTPError(internal.ErrLinkNotFound)
	}

	since := h.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))
	stats, err := h.impressions.DailyStats(ctx, link.ID, since)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, AnalyticsResponse{
		LinkID:      link.ID,
		Code:        link.Code,
		TotalClicks: link.ClickCount,
		TotalImpressions: lo.SumBy(stats, func(s internal.DailyStats) int64 {
			return s.Impressions
		}),
		Days: nonNil(stats),
	})
}
