package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/parking-reservation/internal/middleware"
	"github.com/iliyamo/parking-reservation/internal/repository"
)

type AnalyticsHandler struct {
	Repo *repository.AnalyticsRepo
}

func NewAnalyticsHandler(r *repository.AnalyticsRepo) *AnalyticsHandler {
	return &AnalyticsHandler{Repo: r}
}

// Overview is the administrator dashboard.
func (h *AnalyticsHandler) Overview(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	ov, err := h.Repo.Overview(ctx)
	if err != nil {
		c.Logger().Error(err)
		return jsonError(c, http.StatusInternalServerError, "analytics failed")
	}
	return c.JSON(http.StatusOK, ov)
}

// Me summarizes the caller's own history.
func (h *AnalyticsHandler) Me(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return jsonError(c, http.StatusUnauthorized, "unauthorized")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Repo.UserSummary(ctx, uid)
	if err != nil {
		c.Logger().Error(err)
		return jsonError(c, http.StatusInternalServerError, "analytics failed")
	}
	return c.JSON(http.StatusOK, s)
}
