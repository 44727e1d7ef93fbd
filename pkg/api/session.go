package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo"

	"github.com/countkeeper/countkeeper/pkg/api/resource"
	"github.com/countkeeper/countkeeper/pkg/model"
)

type saveScanRequest struct {
	Unit     string `json:"unit"`
	Month    int    `json:"month"`
	Year     int    `json:"year"`
	ItemID   string `json:"itemId"`
	User     string `json:"user"`
	UserName string `json:"userName"`
	Metadata string `json:"metadata,omitempty"`
}

func (h *Handler) handleSaveScan(c echo.Context) error {
	req := new(saveScanRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	period := model.Period{Month: req.Month, Year: req.Year}
	if req.Unit == "" || req.ItemID == "" || req.User == "" || !period.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unit, itemId, user and a valid period are required")
	}

	rec, err := h.coord.RecordScan(c.Request().Context(), req.Unit, period,
		req.ItemID, req.User, req.UserName, req.Metadata)
	if err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusCreated, resource.NewScan(rec))
}

type finishSessionRequest struct {
	Unit  string `json:"unit"`
	Month int    `json:"month"`
	Year  int    `json:"year"`
	User  string `json:"user"`
}

func (h *Handler) handleFinishSession(c echo.Context) error {
	req := new(finishSessionRequest)
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	period := model.Period{Month: req.Month, Year: req.Year}
	if req.Unit == "" || req.User == "" || !period.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unit, user and a valid period are required")
	}

	sess, err := h.coord.CompleteSession(c.Request().Context(), req.Unit, period, req.User)
	if err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, resource.NewSession(sess))
}

func (h *Handler) handleSessionStatus(c echo.Context) error {
	unit, period, err := queryKey(c)
	if err != nil {
		return err
	}

	sess, err := h.coord.SessionStatus(c.Request().Context(), unit, period)
	if err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, resource.NewSessionStatus(sess))
}

func (h *Handler) handleScanCount(c echo.Context) error {
	unit, period, err := queryKey(c)
	if err != nil {
		return err
	}

	count, err := h.coord.ScanCount(c.Request().Context(), unit, period)
	if err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, resource.NewScanCount(unit, period, count))
}

func queryKey(c echo.Context) (string, model.Period, error) {
	unit := c.QueryParam("unit")
	month, _ := strconv.Atoi(c.QueryParam("month"))
	year, _ := strconv.Atoi(c.QueryParam("year"))

	period := model.Period{Month: month, Year: year}
	if unit == "" || !period.Valid() {
		return "", model.Period{}, echo.NewHTTPError(http.StatusBadRequest,
			"unit, month and year query parameters are required")
	}

	return unit, period, nil
}
