package collab

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gobwas/ws"
	"github.com/labstack/echo"
	log "github.com/sirupsen/logrus"

	"github.com/countkeeper/countkeeper/pkg/collab/room"
	"github.com/countkeeper/countkeeper/pkg/collab/room/websocket"
	"github.com/countkeeper/countkeeper/pkg/model"
)

// Handler serves the collaboration WebSocket endpoint
type Handler struct {
	registry *room.Registry
}

// NewHandler create a new collaboration handler
func NewHandler(registry *room.Registry) *Handler {
	return &Handler{
		registry: registry,
	}
}

// RegisterRoutes attaches the handlers to the echo web server
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	log.Debug("Register collab routes")
	api := e.Group("/collab")
	api.Any("/v1/:unit/:month/:year", h.roomHandler())
}

func (h *Handler) roomHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		key, err := parseRoomKey(c)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		conn, _, _, err := ws.UpgradeHTTP(c.Request(), c.Response())
		if err != nil {
			return err
		}
		defer conn.Close()

		terminateCh := make(chan struct{})
		driver := websocket.NewDriver(conn, terminateCh)

		member, err := h.registry.Join(key, driver)
		if err == room.ErrRoomFull {
			log.Warnf("room %s rejected a connection, at capacity", key)
			websocket.RejectBusy(conn, "room is at capacity")
			return nil
		} else if err != nil {
			return err
		}

		driver.Start()
		defer driver.Close()
		defer member.Terminate()

		<-terminateCh

		log.Debugf("handler exits room handler for %s", key)
		return nil
	}
}

func parseRoomKey(c echo.Context) (room.Key, error) {
	unit, err := url.PathUnescape(c.Param("unit"))
	if err != nil || unit == "" {
		return room.Key{}, echo.NewHTTPError(http.StatusBadRequest, "invalid unit")
	}

	month, err := strconv.Atoi(c.Param("month"))
	if err != nil {
		return room.Key{}, echo.NewHTTPError(http.StatusBadRequest, "invalid month")
	}
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		return room.Key{}, echo.NewHTTPError(http.StatusBadRequest, "invalid year")
	}

	period := model.Period{Month: month, Year: year}
	if !period.Valid() {
		return room.Key{}, echo.NewHTTPError(http.StatusBadRequest, "invalid period")
	}

	return room.NewKey(unit, period), nil
}
