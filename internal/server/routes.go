package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/berfenger/surplus2mqtt/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)

	api := e.Group("/api")
	api.GET("/status", s.StatusHandler)
	api.GET("/current", s.CurrentSampleHandler)
	api.GET("/devices", s.ListDevicesHandler)
	api.POST("/devices", s.AddDeviceHandler)
	api.POST("/devices/save", s.SaveDevicesHandler)
	api.GET("/devices/:name", s.GetDeviceHandler)
	api.DELETE("/devices/:name", s.RemoveDeviceHandler)
	api.POST("/devices/:name/on", s.switchHandler(domain.SwitchModeOn))
	api.POST("/devices/:name/off", s.switchHandler(domain.SwitchModeOff))
	api.POST("/devices/:name/toggle", s.switchHandler(domain.SwitchModeToggle))
	api.GET("/events", s.EventsHandler)
	api.GET("/stats", s.DailyStatsHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

type statusResponse struct {
	Version         string              `json:"version"`
	Healthy         bool                `json:"healthy"`
	Devices         int                 `json:"devices"`
	ActiveDevices   int                 `json:"active_devices"`
	ControlledPower float64             `json:"controlled_power"`
	Sample          *domain.PowerSample `json:"sample"`
}

func (s *Server) StatusHandler(c echo.Context) error {
	status := statusResponse{Version: versioninfo.Short()}
	if res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result(); err == nil {
		if health, ok := res.(domain.ActorHealthResponse); ok {
			status.Healthy = health.Healthy
		}
	}
	devices, err := ask[domain.GetDevicesResponse](s, domain.GetDevicesRequest{})
	if err != nil {
		return err
	}
	status.Devices = len(devices.Devices)
	// a missing sample is not an error here
	if cur, err := ask[domain.GetCurrentSampleResponse](s, domain.GetCurrentSampleRequest{}); err == nil {
		status.Sample = cur.Sample
		status.ActiveDevices = cur.ActiveDevices
		status.ControlledPower = cur.ControlledPower
	} else {
		for _, d := range devices.Devices {
			if d.State == domain.DeviceStateOn && d.PowerConsumption != nil {
				status.ActiveDevices++
				status.ControlledPower += *d.PowerConsumption
			}
		}
	}
	return c.JSON(http.StatusOK, status)
}

type currentResponse struct {
	Sample          domain.PowerSample `json:"sample"`
	ControlledPower float64            `json:"controlled_power"`
	ActiveDevices   int                `json:"active_devices"`
}

func (s *Server) CurrentSampleHandler(c echo.Context) error {
	cur, err := ask[domain.GetCurrentSampleResponse](s, domain.GetCurrentSampleRequest{})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, currentResponse{
		Sample:          *cur.Sample,
		ControlledPower: cur.ControlledPower,
		ActiveDevices:   cur.ActiveDevices,
	})
}

func (s *Server) ListDevicesHandler(c echo.Context) error {
	res, err := ask[domain.GetDevicesResponse](s, domain.GetDevicesRequest{})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res.Devices)
}

func (s *Server) GetDeviceHandler(c echo.Context) error {
	res, err := ask[domain.GetDeviceResponse](s, domain.GetDeviceRequest{Name: c.Param("name")})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res.Device)
}

func (s *Server) AddDeviceHandler(c echo.Context) error {
	var record domain.DeviceRecord
	if err := c.Bind(&record); err != nil {
		return err
	}
	res, err := ask[domain.AddDeviceResponse](s, domain.AddDeviceRequest{Record: record})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res.Device)
}

func (s *Server) RemoveDeviceHandler(c echo.Context) error {
	if _, err := ask[domain.RemoveDeviceResponse](s, domain.RemoveDeviceRequest{Name: c.Param("name")}); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) switchHandler(mode domain.SwitchMode) echo.HandlerFunc {
	return func(c echo.Context) error {
		res, err := ask[domain.SwitchDeviceResponse](s, domain.SwitchDeviceRequest{Name: c.Param("name"), Mode: mode})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]any{
			"name":   res.Name,
			"action": res.Action,
			"state":  res.State,
		})
	}
}

func (s *Server) SaveDevicesHandler(c echo.Context) error {
	res, err := ask[domain.SaveDevicesResponse](s, domain.SaveDevicesRequest{})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"saved": res.Count})
}

func (s *Server) EventsHandler(c echo.Context) error {
	limit := defaultEventLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxEventLimit {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer in [1,1000]")
		}
		limit = n
	}
	res, err := ask[domain.GetEventsResponse](s, domain.GetEventsRequest{Limit: limit})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res.Events)
}

type statsResponse struct {
	*domain.DailyStats
	Date                string  `json:"date"`
	RuntimeHours        float64 `json:"runtime_hours"`
	SelfSufficiencyRate float64 `json:"self_sufficiency_rate"`
}

// DailyStatsHandler serves the running day, or the day named by ?date=YYYY-MM-DD.
func (s *Server) DailyStatsHandler(c echo.Context) error {
	var req domain.GetDailyStatsRequest
	if v := c.QueryParam("date"); v != "" {
		day, err := time.ParseInLocation(time.DateOnly, v, time.Local)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		}
		req.Day = day
	}
	res, err := ask[domain.GetDailyStatsResponse](s, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statsResponse{
		DailyStats:          res.Stats,
		Date:                res.Stats.Day.Format(time.DateOnly),
		RuntimeHours:        res.Stats.RuntimeHours(),
		SelfSufficiencyRate: res.Stats.SelfSufficiencyRate(),
	})
}

// ask sends msg to the master actor and unwraps a T reply, mapping failures
// to HTTP errors.
func ask[T domain.ActorResponse](s *Server, msg any) (T, error) {
	var zero T
	res, err := s.rootContext.RequestFuture(s.masterActor, msg, requestTimeout).Result()
	if err != nil {
		s.logger.Warn("http: actor request failed", zap.Error(err))
		return zero, echo.NewHTTPError(http.StatusServiceUnavailable, "service unavailable")
	}
	resp, ok := res.(T)
	if !ok {
		return zero, echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	if resp.HasResponseError() {
		return zero, httpError(resp.GetResponseError())
	}
	return resp, nil
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicateName):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidDevice), errors.Is(err, domain.ErrInvalidConfiguration):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSwitchFailed):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, domain.ErrNoSample):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}
