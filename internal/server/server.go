package server

import (
	"errors"

	"github.com/pranavjoshi100/safesteps-gps/internal/config"
	"github.com/pranavjoshi100/safesteps-gps/internal/producer"
	"github.com/pranavjoshi100/safesteps-gps/internal/recorder"
	"github.com/pranavjoshi100/safesteps-gps/internal/route"
	"github.com/pranavjoshi100/safesteps-gps/internal/settings"
	"github.com/pranavjoshi100/safesteps-gps/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	Source   *producer.PushSource
	Producer *producer.Producer
	Recorder *recorder.Recorder
	Routes   *route.Service
	Settings *settings.Service
}

func NewServer(
	cfg config.Config,
	source *producer.PushSource,
	prod *producer.Producer,
	rec *recorder.Recorder,
	routes *route.Service,
	sett *settings.Service,
) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:      app,
		Cfg:      cfg,
		Source:   source,
		Producer: prod,
		Recorder: rec,
		Routes:   routes,
		Settings: sett,
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	tracking := s.App.Group("/tracking")
	tracking.Post("/ingest", s.handleIngest)
	tracking.Get("/position", s.handlePosition)
	tracking.Get("/session", s.handleSession)
	tracking.Post("/sessions/start", s.handleStart)
	tracking.Post("/sessions/stop", s.handleStop)
	tracking.Post("/sessions/cancel", s.handleCancel)
	tracking.Post("/sessions/finalize", s.handleFinalize)
	tracking.Post("/report", s.handleReport)

	routes := s.App.Group("/routes")
	routes.Get("/", s.handleListRoutes)
	routes.Get("/:id/progress", s.handleProgress)

	s.App.Get("/settings", s.handleGetSettings)
	s.App.Put("/settings", s.handlePutSettings)

	s.App.Get("/stream/ws", websocket.New(s.handleStream))
}

type ingestRequest struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Alt      float64 `json:"alt"`
	SensorID int     `json:"sensor_id"`
}

func (s *Server) handleIngest(c *fiber.Ctx) error {
	var req ingestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	accepted := s.Source.Push(geo.Coordinate{Lat: req.Lat, Lng: req.Lng, Alt: req.Alt}, req.SensorID)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": accepted})
}

func (s *Server) handlePosition(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"coordinate": s.Producer.Current(),
		"has_fix":    s.Producer.HasFix(),
	})
}

func (s *Server) handleSession(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"active":      s.Recorder.Active(),
		"start_time":  s.Recorder.StartTime(),
		"buffer_len":  s.Recorder.BufferLen(),
		"segment_ids": s.Recorder.SegmentIDs(),
	})
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	started := s.Recorder.StartSession()
	status := fiber.StatusCreated
	if !started {
		// Already active: a no-op by contract, not an error.
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{"started": started, "active": s.Recorder.Active()})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	s.Recorder.StopSession()
	return c.JSON(fiber.Map{"active": s.Recorder.Active()})
}

func (s *Server) handleCancel(c *fiber.Ctx) error {
	s.Recorder.Cancel()
	return c.JSON(fiber.Map{"active": s.Recorder.Active()})
}

func (s *Server) handleFinalize(c *fiber.Ctx) error {
	var meta recorder.Metadata
	if err := c.BodyParser(&meta); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	id := s.Recorder.FinalizeAndSubmit(meta)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"report_id": id})
}

func (s *Server) handleReport(c *fiber.Ctx) error {
	var meta recorder.Metadata
	if err := c.BodyParser(&meta); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	id := s.Recorder.ReportPoint(meta)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"report_id": id})
}

func (s *Server) handleListRoutes(c *fiber.Ctx) error {
	routes, err := s.Routes.List(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(routes)
}

func (s *Server) handleProgress(c *fiber.Ctx) error {
	from := s.Producer.Current()
	if c.Query("lat") != "" && c.Query("lng") != "" {
		from = geo.Coordinate{
			Lat: c.QueryFloat("lat"),
			Lng: c.QueryFloat("lng"),
		}
	}

	progress, err := s.Routes.Progress(c.Context(), c.Params("id"), from)
	if err != nil {
		if errors.Is(err, route.ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(progress)
}

func (s *Server) handleGetSettings(c *fiber.Ctx) error {
	ctx := c.Context()
	return c.JSON(fiber.Map{
		"detection_enabled":       s.Settings.DetectionEnabled(ctx),
		"dwell_threshold_seconds": s.Settings.DwellSeconds(ctx),
		"notification_all_day":    s.Settings.NotifyAllDay(ctx),
		"show_all_routes":         s.Settings.ShowAllRoutes(ctx),
	})
}

type settingsRequest struct {
	DetectionEnabled *bool `json:"detection_enabled"`
	DwellSeconds     *int  `json:"dwell_threshold_seconds"`
	NotifyAllDay     *bool `json:"notification_all_day"`
	ShowAllRoutes    *bool `json:"show_all_routes"`
}

func (s *Server) handlePutSettings(c *fiber.Ctx) error {
	var req settingsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	ctx := c.Context()
	if req.DetectionEnabled != nil {
		if err := s.Settings.SetDetectionEnabled(ctx, *req.DetectionEnabled); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
	}
	if req.DwellSeconds != nil {
		if err := s.Settings.SetDwellSeconds(ctx, *req.DwellSeconds); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
	}
	if req.NotifyAllDay != nil {
		if err := s.Settings.SetNotifyAllDay(ctx, *req.NotifyAllDay); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
	}
	if req.ShowAllRoutes != nil {
		if err := s.Settings.SetShowAllRoutes(ctx, *req.ShowAllRoutes); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
	}
	return s.handleGetSettings(c)
}

// handleStream pushes live samples to a websocket client for as long as it
// stays connected.
func (s *Server) handleStream(c *websocket.Conn) {
	sub := s.Producer.Subscribe()
	defer s.Producer.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for sample := range sub.C {
			if err := c.WriteJSON(sample); err != nil {
				break
			}
		}
		close(done)
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
	<-done
}
