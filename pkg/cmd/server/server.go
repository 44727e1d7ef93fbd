package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	_ "github.com/lib/pq"
	nats "github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/countkeeper/countkeeper/config"
	"github.com/countkeeper/countkeeper/pkg/api"
	"github.com/countkeeper/countkeeper/pkg/archive"
	"github.com/countkeeper/countkeeper/pkg/collab"
	"github.com/countkeeper/countkeeper/pkg/collab/room"
	"github.com/countkeeper/countkeeper/pkg/coordinator"
	"github.com/countkeeper/countkeeper/pkg/events"
	"github.com/countkeeper/countkeeper/pkg/storage"
	"github.com/countkeeper/countkeeper/pkg/storage/guard"
	"github.com/countkeeper/countkeeper/pkg/storage/memory"
	"github.com/countkeeper/countkeeper/pkg/storage/postgres"
)

type countServer struct {
	c *config.Config

	quitCh chan bool
	doneCh chan bool

	nc *nats.Conn
	db *sqlx.DB

	registry *room.Registry
}

func init() {
	formatter := &logrus.TextFormatter{
		FullTimestamp: true,
	}
	logrus.SetFormatter(formatter)

	// Output to stdout instead of the default stderr
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

func newCountServer(c *config.Config) (*countServer, error) {
	s := &countServer{
		c:      c,
		quitCh: make(chan bool),
		doneCh: make(chan bool),
	}

	if c.NATSServerURL != "" {
		nc, err := nats.Connect(c.NATSServerURL,
			nats.DrainTimeout(10*time.Second),
			nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
				log.Errorf("nats error: %s", err.Error())
			}))
		if err != nil {
			return nil, err
		}
		s.nc = nc
	}

	if c.DatabaseURL != "" {
		db, err := sqlx.Open("postgres", c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			return nil, err
		}
		s.db = db
	}

	return s, nil
}

func (s *countServer) Serve() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(logger())

	// The raw sheet adapter, wrapped by the consistency guard so nothing
	// talks to the store unguarded.
	var sheets storage.Interface
	if s.db != nil {
		sheets = postgres.NewStore(s.db)
	} else {
		log.Warn("no DATABASE_URL configured, using the in-memory sheet store")
		sheets = memory.NewStore()
	}

	guarded := guard.New(sheets, guard.Config{
		QuotaPerWindow:  s.c.StoreQuotaPerMinute,
		SafetyMargin:    s.c.StoreQuotaSafetyMargin,
		MinCallInterval: time.Duration(s.c.StoreMinCallInterval) * time.Millisecond,
		CacheTTL:        time.Duration(s.c.StoreCacheTTL) * time.Second,
		RetryAttempts:   s.c.StoreRetryAttempts,
		BackoffBase:     time.Duration(s.c.StoreBackoffBase) * time.Millisecond,
		BackoffCap:      time.Duration(s.c.StoreBackoffCap) * time.Millisecond,
	})

	s.registry = room.NewRegistry(room.Config{
		Capacity:          s.c.RoomCapacity,
		RateCeiling:       s.c.MessageRateCeiling,
		HeartbeatInterval: time.Duration(s.c.HeartbeatInterval) * time.Second,
	})

	var publisher events.Publisher = events.NopPublisher{}
	var archiver coordinator.Archiver = archive.NopTrigger{}
	if s.nc != nil {
		publisher = events.NewNATSPublisher(s.nc)
		archiver = archive.NewNATSTrigger(s.nc)
	}

	bridge := collab.NewBridge(s.registry, publisher)
	s.registry.SetJoinListener(bridge)

	coord := coordinator.New(guarded, coordinator.Config{
		Notifier:       bridge,
		Archiver:       archiver,
		VerifyAttempts: s.c.SessionVerifyAttempts,
	})

	// Register the room endpoint and the coordinator-facing API
	collab.NewHandler(s.registry).RegisterRoutes(e)
	api.NewHandler(coord).RegisterRoutes(e)

	s.registry.StartGC()

	go func() {
		log.WithFields(log.Fields{
			"host": s.c.BindHost,
			"port": s.c.BindPort,
		}).Info("Starting server")

		if err := e.Start(fmt.Sprintf("%s:%d", s.c.BindHost, s.c.BindPort)); err != nil {
			e.Logger.Info("Shutting down the server")
		}
	}()

	// Wait until receiving the quit signal
	<-s.quitCh
	log.Info("Shutdown signal received")

	s.registry.Stop()

	// Create a 10 second timeout context
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown the echo web server
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Error(err)
	}

	// We've done!
	s.doneCh <- true
}

// Logger returns a middleware that logs HTTP requests.
func logger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			var err error
			if err = next(c); err != nil {
				c.Error(err)
			}
			stop := time.Now()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = res.Header().Get(echo.HeaderXRequestID)
			}
			reqSizeStr := req.Header.Get(echo.HeaderContentLength)
			if reqSizeStr == "" {
				reqSizeStr = "0"
			}
			reqSize, err := strconv.ParseInt(reqSizeStr, 10, 0)
			if err != nil {
				reqSize = -1
			}
			errMsg := ""
			if err != nil {
				errMsg = err.Error()
			}

			log.WithFields(log.Fields{
				"timestamp":     stop.Format(time.RFC3339),
				"id":            id,
				"remote_ip":     c.RealIP(),
				"host":          req.Host,
				"method":        req.Method,
				"uri":           req.RequestURI,
				"protocol":      req.Proto,
				"user_agent":    req.UserAgent(),
				"status":        res.Status,
				"status_text":   http.StatusText(res.Status),
				"referer":       req.Referer(),
				"error":         errMsg,
				"bytes_in":      reqSize,
				"bytes_out":     res.Size,
				"latency":       stop.Sub(start).Nanoseconds(),
				"latency_human": stop.Sub(start).String(),
			}).Infof("%s %s %s %d %s", req.Method, req.RequestURI, req.Proto,
				res.Status, strconv.FormatInt(res.Size, 10))

			return err
		}
	}
}

func (s *countServer) Shutdown() {
	if s.nc != nil {
		s.nc.Drain()
	}
	if s.db != nil {
		s.db.Close()
	}

	// Send the quit signal to the server.Serve() routine
	s.quitCh <- true

	// Wait up to 10 seconds
	select {
	case <-s.doneCh:
		log.Info("Shutdown server successful")
	case <-time.After(10 * time.Second):
		log.Error("Shutdown server failed")
	}
}

func RunServe(c *config.Config) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		s, err := newCountServer(c)
		if err != nil {
			log.Error("failed to create new server instance: ", err)
			os.Exit(1)
		}

		go s.Serve()

		// Wait for interrupt signal to gracefully shutdown the server
		quitCh := make(chan os.Signal, 1)
		signal.Notify(quitCh, os.Interrupt)
		<-quitCh

		// Shutdown the server
		s.Shutdown()
	}
}
