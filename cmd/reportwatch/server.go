package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/insalol/reportwatch/watchdog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
)

type StatusSource interface {
	Status() watchdog.Status
}

// Small HTTP server exposing health and metrics.
type Server struct {
	echo     *echo.Echo
	httpd    *http.Server
	logger   *slog.Logger
	watchdog StatusSource
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

type HealthStatus struct {
	GenericStatus
	Watchdog watchdog.Status `json:"watchdog"`
}

func NewServer(wd StatusSource, logger *slog.Logger, bind string) *Server {
	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv := &Server{
		echo:     e,
		logger:   logger.With("component", "http"),
		watchdog: wd,
	}
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.HidePort = true
	e.Use(slogecho.New(srv.logger))
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = srv.errorHandler

	e.GET("/", srv.HandleHealthCheck)
	e.GET("/_health", srv.HandleHealthCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return srv
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

// Blocks serving requests until Shutdown is called.
func (srv *Server) Run() error {
	srv.logger.Info("starting server", "bind", srv.httpd.Addr)
	if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (srv *Server) Shutdown() error {
	srv.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.httpd.Shutdown(ctx)
}

// Reports 503 once fetch failures have been escalated, so supervisors notice
// the watchdog is blind.
func (srv *Server) HandleHealthCheck(c echo.Context) error {
	st := srv.watchdog.Status()
	resp := HealthStatus{
		GenericStatus: GenericStatus{Status: "ok", Daemon: "reportwatch"},
		Watchdog:      st,
	}
	if st.State == watchdog.StateEscalated.String() {
		resp.Status = "error"
		resp.Message = "unable to read moderation reports"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	// slog-echo has already handled and logged this one
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	var errorMessage string
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("reportwatch-http-internal-error", "err", err)
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "reportwatch", Message: errorMessage})
}
