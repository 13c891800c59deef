// Package server - Haupt-Router und Server-Setup
// Beinhaltet: Server-Struct, Router-Registrierung, Server-Start
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/semaphore"

	"github.com/ollama/gpt2/convert"
	"github.com/ollama/gpt2/envconfig"
	"github.com/ollama/gpt2/logutil"
	"github.com/ollama/gpt2/ml"
	_ "github.com/ollama/gpt2/ml/backend"
	"github.com/ollama/gpt2/model"
	_ "github.com/ollama/gpt2/model/models"
	"github.com/ollama/gpt2/version"
)

var mode string = gin.DebugMode

// Server haelt das geladene Modell und begrenzt gleichzeitige Generierungen
type Server struct {
	addr    net.Addr
	path    string
	backend ml.Backend
	model   model.Model
	sem     *semaphore.Weighted
}

func init() {
	switch mode {
	case gin.DebugMode:
	case gin.ReleaseMode:
	case gin.TestMode:
	default:
		mode = gin.DebugMode
	}

	gin.SetMode(mode)
}

// NewServer erzeugt einen Server fuer das Modell m. Die Gewichte werden
// von allen Anfragen gemeinsam gelesen, jeder Request hat seinen eigenen
// Cache.
func NewServer(b ml.Backend, m model.Model, path string) *Server {
	return &Server{
		path:    path,
		backend: b,
		model:   m,
		sem:     semaphore.NewWeighted(int64(max(1, envconfig.NumParallel()))),
	}
}

// GenerateRoutes erstellt und konfiguriert den HTTP-Router
func (s *Server) GenerateRoutes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowBrowserExtensions = true
	corsConfig.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"Accept",
		"X-Requested-With",
	}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()

	r := gin.Default()
	r.HandleMethodNotAllowed = true
	r.Use(
		cors.New(corsConfig),
		allowedHostsMiddleware(s.addr),
	)

	// General
	r.HEAD("/", func(c *gin.Context) { c.String(http.StatusOK, "gpt2 is running") })
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "gpt2 is running") })
	r.HEAD("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })
	r.GET("/api/version", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": version.Version}) })

	// Inference
	r.POST("/api/generate", s.GenerateHandler)
	r.POST("/api/topk", s.TopKHandler)
	r.GET("/api/show", s.ShowHandler)

	return r
}

// Serve laedt das Modell unter path und beantwortet Anfragen auf ln
func Serve(ln net.Listener, path string) error {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
	slog.Info("server config", "env", envconfig.Values())

	b, err := ml.NewBackend(ml.BackendParams{NumThreads: envconfig.NumThreads()})
	if err != nil {
		return err
	}
	defer b.Close()

	m, err := convert.Load(b.NewContext(), path)
	if err != nil {
		return err
	}

	s := NewServer(b, m, path)
	s.addr = ln.Addr()

	slog.Info(fmt.Sprintf("Listening on %s (version %s)", ln.Addr(), version.Version))
	srvr := &http.Server{Handler: s.GenerateRoutes()}

	ctx, done := context.WithCancel(context.Background())

	// listen for a ctrl+c and stop serving
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		srvr.Close()
		done()
	}()

	err = srvr.Serve(ln)
	// If server is closed from the signal handler, wait for the ctx to be done
	// otherwise error out quickly
	if err != http.ErrServerClosed {
		return err
	}
	<-ctx.Done()
	return nil
}
