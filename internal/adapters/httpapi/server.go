// Package httpapi exposes the loan workflow over a JSON HTTP API built on gin.
package httpapi

import (
	"expvar"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"equiploan/internal/adapters/export"
	"equiploan/internal/core"
	"equiploan/pkg/domain"
)

// Deps are the collaborators a Server routes to. Exports and Gatherer are optional.
type Deps struct {
	Service     *core.Service
	Exports     *export.Worker
	Gatherer    prometheus.Gatherer
	Logger      core.Logger
	CORSOrigins []string
}

// Server holds the handlers.
type Server struct {
	svc     *core.Service
	exports *export.Worker
	logger  core.Logger
}

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = discard{}
	}
	s := &Server{svc: deps.Service, exports: deps.Exports, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	_ = r.SetTrustedProxies(nil)
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  deps.CORSOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/debug/vars", gin.WrapH(expvar.Handler()))

	api := r.Group("/api/v1")
	s.registerInventory(api)
	s.registerTransactions(api)
	s.registerSessions(api)
	s.registerMaintenance(api)
	s.registerReports(api)
	return r
}

func requestLogger(logger core.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// respond writes payload under key and attaches non-blocking rule findings.
func respond(c *gin.Context, status int, key string, payload any, res domain.Result) {
	body := gin.H{key: payload}
	if len(res.Violations) > 0 {
		body["warnings"] = res.Violations
	}
	c.JSON(status, body)
}
