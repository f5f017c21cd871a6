package httpapi

import (
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/gin-gonic/gin"

	"equiploan/internal/adapters/export"
	"equiploan/pkg/domain"
)

func (s *Server) registerMaintenance(api *gin.RouterGroup) {
	api.GET("/maintenance", s.listMaintenance)
	api.POST("/maintenance/:id/resolve", s.resolveMaintenance)
}

func (s *Server) registerReports(api *gin.RouterGroup) {
	api.GET("/dashboard", s.dashboard)
	api.GET("/audit", s.auditLogs)
	api.POST("/sweep", s.sweep)
	api.POST("/reset", s.reset)
	api.GET("/reports/overdue-sessions", s.overdueSessions)
	api.GET("/reports/pending-damage", s.pendingDamage)
	if s.exports != nil {
		api.GET("/exports", s.listExports)
		api.POST("/exports", s.createExport)
		api.GET("/exports/:id", s.getExport)
		api.GET("/exports/:id/download", s.downloadExport)
	}
}

func (s *Server) listMaintenance(c *gin.Context) {
	out, err := s.svc.ListMaintenanceLogs(c.Request.Context(), c.Query("item_id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": nonNil(out)})
}

func (s *Server) resolveMaintenance(c *gin.Context) {
	var req resolveRequest
	if !bind(c, &req, false) {
		return
	}
	log, res, err := s.svc.ResolveMaintenance(c.Request.Context(), c.Param("id"), req.FinalCondition)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "item", log, res)
}

func (s *Server) dashboard(c *gin.Context) {
	out, err := s.svc.Dashboard(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": out})
}

func (s *Server) auditLogs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	out, err := s.svc.ListAuditLogs(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": nonNil(out)})
}

func (s *Server) sweep(c *gin.Context) {
	n, res, err := s.svc.SweepOverdue(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "marked", n, res)
}

func (s *Server) reset(c *gin.Context) {
	if err := s.svc.ResetToSeed(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

func (s *Server) overdueSessions(c *gin.Context) {
	out, err := s.svc.OverdueSessions(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": nonNil(out)})
}

func (s *Server) pendingDamage(c *gin.Context) {
	out, err := s.svc.PendingDamage(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": nonNil(out)})
}

func (s *Server) listExports(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": s.exports.List()})
}

func (s *Server) createExport(c *gin.Context) {
	var req exportRequest
	if !bind(c, &req, false) {
		return
	}
	formats := make([]export.Format, 0, len(req.Formats))
	for _, f := range req.Formats {
		formats = append(formats, export.Format(f))
	}
	job, err := s.exports.Enqueue(c.Request.Context(), export.Request{
		Kind:        export.Kind(req.Kind),
		Formats:     formats,
		RequestedBy: c.GetHeader("X-Requested-By"),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"item": job})
}

func (s *Server) getExport(c *gin.Context) {
	job, ok := s.exports.Get(c.Param("id"))
	if !ok {
		s.fail(c, domain.NotFoundError{Entity: "export", ID: c.Param("id")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": job})
}

func (s *Server) downloadExport(c *gin.Context) {
	format, err := export.ParseFormat(c.DefaultQuery("format", string(export.FormatCSV)))
	if err != nil {
		s.fail(c, err)
		return
	}
	artifact, body, err := s.exports.Open(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer body.Close()
	c.Header("Content-Disposition", `attachment; filename="`+path.Base(artifact.Key)+`"`)
	c.Header("Content-Type", artifact.ContentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		s.logger.Warn("export download interrupted", "job", c.Param("id"), "error", err)
	}
}
