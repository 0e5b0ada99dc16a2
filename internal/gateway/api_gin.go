package gateway

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lhdbsbz/chatrelay/internal/llm"
)

const apiPrefix = "/api"

func (s *Server) registerAPIRoutes(engine *gin.Engine) {
	api := engine.Group(apiPrefix)
	api.GET("/stats", s.ginAPIStats)
	api.GET("/jobs", s.ginAPIJobs)
	api.POST("/jobs/:id/run", s.ginAPIJobRun)
	api.DELETE("/jobs/:id", s.ginAPIJobRemove)
}

func (s *Server) ginAPIJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"jobs": s.Cron.List(),
		"runs": s.Cron.Runs(),
	})
}

// ginAPIJobRun executes a job immediately and returns its run record.
func (s *Server) ginAPIJobRun(c *gin.Context) {
	id := c.Param("id")
	if err := s.Cron.RunNow(id); err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	runs := s.Cron.Runs()
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].JobID == id {
			c.JSON(http.StatusOK, runs[i])
			return
		}
	}
	c.Status(http.StatusOK)
}

func (s *Server) ginAPIJobRemove(c *gin.Context) {
	if err := s.Cron.Remove(c.Param("id")); err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ginHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startAt).String(),
		"clients": s.Conns.Count(),
	})
}

func (s *Server) ginAPIStats(c *gin.Context) {
	backend := gin.H{}
	if hc, ok := s.Relay.Answers.(*llm.HTTPClient); ok {
		url, timeout := hc.Endpoint()
		backend["url"] = url
		backend["timeout"] = timeout.String()
	}
	c.JSON(http.StatusOK, gin.H{
		"clients":  s.Conns.Count(),
		"inflight": s.inflight.Load(),
		"uptime":   time.Since(s.startAt).String(),
		"backend":  backend,
		"jobs":     s.Cron.List(),
		"runs":     s.Cron.Runs(),
	})
}

// ginStatic serves the frontend from the configured directory for any route
// not matched above.
func (s *Server) ginStatic() gin.HandlerFunc {
	dir := s.Config.Gateway.StaticDir
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		slog.Warn("static directory not found, frontend disabled", "dir", dir)
	}
	files := http.FileServer(gin.Dir(dir, false))
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		files.ServeHTTP(c.Writer, c.Request)
	}
}
