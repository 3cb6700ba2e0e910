// Package server exposes the UI command contract over HTTP and the event
// stream over a websocket.
package server

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pylaunch/pylaunch/internal/app"
	"github.com/pylaunch/pylaunch/internal/metrics"
	"github.com/pylaunch/pylaunch/internal/pathutil"
	"github.com/pylaunch/pylaunch/internal/pyruntime"
	"github.com/pylaunch/pylaunch/internal/supervisor"
)

// Router provides the embeddable HTTP handler for the desktop UI.
type Router struct {
	app *app.App
}

func NewRouter(a *app.App) *Router { return &Router{app: a} }

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	api := g.Group("/api/v1")

	api.GET("/runtimes", r.handleListRuntimes)
	api.POST("/runtimes/scan", r.handleScan)
	api.POST("/runtimes/download", r.handleDownload)
	api.DELETE("/runtimes/:version", r.handleDeleteRuntime)
	api.POST("/runtimes/:version/repair", r.handleRepairRuntime)

	api.POST("/projects/validate", r.handleValidateProject)
	api.PUT("/projects/preference", r.handleSetPreference)

	api.POST("/env/install", r.handleInstall)
	api.POST("/env/check", r.handleCheck)
	api.GET("/env/info", r.handleEnvInfo)
	api.DELETE("/env", r.handleCleanEnv)

	api.POST("/server/start", r.handleStart)
	api.POST("/server/stop", r.handleStop)
	api.GET("/server/status", r.handleStatus)
	api.GET("/sessions", r.handleSessions)
	api.GET("/sessions/:id/log", r.handleSessionLog)

	api.GET("/events", r.handleEvents)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, a *app.App) *http.Server {
	r := NewRouter(a)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// statusFor maps the error taxonomy onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pathutil.ErrInvalidPath),
		errors.Is(err, pyruntime.ErrUnsupportedVersion),
		errors.Is(err, app.ErrNoRuntime):
		return http.StatusBadRequest
	case errors.Is(err, pyruntime.ErrAlreadyInstalled),
		errors.Is(err, supervisor.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, pyruntime.ErrNotInstalled),
		errors.Is(err, supervisor.ErrServerNotInstalled),
		errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), errorResp{Error: err.Error()})
}

func (r *Router) handleListRuntimes(c *gin.Context) {
	c.JSON(http.StatusOK, r.app.Reg.Snapshot())
}

func (r *Router) handleScan(c *gin.Context) {
	c.JSON(http.StatusOK, r.app.ScanSystemRuntimes(c.Request.Context()))
}

type downloadReq struct {
	Version string `json:"version" binding:"required"`
}

// handleDownload kicks the install off in the background; progress and
// completion arrive on the event stream.
func (r *Router) handleDownload(c *gin.Context) {
	var req downloadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if _, ok := r.app.Prov.Table().Lookup(req.Version); !ok {
		fail(c, pyruntime.ErrUnsupportedVersion)
		return
	}
	go func() {
		// Background context: there is no mid-download cancellation
		// contract; a started download runs to completion or failure.
		_, _ = r.app.DownloadRuntime(contextWithoutCancel(c), req.Version)
	}()
	c.JSON(http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleDeleteRuntime(c *gin.Context) {
	if err := r.app.Prov.Remove(c.Param("version")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleRepairRuntime(c *gin.Context) {
	if err := r.app.Prov.Repair(c.Request.Context(), c.Param("version")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

// handleValidateProject backs the UI's folder picker: the shell shows a
// native directory dialog, then confirms the chosen path here before
// enabling project actions.
func (r *Router) handleValidateProject(c *gin.Context) {
	var req projectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	path, id, err := r.app.ValidateProject(req.Path)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path, "projectId": id})
}

type preferenceReq struct {
	Path    string `json:"path" binding:"required"`
	Version string `json:"version" binding:"required"`
}

func (r *Router) handleSetPreference(c *gin.Context) {
	var req preferenceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.app.SetProjectRuntime(req.Path, req.Version); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

type projectReq struct {
	Path    string `json:"path" binding:"required"`
	Version string `json:"version"`
}

func (r *Router) handleInstall(c *gin.Context) {
	var req projectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.app.InstallDependencies(c.Request.Context(), req.Path, req.Version); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleCheck(c *gin.Context) {
	var req projectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	ok, err := r.app.CheckDependencies(req.Path, req.Version)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"installed": ok})
}

func (r *Router) handleEnvInfo(c *gin.Context) {
	root, exists, err := r.app.EnvironmentInfo(c.Query("path"), c.Query("version"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rootDir": root, "exists": exists})
}

func (r *Router) handleCleanEnv(c *gin.Context) {
	if err := r.app.CleanEnvironment(c.Query("path")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

type startReq struct {
	Path    string `json:"path" binding:"required"`
	Version string `json:"version"`
	Mode    string `json:"mode"`
}

func (r *Router) handleStart(c *gin.Context) {
	var req startReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	mode := supervisor.ModeNative
	if req.Mode == string(supervisor.ModeContainerized) {
		mode = supervisor.ModeContainerized
	}
	if err := r.app.StartServer(contextWithoutCancel(c), mode, req.Path, req.Version); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r.app.ServerStatus())
}

func (r *Router) handleStop(c *gin.Context) {
	if err := r.app.StopServer(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.app.ServerStatus())
}

func (r *Router) handleSessions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	recs, err := r.app.Sessions(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, recs)
}

func (r *Router) handleSessionLog(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResp{Error: "invalid session id"})
		return
	}
	b, err := r.app.SessionLog(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", b)
}

// contextWithoutCancel detaches long-running work from the request: started
// downloads and server sessions outlive the HTTP call that triggered them.
func contextWithoutCancel(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}
