package api

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/bootcforge/bootcforge/internal/auth"
	"github.com/bootcforge/bootcforge/internal/build"
	"github.com/bootcforge/bootcforge/internal/journal"
	"github.com/bootcforge/bootcforge/internal/metrics"
	"github.com/bootcforge/bootcforge/internal/podman"
	"github.com/bootcforge/bootcforge/pkg/types"
)

// Builder runs and deletes builds. *build.Orchestrator implements it.
type Builder interface {
	Build(ctx context.Context, req types.BuildRequest) (*build.Result, error)
	DeleteBuilds(ctx context.Context, records []types.BuildRecord) error
}

// HistoryStore is the read side of the build ledger.
type HistoryStore interface {
	All() []types.BuildRecord
	LastFolder() string
	GenerateUniqueBuildID(name string) string
}

// Images manages bootc images on an engine. *build.Lifecycle implements it.
type Images interface {
	Pull(ctx context.Context, engineID, image string) error
	ListBootcImages(ctx context.Context, engineID string) ([]podman.ImageEntry, error)
	DeleteSuperseded(ctx context.Context, engineID, currentImage string) ([]string, error)
	InspectManifest(ctx context.Context, engineID, ref string) (*podman.Manifest, error)
}

// PrereqStatuser reports whether the host can build.
type PrereqStatuser interface {
	Status(ctx context.Context) types.PrereqStatus
}

// Subscriber notifies about history file changes.
type Subscriber interface {
	Subscribe() (<-chan struct{}, func())
}

// VMManager boots built raw disks.
type VMManager interface {
	CheckLaunch(folder, arch string) error
	Launch(ctx context.Context, folder, arch string) (*types.VMLaunchResult, error)
	Stop(ctx context.Context) error
}

// Exporter archives built raw disks.
type Exporter interface {
	Export(ctx context.Context, req types.ExportRequest) (*types.ExportResult, error)
}

// EventLog serves the recorded events of a build.
type EventLog interface {
	BuildEvents(buildID string) ([]journal.Event, error)
}

// Server holds the API server dependencies.
type Server struct {
	echo          *echo.Echo
	builder       Builder
	history       HistoryStore
	images        Images
	tracker       *Tracker
	defaultEngine string

	prereqs     PrereqStatuser
	notifier    Subscriber
	vms         VMManager
	consoleAddr string
	exporter    Exporter
	events      EventLog
}

// requestValidator adapts validator to echo.
type requestValidator struct {
	v *validator.Validate
}

func (r *requestValidator) Validate(i interface{}) error {
	return r.v.Struct(i)
}

// NewServer creates a new API server with all routes configured. Optional
// features are enabled with the Set methods.
func NewServer(builder Builder, hist HistoryStore, images Images, tracker *Tracker, apiKey string) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New()}
	e.HTTPErrorHandler = httpErrorHandler

	s := &Server{
		echo:          e,
		builder:       builder,
		history:       hist,
		images:        images,
		tracker:       tracker,
		defaultEngine: podman.DefaultEngine,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(metrics.EchoMiddleware())

	// Health and metrics (no auth)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	api := e.Group("/api")
	api.Use(auth.APIKeyMiddleware(apiKey))

	api.GET("/prereqs", s.checkPrereqs)

	// Builds
	api.POST("/builds", s.createBuild)
	api.GET("/builds/progress", s.listProgress)
	api.GET("/builds/:id/events", s.buildEvents)
	api.DELETE("/builds/:id", s.cancelBuild)

	// History
	api.GET("/history", s.listHistory)
	api.DELETE("/history", s.deleteHistory)
	api.GET("/history/last-folder", s.lastFolder)
	api.GET("/history/unique-id", s.uniqueID)
	api.GET("/history/watch", s.watchHistory)

	// Images
	api.GET("/images", s.listImages)
	api.POST("/images/pull", s.pullImage)
	api.POST("/images/prune", s.pruneImages)
	api.GET("/images/manifest", s.inspectManifest)

	// VM
	api.POST("/vm/launch", s.launchVM)
	api.POST("/vm/stop", s.stopVM)
	api.GET("/vm/console", s.vmConsole)

	api.POST("/exports", s.createExport)

	return s
}

// SetDefaultEngine sets the engine used when a request names none.
func (s *Server) SetDefaultEngine(engineID string) {
	if engineID != "" {
		s.defaultEngine = engineID
	}
}

// SetPrereqChecker enables host prerequisite checks.
func (s *Server) SetPrereqChecker(p PrereqStatuser) {
	s.prereqs = p
}

// SetNotifier enables history change pushes on the watch websocket.
func (s *Server) SetNotifier(n Subscriber) {
	s.notifier = n
}

// SetVMDeps enables the VM routes. consoleAddr is the host:port of the VM
// serial console websocket.
func (s *Server) SetVMDeps(vms VMManager, consoleAddr string) {
	s.vms = vms
	s.consoleAddr = consoleAddr
}

// SetExporter enables disk exports.
func (s *Server) SetExporter(e Exporter) {
	s.exporter = e
}

// SetEventLog enables the build events route.
func (s *Server) SetEventLog(l EventLog) {
	s.events = l
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) engineID(requested string) string {
	if requested != "" {
		return requested
	}
	return s.defaultEngine
}
