package server

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/labstack/echo/v4"

	"github.com/loykin/nexus/internal/auth"
	"github.com/loykin/nexus/internal/kernel"
)

// Router exposes a Kernel over HTTP. Endpoints, relative to basePath:
//
//	POST   /processes                 body: {name, priority, memory, allocate}
//	GET    /processes
//	GET    /processes/:pid
//	DELETE /processes/:pid            query: reclaim=true
//	POST   /processes/:pid/memory     body: {size}
//	DELETE /processes/:pid/memory
//	POST   /tick                      query: n=1
//	GET    /scheduler
//	GET    /memory
//	GET    /stats
//	GET    /events                    query: limit=50
//	POST   /login                     body: {username, password}
//	POST   /logout
//	GET    /files                     query: dir=/
//	GET    /files/content             query: path=...
//	POST   /files                     body: {name, content}
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	k           *kernel.Kernel
	basePath    string
	requireAuth bool
	tlsConfig   *tls.Config
	log         *slog.Logger
}

type Option func(*Router)

// WithRequireAuth puts mutating endpoints behind a login session.
func WithRequireAuth(on bool) Option { return func(r *Router) { r.requireAuth = on } }

// WithTLS makes NewServer listen with HTTPS.
func WithTLS(c *tls.Config) Option { return func(r *Router) { r.tlsConfig = c } }

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.log = l
		}
	}
}

func NewRouter(k *kernel.Kernel, basePath string, opts ...Option) *Router {
	r := &Router{k: k, basePath: sanitizeBase(basePath), log: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Router) BasePath() string { return r.basePath }

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	guard := auth.NewMiddleware(r.k.Auth(), r.requireAuth).GinAuth()

	group := g.Group(r.basePath)
	group.GET("/healthz", func(c *gin.Context) { writeJSON(c, http.StatusOK, okResp{OK: true}) })
	group.GET("/processes", r.handleListProcesses)
	group.GET("/processes/:pid", r.handleGetProcess)
	group.GET("/scheduler", r.handleScheduler)
	group.GET("/memory", r.handleMemory)
	group.GET("/stats", r.handleStats)
	group.GET("/events", r.handleEvents)
	group.POST("/login", r.handleLogin)
	group.GET("/files", r.handleListFiles)
	group.GET("/files/content", r.handleReadFile)

	mut := group.Group("", guard)
	mut.POST("/processes", r.handleSpawn)
	mut.DELETE("/processes/:pid", r.handleKill)
	mut.POST("/processes/:pid/memory", r.handleAllocate)
	mut.DELETE("/processes/:pid/memory", r.handleFree)
	mut.POST("/tick", r.handleTick)
	mut.POST("/logout", r.handleLogout)
	mut.POST("/files", r.handleCreateFile)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// With WithTLS the server speaks HTTPS using the given certificates.
func NewServer(addr, basePath string, k *kernel.Kernel, opts ...Option) (*http.Server, error) {
	r := NewRouter(k, basePath, opts...)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		TLSConfig:         r.tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		var err error
		if server.TLSConfig != nil {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			r.log.Error("http server stopped", slog.String("addr", addr), slog.Any("error", err))
		}
	}()
	return server, nil
}

// MountEcho serves the router from an existing echo instance under its base path.
func MountEcho(e *echo.Echo, r *Router) {
	h := echo.WrapHandler(r.Handler())
	base := r.basePath
	if base == "" {
		e.Any("/*", h)
		return
	}
	e.Any(base, h)
	e.Any(base+"/*", h)
}
