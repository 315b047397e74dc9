package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glimpse-social/glimpse/pkg/database"
	"github.com/glimpse-social/glimpse/pkg/presence"
)

var (
	errorLog *log.Logger
	debugLog *log.Logger
)

// Server is the Glimpse HTTP server: the REST API, the live /ws endpoint
// and the presence subsystem behind it.
type Server struct {
	db      *database.DB
	config  TOMLConfig
	auth    *Auth
	hub     *presence.Hub
	router  *presence.Router
	metrics *Metrics

	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	startTime  time.Time
	mu         sync.Mutex
}

// NewServer creates a new server instance
func NewServer(dbPath string, config TOMLConfig) (*Server, error) {
	db, err := database.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Loggers may already be installed (tests set discard loggers up front)
	if errorLog == nil {
		if err := initLoggers(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize loggers: %w", err)
		}
	}
	presence.SetLoggers(errorLog, debugLog)

	metrics := NewMetrics()

	registry := presence.NewRegistry()
	hub := presence.NewHub(registry)
	hub.SetMetrics(metrics)
	router := presence.NewRouter(registry)
	router.SetMetrics(metrics)

	s := &Server{
		db:        db,
		config:    config,
		auth:      NewAuth(config.Auth),
		hub:       hub,
		router:    router,
		metrics:   metrics,
		startTime: time.Now(),
	}

	gin.SetMode(gin.ReleaseMode)
	s.engine = s.buildEngine()

	return s, nil
}

// getServerDataDir returns the server data directory, creating it if needed
func getServerDataDir() (string, error) {
	var dataDir string
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		dataDir = filepath.Join(xdg, "glimpse")
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share", "glimpse")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}

// initLoggers sets up error and debug loggers
func initLoggers() error {
	dataDir, err := getServerDataDir()
	if err != nil {
		return err
	}

	// Error log goes to stderr and errors.log
	errorLogPath := filepath.Join(dataDir, "errors.log")
	errorFile, err := os.OpenFile(errorLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}

	// Startup marker to distinguish between runs
	startupMsg := fmt.Sprintf("=== Server started at %s ===\n", time.Now().Format(time.RFC3339))
	if _, err := errorFile.WriteString(startupMsg); err != nil {
		return err
	}

	errorLog = log.New(io.MultiWriter(os.Stderr, errorFile), "ERROR: ", log.LstdFlags)

	// Debug log goes to /dev/null by default (can be enabled via EnableDebugLogging)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)

	return nil
}

// EnableDebugLogging enables debug logging to debug.log
func (s *Server) EnableDebugLogging() {
	dataDir, err := getServerDataDir()
	if err != nil {
		log.Printf("Failed to get data directory: %v", err)
		return
	}

	debugLogPath := filepath.Join(dataDir, "debug.log")
	debugLogFile, err := os.OpenFile(debugLogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		log.Printf("Failed to open debug.log: %v", err)
		return
	}

	debugLog = log.New(debugLogFile, "DEBUG: ", log.LstdFlags)
	debugLog.Println("Debug logging enabled")
	presence.SetLoggers(errorLog, debugLog)
}

// buildEngine wires all routes onto a gin engine
func (s *Server) buildEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), s.metricsMiddleware())

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Live connection endpoint. Auth happens at the API layer; the ws
	// handshake identifies the user by the userId query parameter.
	engine.GET("/ws", gin.WrapF(s.hub.HandleWebSocket))

	api := engine.Group("/api/v1")

	user := api.Group("/user")
	{
		user.POST("/register", s.handleRegister)
		user.POST("/login", s.handleLogin)
		user.GET("/logout", s.handleLogout)

		authed := user.Group("", s.auth.Middleware())
		authed.GET("/:id/profile", s.handleProfile)
		authed.POST("/profile/edit", s.handleEditProfile)
		authed.GET("/suggestedusers", s.handleSuggestedUsers)
		authed.POST("/followOrUnfollow/:id", s.handleFollowOrUnfollow)
		authed.GET("/search", s.handleSearchUsers)
	}

	post := api.Group("/post", s.auth.Middleware())
	{
		post.POST("/addpost", s.handleAddPost)
		post.GET("/getallpost", s.handleFeed)
		post.GET("/getallpostexplore", s.handleExplore)
		post.GET("/userpost/all", s.handleUserPosts)
		post.GET("/:id/like", s.handleLikePost)
		post.GET("/:id/dislike", s.handleDislikePost)
		post.POST("/:id/comment", s.handleAddComment)
		post.POST("/:id/comment/all", s.handleListComments)
		post.DELETE("/delete/:id", s.handleDeletePost)
		post.GET("/:id/bookmarks", s.handleBookmarkPost)
	}

	message := api.Group("/message", s.auth.Middleware())
	{
		message.POST("/send/:id", s.handleSendMessage)
		message.GET("/all/:id", s.handleListMessages)
	}

	return engine
}

// metricsMiddleware records request counts and latency per route
func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.HTTPRequests.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(c.Writer.Status()),
		).Inc()
		s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the HTTP handler (used by tests to serve on an
// ephemeral listener).
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the presence hub.
func (s *Server) Hub() *presence.Hub {
	return s.hub
}

// Start begins serving HTTP on the configured port
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Server.HTTPPort)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()

	log.Printf("HTTP server listening on %s (/api/v1, /ws, /healthz, /metrics)", addr)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errorLog.Printf("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	log.Println("Graceful shutdown initiated...")

	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("HTTP shutdown error: %v", err)
		}
	}

	if err := s.db.Close(); err != nil {
		log.Printf("Error during database close: %v", err)
		return err
	}

	log.Println("Graceful shutdown complete")
	return nil
}

// handleHealth reports server liveness and the current online count
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"online":  s.hub.Registry().Count(),
		"uptime":  time.Since(s.startTime).Round(time.Second).String(),
		"success": true,
	})
}
