package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"finboard/src/interfaces"
	"finboard/src/logger"
	"finboard/src/models"
	"finboard/src/proxy"
	"finboard/src/realtime"
	"finboard/src/schema"
	"finboard/src/transform"
	"finboard/src/utils"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// DashboardServer
// -----------------------------------------------------------------------------

type DashboardServer struct {
	Config  *models.MConfig
	Logger  *logger.Logger
	Manager *realtime.ConnectionManager
	DB      interfaces.IDatabase

	engine      *gin.Engine
	proxy       *proxy.Handler
	inferencer  *schema.Inferencer
	transformer *transform.Transformer
	scheduler   *utils.MarketScheduler

	// Widget sessions keyed by widget id
	sessions  map[string]*realtime.RealtimeSession
	sessionMu sync.RWMutex

	// WebSocket clients
	clients     map[*Client]struct{}
	clientTally atomic.Int64
	broadcast   chan *models.MPushMessage // Buffered Queue
	register    chan *Client
	unregister  chan *Client
}

var _ interfaces.IDataExchanger = (*DashboardServer)(nil)

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewDashboardServer(cfg *models.MConfig, mgr *realtime.ConnectionManager,
	db interfaces.IDatabase, log *logger.Logger) *DashboardServer {

	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	var symbols []string
	for _, w := range cfg.Widgets {
		symbols = append(symbols, realtime.ResolveSymbols(w)...)
	}

	s := &DashboardServer{
		Config:      cfg,
		Logger:      log,
		Manager:     mgr,
		DB:          db,
		engine:      gin.Default(),
		proxy:       proxy.NewHandler(cfg.Proxy, log.Named("Proxy")),
		inferencer:  schema.NewInferencer(log.Named("Inferencer")),
		transformer: transform.NewTransformer(log.Named("Transformer")),
		scheduler:   utils.NewMarketScheduler(symbols, log),
		sessions:    make(map[string]*realtime.RealtimeSession),
		clients:     make(map[*Client]struct{}),
		// Buffered channel to prevent lock/blocking during bar bursts
		broadcast:  make(chan *models.MPushMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, X-Api-Key, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// setup web routes
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *DashboardServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/config", s.getConfig)
	s.engine.GET("/api/proxy", s.proxy.Forward)

	// Dataset normalization pipeline
	s.engine.POST("/api/datasets", s.postDataset)

	// Provider control surface
	s.engine.GET("/api/providers", s.getProviders)
	s.engine.POST("/api/providers/:provider/reconnect", s.postProviderReconnect)
	s.engine.POST("/api/providers/:provider/reset", s.postProviderReset)
	s.engine.POST("/api/providers/disconnect", s.postDisconnectAll)

	// Widget sessions
	s.engine.GET("/api/widgets", s.getWidgets)
	s.engine.GET("/api/widgets/:id/bars", s.getWidgetBars)
	s.engine.GET("/api/widgets/:id/stats", s.getWidgetStats)
	s.engine.POST("/api/widgets/:id/retry", s.postWidgetRetry)

	// Dashboard layout persistence
	s.engine.GET("/api/dashboards", s.getDashboards)
	s.engine.GET("/api/dashboards/:id", s.getDashboard)
	s.engine.PUT("/api/dashboards/:id", s.putDashboard)
	s.engine.DELETE("/api/dashboards/:id", s.deleteDashboard)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

// StartSessions creates and starts one realtime session per configured
// widget. Failed sessions stay registered so their error state is queryable.
func (s *DashboardServer) StartSessions() {
	for _, w := range s.Config.Widgets {
		if w.Provider == "" {
			continue
		}
		session := realtime.NewRealtimeSession(w, s.Manager, s.Config.Realtime,
			s.Push, s.Logger.Named("Session"))

		s.sessionMu.Lock()
		s.sessions[w.ID] = session
		s.sessionMu.Unlock()

		if err := session.Start(); err != nil {
			s.Logger.Error("Widget %s failed to start: %v", w.ID, err)
		}
	}
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	go s.handleWebsockets()
	s.StartSessions()

	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) Stop() error {
	s.sessionMu.Lock()
	sessions := make([]*realtime.RealtimeSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessionMu.Unlock()

	for _, sess := range sessions {
		sess.Stop()
	}
	s.Manager.DisconnectAll()

	close(s.broadcast)
	return nil
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *DashboardServer) getHealth(c *gin.Context) {
	s.sessionMu.RLock()
	sessionCount := len(s.sessions)
	s.sessionMu.RUnlock()

	c.JSON(200, gin.H{
		"status":      "ok",
		"connections": s.clientCount(),
		"sessions":    sessionCount,
		"market_open": s.scheduler.AnyMarketOpen(),
	})
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) getConfig(c *gin.Context) {
	// Tokens never leave the process.
	providers := make([]gin.H, 0, len(s.Config.Providers))
	for _, p := range s.Config.Providers {
		providers = append(providers, gin.H{"name": p.Name, "url": p.URL})
	}

	c.JSON(200, gin.H{
		"name":      s.Config.Name,
		"providers": providers,
		"widgets":   s.Config.Widgets,
	})
}

// -----------------------------------------------------------------------------

// postDataset runs the full normalization pipeline on an arbitrary JSON
// payload: infer schema, classify structure, generate the field mapping, then
// transform into a canonical dataset. Failures come back as a structured
// result, never a 500.
func (s *DashboardServer) postDataset(c *gin.Context) {
	var body struct {
		Title  string          `json:"title"`
		Source string          `json:"source"`
		Data   json.RawMessage `json:"data"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	var raw interface{}
	if err := json.Unmarshal(body.Data, &raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "data is not valid JSON: " + err.Error()})
		return
	}

	sch := s.inferencer.Infer(raw)
	cls := schema.Classify(raw, sch)
	mapping := schema.GenerateMapping(raw, cls)
	result := s.transformer.Transform(raw, mapping, cls, body.Title, body.Source)

	// Connected dashboard clients see new datasets without polling.
	if result.Success {
		s.Broadcast(result.Dataset)
	}

	c.JSON(200, result)
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) getProviders(c *gin.Context) {
	out := make([]gin.H, 0, len(s.Config.Providers))
	for _, p := range s.Config.Providers {
		entry := gin.H{
			"name":      p.Name,
			"connected": s.Manager.IsConnected(p.Name),
			"symbols":   s.Manager.GetSubscribedSymbols(p.Name),
		}
		if err := s.Manager.LastError(p.Name); err != nil {
			entry["last_error"] = err.Error()
		}
		out = append(out, entry)
	}
	c.JSON(200, out)
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) postProviderReconnect(c *gin.Context) {
	name := c.Param("provider")
	s.Manager.ForceReconnect(name)
	c.JSON(200, gin.H{"status": "reconnecting", "provider": name})
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) postProviderReset(c *gin.Context) {
	name := c.Param("provider")
	s.Manager.ResetReconnectAttempts(name)
	c.JSON(200, gin.H{"status": "reset", "provider": name})
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) postDisconnectAll(c *gin.Context) {
	s.Manager.DisconnectAll()
	c.JSON(200, gin.H{"status": "disconnected"})
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) getWidgets(c *gin.Context) {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()

	out := make([]gin.H, 0, len(s.sessions))
	for id, sess := range s.sessions {
		entry := gin.H{
			"id":      id,
			"symbols": sess.Symbols(),
			"state":   sess.State(),
		}
		if err := sess.LastError(); err != nil {
			entry["error"] = err.Error()
		}
		out = append(out, entry)
	}
	c.JSON(200, out)
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) getWidgetBars(c *gin.Context) {
	sess := s.session(c.Param("id"))
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown widget"})
		return
	}

	symbol := c.Query("symbol")
	if symbol == "" {
		symbols := sess.Symbols()
		if len(symbols) > 0 {
			symbol = symbols[0]
		}
	}

	c.JSON(200, gin.H{
		"widget_id": c.Param("id"),
		"symbol":    symbol,
		"bars":      sess.Bars(symbol),
	})
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) getWidgetStats(c *gin.Context) {
	sess := s.session(c.Param("id"))
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown widget"})
		return
	}
	c.JSON(200, sess.Stats())
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) postWidgetRetry(c *gin.Context) {
	sess := s.session(c.Param("id"))
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown widget"})
		return
	}
	sess.Retry()
	c.JSON(200, gin.H{"status": "retrying", "state": sess.State()})
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) getDashboards(c *gin.Context) {
	dashboards, err := s.DB.ListDashboards()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if dashboards == nil {
		dashboards = []models.MDashboard{}
	}
	c.JSON(200, dashboards)
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) getDashboard(c *gin.Context) {
	dash, err := s.DB.GetDashboard(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if dash == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown dashboard"})
		return
	}
	c.JSON(200, dash)
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) putDashboard(c *gin.Context) {
	var dash models.MDashboard
	if err := c.ShouldBindJSON(&dash); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dashboard: " + err.Error()})
		return
	}

	dash.ID = c.Param("id")
	dash.UpdatedAt = time.Now().UTC()
	if err := s.DB.SaveDashboard(dash); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, dash)
}

// -----------------------------------------------------------------------------

func (s *DashboardServer) deleteDashboard(c *gin.Context) {
	if err := s.DB.DeleteDashboard(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(200, gin.H{"status": "deleted"})
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (s *DashboardServer) session(id string) *realtime.RealtimeSession {
	s.sessionMu.RLock()
	defer s.sessionMu.RUnlock()
	return s.sessions[id]
}
