package http

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatsync/internal/adapters/signal"
	"github.com/dkeye/chatsync/internal/app/orch"
	"github.com/dkeye/chatsync/internal/config"
	"github.com/dkeye/chatsync/internal/domain"
	"github.com/dkeye/chatsync/internal/metrics"
	transport "github.com/dkeye/chatsync/internal/transport/http"
)

// Deps is everything the router wires to routes.
type Deps struct {
	Chat     transport.ChatService
	Signal   *signal.SignalWSController
	Rooms    *orch.Orchestrator
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Ping     func(context.Context) error
}

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// MetricsMiddleware records request count and latency per route.
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(MetricsMiddleware(deps.Metrics))

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ChatSyncSessions", store))
	r.Use(ClientTokenMiddleware())

	if _, err := os.Stat(cfg.StaticPath); err == nil {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	r.GET("/healthz", transport.Health(deps.Ping))
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	chats := transport.NewChatHandler(deps.Chat)
	chats.Register(r)
	api := r.Group("/api")
	chats.Register(api)

	ws := func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("ct", c.GetString("client_token")).Msg("ws endpoint hit")
		deps.Signal.HandleSignal(ctx, c)
	}
	r.GET("/ws", ws)
	api.GET("/ws", ws)

	if deps.Rooms != nil {
		// GET /api/rooms: live rooms
		api.GET("/rooms", func(c *gin.Context) {
			c.JSON(http.StatusOK, deps.Rooms.ListRooms())
		})
		// GET /api/rooms/:chatId/members
		api.GET("/rooms/:chatId/members", func(c *gin.Context) {
			members, ok := deps.Rooms.Members(domain.ChatID(c.Param("chatId")))
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"chatId": c.Param("chatId"), "members": members, "count": len(members)})
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
