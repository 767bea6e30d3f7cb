package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mkrasov/huddle/internal/adapters/rtc"
	"github.com/mkrasov/huddle/internal/adapters/signal"
	"github.com/mkrasov/huddle/internal/app"
	"github.com/mkrasov/huddle/internal/bridge"
	"github.com/mkrasov/huddle/internal/config"
)

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

func SetupRouter(ctx context.Context, cfg *config.Config, hub *app.Hub, bm *bridge.Manager) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.ClientOrigin},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("HuddleSession", store))
	r.Use(ClientTokenMiddleware())

	ctl := signal.NewController(hub, cfg.ReadLimit, cfg.WriteTimeout)
	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleWS(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("origin", cfg.ClientOrigin).Msg("router setup")

	api := r.Group("/api")

	api.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": hub.Router.ConnCount(),
			"online":      hub.Presence.Online(),
		})
	})

	api.GET("/rtc/config", func(c *gin.Context) {
		c.JSON(http.StatusOK, rtc.ClientConfig(cfg.STUNServers))
	})

	if bm != nil {
		api.GET("/bridge/state", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"state": bm.State()})
		})

		api.POST("/bridge/send", func(c *gin.Context) {
			var req struct {
				To   string `json:"to"`
				Body string `json:"body"`
			}
			if err := c.BindJSON(&req); err != nil || req.To == "" || req.Body == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "to and body required"})
				return
			}
			id, err := bm.SendText(c.Request.Context(), req.To, req.Body)
			if err != nil {
				status := http.StatusBadGateway
				if err == bridge.ErrNotReady {
					status = http.StatusConflict
				}
				c.JSON(status, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"id": id})
		})
	}

	return r
}
