package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicechat/internal/adapters/signal"
	"github.com/dkeye/voicechat/internal/app/orch"
	"github.com/dkeye/voicechat/internal/auth"
	"github.com/dkeye/voicechat/internal/config"
	"github.com/dkeye/voicechat/internal/domain"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware tags every browser with a stable id for request logs.
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

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, verifier signal.IdentityVerifier) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("VoiceSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": o.Registry.Len()})
	})

	limiter := signal.NewRoomRateLimiter(cfg.RateLimit.Messages, cfg.RateLimit.Interval)
	ctrl := signal.NewSignalWSController(o, verifier, limiter, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	})
	api := r.Group("/api")

	api.POST("/session", sessionHandler(verifier))

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	query := api.Group("", RequireIdentity(verifier))
	query.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Rooms.List())
	})
	query.GET("/rooms/:id/members", func(c *gin.Context) {
		members, err := o.RoomMembers(viewer(c), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, members)
	})
	query.GET("/voice/:id/members", func(c *gin.Context) {
		peers, err := o.VoiceMembers(viewer(c), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, peers)
	})
	query.GET("/presence/:user", presenceHandler(o))

	return r
}

const identityKey = "identity"

// RequireIdentity verifies the same credential the signaling handshake
// accepts and stores the identity on the context.
func RequireIdentity(verifier signal.IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, err := verifier.Verify(c.Request.Context(), signal.Credential(c))
		if err != nil {
			reason, ok := auth.Reason(err)
			if !ok {
				log.Error().Err(err).Str("module", "adapters.http").Msg("identity verification unavailable")
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "identity verification unavailable"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": reason})
			return
		}
		c.Set(identityKey, ident)
		c.Next()
	}
}

func viewer(c *gin.Context) domain.UserID {
	ident, _ := c.MustGet(identityKey).(domain.Identity)
	return ident.UserID
}

type sessionRequest struct {
	Token string `json:"token" binding:"required"`
}

// sessionHandler stores a verified credential in the cookie session so that
// browser WebSocket handshakes can authenticate without custom headers.
func sessionHandler(verifier signal.IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ident, err := verifier.Verify(c.Request.Context(), req.Token)
		if err != nil {
			reason, ok := auth.Reason(err)
			if !ok {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "identity verification unavailable"})
				return
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": reason})
			return
		}

		sess := sessions.Default(c)
		sess.Set(signal.SessionTokenKey, req.Token)
		if err := sess.Save(); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session save failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"userId":      ident.UserID,
			"displayName": ident.DisplayName,
			"role":        ident.Role,
		})
	}
}

func presenceHandler(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := o.Presence(c.Param("user"))
		c.JSON(http.StatusOK, p)
	}
}
