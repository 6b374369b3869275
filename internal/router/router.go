package router

import (
	"context"
	"net/http"
	"time"

	"cryptopulse/config"
	"cryptopulse/internal/handler"
	"cryptopulse/internal/middleware"
	"cryptopulse/internal/scheduler"
	"cryptopulse/internal/service"
	"cryptopulse/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Services are built once in main and shared with the scheduler.
type Services struct {
	DB     *gorm.DB
	Rules  *service.RuleService
	Logs   *service.DeliveryLogService
	Prices *service.PriceService
	Push   *service.PushService
	Hub    *ws.Hub

	Accounts  *service.AccountService
	Favorites *service.FavoriteService

	Dispatcher *scheduler.Dispatcher // optional, reported on /healthz
}

func Setup(cfg *config.Config, svc Services, limiter *middleware.IPRateLimiter, log zerolog.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log.With().Str("component", "http").Logger()))
	if limiter != nil {
		r.Use(middleware.RateLimit(limiter))
	}

	ruleHandler := handler.NewRuleHandler(svc.Rules)
	logHandler := handler.NewLogHandler(svc.Logs)
	coinHandler := handler.NewCoinHandler(svc.Prices)
	pushHandler := handler.NewPushTokenHandler(svc.Push)
	authHandler := handler.NewAuthHandler(svc.Accounts)
	favoriteHandler := handler.NewFavoriteHandler(svc.Favorites)

	r.GET("/healthz", health(svc))
	r.GET("/ws/logs", ws.ServeLogs(&cfg.JWT, svc.Hub))

	api := r.Group("/api/v1")
	{
		api.GET("/coins", coinHandler.List)
		api.POST("/auth/signup", authHandler.SignUp)
		api.POST("/auth/signin", authHandler.SignIn)

		me := api.Group("/me")
		me.Use(middleware.AuthRequired(&cfg.JWT))
		{
			me.POST("/rules", ruleHandler.Create)
			me.GET("/rules", ruleHandler.List)
			me.PATCH("/rules/:id", ruleHandler.Update)
			me.POST("/rules/:id/toggle", ruleHandler.Toggle)
			me.DELETE("/rules/:id", ruleHandler.Delete)

			me.GET("/coins/:coin_id/rule", ruleHandler.Check)
			me.PATCH("/coins/:coin_id/rule", ruleHandler.UpdateByCoin)
			me.DELETE("/coins/:coin_id/rule", ruleHandler.DeleteByCoin)

			me.GET("/logs", logHandler.List)
			me.GET("/logs/stats", logHandler.Stats)
			me.DELETE("/logs/:id", logHandler.Delete)

			me.PUT("/push-token", pushHandler.Put)

			me.GET("/profile", authHandler.Profile)
			me.PUT("/profile", authHandler.UpdateProfile)
			me.DELETE("/account", authHandler.DeleteAccount)

			me.GET("/favorites", favoriteHandler.List)
			me.POST("/favorites/:coin_id", favoriteHandler.Add)
			me.GET("/favorites/:coin_id", favoriteHandler.Check)
			me.DELETE("/favorites/:coin_id", favoriteHandler.Remove)
		}
	}
	return r
}

func health(svc Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := svc.DB.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
			return
		}
		out := gin.H{"status": "ok", "ws_clients": svc.Hub.ClientCount()}
		if d := svc.Dispatcher; d != nil {
			out["dispatch"] = gin.H{"in_flight": d.InFlight(), "queued": d.Queued(), "processed": d.Processed()}
		}
		if at, ok, err := svc.Prices.LastRefresh(c.Request.Context()); err == nil && ok {
			out["prices_refreshed_at"] = at
		}
		c.JSON(http.StatusOK, out)
	}
}
