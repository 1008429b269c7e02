package router

import (
	"net/http"
	"time"

	"github.com/blues/rvs/internal/auth"
	"github.com/blues/rvs/internal/config"
	"github.com/blues/rvs/internal/handler"
	"github.com/blues/rvs/internal/logger"
	"github.com/blues/rvs/internal/logic"
	"github.com/gin-gonic/gin"
)

func Setup(cfg *config.Config, vaultLogic *logic.VaultLogic, accountLogic *logic.AccountLogic, eventLogic *logic.EventLogic) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(requestLogger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "raffle-vault-service",
		})
	})

	identity := auth.NewVerifier(cfg.Auth).Middleware()

	// API版本组
	v1 := r.Group("/api/v1")
	{
		// 金库相关路由
		vaultHandler := handler.NewVaultHandler(vaultLogic, eventLogic)
		vaults := v1.Group("/vaults")
		{
			vaults.GET("", vaultHandler.GetVaults)
			vaults.GET("/:address", vaultHandler.GetVault)
			vaults.GET("/:address/events", vaultHandler.GetVaultEvents)

			vaults.POST("", identity, vaultHandler.Initialize)
			vaults.POST("/:address/tickets", identity, vaultHandler.BuyTicket)
			vaults.DELETE("/:address/tickets", identity, vaultHandler.RefundTicket)
			vaults.POST("/:address/finalize", identity, vaultHandler.FinalizePayout)
			vaults.POST("/:address/claim", identity, vaultHandler.ClaimPrize)
			vaults.DELETE("/:address", identity, vaultHandler.Cancel)
		}
		v1.GET("/authorities/:authority/vault", vaultHandler.GetVaultByAuthority)

		// 托管账户相关路由
		accountHandler := handler.NewAccountHandler(accountLogic)
		accounts := v1.Group("/accounts")
		{
			accounts.GET("/:address", accountHandler.GetAccount)
			// 开发环境水龙头，由 custody.allow_deposit 控制，只能给自己入金
			accounts.POST("/:address/deposit", identity, accountHandler.Deposit)
		}
	}

	return r
}

// CORS中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, "+
			auth.HeaderAddress+", "+auth.HeaderTimestamp+", "+auth.HeaderSignature)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// 请求日志中间件
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
