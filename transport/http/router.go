package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/talentbridge/trustlayer/internal/obs"
	"github.com/talentbridge/trustlayer/sandbox"
)

// RouterConfig tunes the router
type RouterConfig struct {
	SecureCookies bool
	Logger        *slog.Logger
}

// SetupRouter sets up the Gin router over the sandbox services
func SetupRouter(s *sandbox.Services, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	authHandlers := NewAuthHandlers(s.Auth, s.Accounts, cfg.SecureCookies)
	didHandlers := NewDIDHandlers(s.Registry, authHandlers)
	chainHandlers := NewChainHandlers(s.Chain)
	jobHandlers := NewJobHandlers(s.Inbox)
	requireAuth := AuthMiddleware(s.Auth)

	router.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	router.GET("/metrics", gin.WrapH(obs.Handler()))

	api := router.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/code", authHandlers.IssueCode)
		auth.POST("/callback", authHandlers.Callback)
		auth.POST("/refresh", authHandlers.Refresh)
		auth.POST("/logout", authHandlers.Logout)
		auth.GET("/me", requireAuth, authHandlers.Me)
	}
	api.POST("/kyc/complete", requireAuth, authHandlers.CompleteKYC)

	did := api.Group("/did")
	{
		did.POST("/nonce", didHandlers.Nonce)
		did.POST("/verify", requireAuth, didHandlers.Bind)
		did.POST("/verified", requireAuth, didHandlers.Verified)
		did.GET("/status", didHandlers.Status)
		did.POST("/init", didHandlers.Init)
		did.POST("/vm", didHandlers.AddMethod)
		did.POST("/challenge", didHandlers.Challenge)
		did.POST("/challenge/verify", didHandlers.VerifyChallenge)
	}

	jobs := api.Group("/job", requireAuth)
	{
		jobs.POST("/applications", jobHandlers.CreateApplication)
		jobs.GET("/applications/:id", jobHandlers.Application)
		jobs.POST("/applications/:id/contract-request", jobHandlers.ContractRequest)
	}
	api.GET("/notifications", requireAuth, jobHandlers.Notifications)

	chain := router.Group("/chain", requireAuth)
	{
		chain.POST("/did/init", chainHandlers.InitIdentity)
		chain.POST("/contract/create", chainHandlers.CreateContract)
		chain.POST("/contract/finalize", chainHandlers.FinalizeContract)
		chain.POST("/contract/expire", chainHandlers.ExpireContract)
		chain.POST("/contract/end", chainHandlers.EndContract)
		chain.GET("/contract/load", chainHandlers.LoadContract)
		chain.POST("/tx/submit", chainHandlers.Submit)
		chain.GET("/tx/:sig", chainHandlers.TxStatus)
	}

	return router
}
