package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/fusen-app/fusen/internal/app"
	iauth "github.com/fusen-app/fusen/internal/auth"
	"github.com/fusen-app/fusen/internal/handlers"
	"github.com/fusen-app/fusen/internal/middleware"
	"github.com/fusen-app/fusen/internal/permissions"
	"github.com/fusen-app/fusen/internal/realtime"
	"github.com/fusen-app/fusen/internal/services"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	guard, err := permissions.NewGuard(db)
	if err != nil {
		return nil, err
	}

	userService, err := services.NewUserService(db)
	if err != nil {
		return nil, err
	}
	boardService, err := services.NewBoardService(db)
	if err != nil {
		return nil, err
	}
	taskService, err := services.NewTaskService(db, guard)
	if err != nil {
		return nil, err
	}
	memberService, err := services.NewMemberService(db, guard)
	if err != nil {
		return nil, err
	}
	inviteService, err := services.NewInviteService(db, guard, services.InviteOptions{
		TTL:      cfg.Invites.TTL,
		LinkBase: cfg.Invites.LinkBase,
	})
	if err != nil {
		return nil, err
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateWindow))

	r.NoRoute(middleware.NotFoundHandler)

	// Health endpoint (public)
	r.GET("/health", handlers.Health())

	if cfg.Metrics.Enabled {
		endpoint := cfg.Metrics.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	authHandler, err := handlers.NewAuthHandler(userService, jwt)
	if err != nil {
		return nil, err
	}

	// Public auth routes
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	requireAuth := middleware.Auth(jwt)

	// Websocket entry point authenticates out of band, before the upgrade.
	hub := realtime.NewHub(guard)
	r.GET("/ws", handlers.NewRealtimeHandler(hub, jwt).Serve)

	api := r.Group("/api")
	api.Use(requireAuth)

	api.GET("/auth/me", authHandler.Me)

	// Boards
	boardHandler, err := handlers.NewBoardHandler(boardService, guard)
	if err != nil {
		return nil, err
	}
	boards := api.Group("/boards")
	{
		boards.GET("", boardHandler.List)
		boards.POST("", boardHandler.Create)
		boards.GET("/:boardId", boardHandler.Get)
		boards.PUT("/:boardId", boardHandler.Update)
		boards.DELETE("/:boardId", boardHandler.Delete)
	}

	// Tasks
	taskHandler, err := handlers.NewTaskHandler(taskService, guard)
	if err != nil {
		return nil, err
	}
	tasks := api.Group("/tasks")
	{
		tasks.GET("/board/:boardId", taskHandler.ListForBoard)
		tasks.POST("", taskHandler.Create)
		tasks.POST("/reorder", taskHandler.Reorder)
		tasks.PUT("/:taskId", taskHandler.Update)
		tasks.PATCH("/:taskId/status", taskHandler.SetStatus)
		tasks.DELETE("/:taskId", taskHandler.Delete)
	}

	// Members and invitations
	memberHandler, err := handlers.NewMemberHandler(memberService, inviteService)
	if err != nil {
		return nil, err
	}
	members := api.Group("/members")
	{
		members.POST("/invite", memberHandler.Invite)
		members.POST("/accept-invite/:token", memberHandler.AcceptInvite)
		members.PUT("/:boardId/members/:memberId", memberHandler.ChangeRole)
		members.DELETE("/:boardId/members/:memberId", memberHandler.Remove)
		members.POST("/:boardId/leave", memberHandler.Leave)
	}

	return r, nil
}
