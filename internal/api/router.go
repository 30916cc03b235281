// internal/api/router.go
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Tsegaye16/BookCompanion/internal/config"
	"github.com/Tsegaye16/BookCompanion/internal/di"
	"github.com/Tsegaye16/BookCompanion/internal/retrieval"
	"github.com/Tsegaye16/BookCompanion/internal/services"
	"github.com/Tsegaye16/BookCompanion/internal/utils"
)

// SetupRouter wires the HTTP surface over the services registered in the
// DI container. Services are only fetched here, never created.
func SetupRouter() (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()
	if cfg == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}

	container := di.GetContainer()

	chatService, ok := container.Get("chat").(*services.ChatService)
	if !ok {
		return nil, fmt.Errorf("chat service not initialized")
	}

	characterService, ok := container.Get("character").(*services.CharacterService)
	if !ok {
		return nil, fmt.Errorf("character service not initialized")
	}

	sessionService, ok := container.Get("session").(*services.SessionService)
	if !ok {
		return nil, fmt.Errorf("session service not initialized")
	}

	llmService, ok := container.Get("llm").(*services.LLMService)
	if !ok {
		return nil, fmt.Errorf("llm service not initialized")
	}

	index, ok := container.Get("retrieval").(*retrieval.KeywordIndex)
	if !ok {
		return nil, fmt.Errorf("retrieval index not initialized")
	}

	handler := NewHandler(chatService, characterService, sessionService,
		llmService, index, utils.GetMetricsCollector())

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(corsMiddleware())
	r.Use(RequestIDMiddleware())

	r.GET("/health", handler.Health)

	// WebSocket chat
	r.GET("/ws/chat", handler.ChatWebSocket)

	api := r.Group("/api")
	api.Use(DefaultRateLimit())
	{
		api.POST("/chat", ChatRateLimit(), handler.Chat)

		charactersGroup := api.Group("/characters/:name")
		{
			charactersGroup.GET("/state", handler.GetCharacterState)
			charactersGroup.GET("/history", handler.GetCharacterHistory)
			charactersGroup.POST("/memory", handler.SaveCharacterMemory)
			charactersGroup.GET("/memory/:key", handler.GetCharacterMemory)
		}

		api.POST("/documents", handler.AddDocuments)

		sessionsGroup := api.Group("/sessions")
		{
			sessionsGroup.POST("", handler.CreateSession)
			sessionsGroup.GET("/:id", handler.GetSessionTurns)
		}

		settingsGroup := api.Group("/settings")
		{
			settingsGroup.GET("/llm", handler.GetLLMSettings)
			settingsGroup.POST("/llm", handler.UpdateLLMSettings)
		}

		api.GET("/metrics", handler.GetMetrics)
		api.GET("/ws/status", handler.GetWebSocketStatus)
	}

	return r, nil
}

// corsMiddleware allows cross-origin access for browser clients.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
