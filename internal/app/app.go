// internal/app/app.go
package app

import (
	"fmt"
	"path/filepath"

	"github.com/Tsegaye16/BookCompanion/internal/config"
	"github.com/Tsegaye16/BookCompanion/internal/di"
	"github.com/Tsegaye16/BookCompanion/internal/retrieval"
	"github.com/Tsegaye16/BookCompanion/internal/services"
	"github.com/Tsegaye16/BookCompanion/internal/storage"
	"github.com/Tsegaye16/BookCompanion/internal/utils"

	// Providers register themselves with the llm registry from init.
	_ "github.com/Tsegaye16/BookCompanion/internal/llm/providers/google"
	_ "github.com/Tsegaye16/BookCompanion/internal/llm/providers/openrouter"
)

// InitServices creates all services in dependency order and registers them
// in the DI container. The router only ever fetches from the container.
func InitServices() error {
	cfg := config.GetCurrentConfig()
	container := di.GetContainer()

	// Storage first; everything downstream needs it.
	store, err := storage.NewSQLiteStore(filepath.Join(cfg.DataDir, "characters.db"))
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	container.Register("storage", store)

	// LLM service degrades to standby when unconfigured; server still starts.
	llmService, err := services.NewLLMService()
	if err != nil {
		return fmt.Errorf("initialize llm service: %w", err)
	}
	container.Register("llm", llmService)

	if ready, state := llmService.GetProviderStatus(); !ready {
		utils.GetLogger().Warn("LLM service starting in standby", map[string]interface{}{"state": state})
	}

	index := retrieval.NewKeywordIndex(0)
	container.Register("retrieval", index)

	characterService := services.NewCharacterService(store, store, store, llmService)
	container.Register("character", characterService)

	// Extraction strategy follows LLM readiness per request, so a provider
	// configured later through the settings API is picked up immediately.
	mentionService := services.NewMentionService(store, services.NewReadinessExtractor(llmService))
	container.Register("mention", mentionService)

	sessionService := services.NewSessionService()
	container.Register("session", sessionService)

	chatService := services.NewChatService(characterService, mentionService, sessionService,
		store, index, llmService, utils.GetMetricsCollector())
	container.Register("chat", chatService)

	return nil
}

// Cleanup releases resources held by registered services.
func Cleanup() {
	container := di.GetContainer()

	if store, ok := container.Get("storage").(*storage.SQLiteStore); ok {
		if err := store.Close(); err != nil {
			utils.GetLogger().Error("Failed to close storage", map[string]interface{}{"err": err.Error()})
		}
	}

	container.Clear()
}
