// internal/api/handlers.go
package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Tsegaye16/BookCompanion/internal/config"
	apperrors "github.com/Tsegaye16/BookCompanion/internal/errors"
	"github.com/Tsegaye16/BookCompanion/internal/llm"
	"github.com/Tsegaye16/BookCompanion/internal/models"
	"github.com/Tsegaye16/BookCompanion/internal/retrieval"
	"github.com/Tsegaye16/BookCompanion/internal/services"
	"github.com/Tsegaye16/BookCompanion/internal/utils"
)

// Handler routes API requests to the service layer.
type Handler struct {
	ChatService      *services.ChatService
	CharacterService *services.CharacterService
	SessionService   *services.SessionService
	LLMService       *services.LLMService
	Index            *retrieval.KeywordIndex
	Metrics          *utils.MetricsCollector
	Response         *ResponseHelper
}

// NewHandler creates the handler over already-wired services.
func NewHandler(chat *services.ChatService, character *services.CharacterService,
	sessions *services.SessionService, llmService *services.LLMService,
	index *retrieval.KeywordIndex, metrics *utils.MetricsCollector) *Handler {
	return &Handler{
		ChatService:      chat,
		CharacterService: character,
		SessionService:   sessions,
		LLMService:       llmService,
		Index:            index,
		Metrics:          metrics,
		Response:         NewResponseHelper(),
	}
}

// respondServiceError maps service-layer errors onto HTTP statuses.
func (h *Handler) respondServiceError(c *gin.Context, fallbackMessage string, err error) {
	var appError *apperrors.AppError
	if errors.As(err, &appError) {
		status := http.StatusInternalServerError
		switch appError.Type {
		case apperrors.ErrorTypeValidation:
			status = http.StatusBadRequest
		case apperrors.ErrorTypeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrorTypeUnavailable:
			status = http.StatusServiceUnavailable
		case apperrors.ErrorTypeTimeout:
			status = http.StatusGatewayTimeout
		}
		h.Response.Error(c, status, appError.Code, appError.Message, err.Error())
		return
	}
	h.Response.InternalError(c, fallbackMessage, err.Error())
}

// ChatRequest is the POST /api/chat payload.
type ChatRequest struct {
	Message   string `json:"message" binding:"required"`
	Character string `json:"character" binding:"required"`
	Source    string `json:"source"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// Chat runs one conversation turn.
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "message and character are required", err.Error())
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = models.AnonymousUser
	}

	ident := models.CharacterIdentity{
		Name:       strings.TrimSpace(req.Character),
		BookSource: strings.TrimSpace(req.Source),
		UserID:     userID,
	}

	result, err := h.ChatService.ProcessUserInput(c.Request.Context(), req.Message, ident, req.SessionID)
	if err != nil {
		h.respondServiceError(c, "Failed to process chat turn", err)
		return
	}

	h.Response.Success(c, result)
}

func identityFromQuery(c *gin.Context) models.CharacterIdentity {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		userID = models.AnonymousUser
	}
	return models.CharacterIdentity{
		Name:       c.Param("name"),
		BookSource: c.Query("source"),
		UserID:     userID,
	}
}

// GetCharacterState returns the display rows and raw state for a character.
func (h *Handler) GetCharacterState(c *gin.Context) {
	ident := identityFromQuery(c)
	if ident.Name == "" {
		h.Response.BadRequest(c, "character name is required")
		return
	}

	state, characterID, err := h.CharacterService.GetOrCreateState(c.Request.Context(), ident)
	if err != nil {
		h.respondServiceError(c, "Failed to load character state", err)
		return
	}

	h.Response.Success(c, gin.H{
		"character_id": characterID,
		"character":    ident.Name,
		"state":        state,
		"groups":       state.DisplayRows(),
	})
}

// GetCharacterHistory returns the conversation log oldest-first.
func (h *Handler) GetCharacterHistory(c *gin.Context) {
	ident := identityFromQuery(c)
	if ident.Name == "" {
		h.Response.BadRequest(c, "character name is required")
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.Response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	turns, err := h.CharacterService.History(c.Request.Context(), ident, limit)
	if err != nil {
		h.respondServiceError(c, "Failed to load conversation history", err)
		return
	}

	h.Response.Success(c, gin.H{
		"character": ident.Name,
		"turns":     turns,
		"count":     len(turns),
	})
}

// MemoryRequest is the POST memory payload.
type MemoryRequest struct {
	Key    string `json:"key" binding:"required"`
	Value  string `json:"value" binding:"required"`
	Source string `json:"source"`
	UserID string `json:"user_id"`
}

// SaveCharacterMemory stores a long-term fact for a character.
func (h *Handler) SaveCharacterMemory(c *gin.Context) {
	var req MemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "key and value are required", err.Error())
		return
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = models.AnonymousUser
	}
	ident := models.CharacterIdentity{
		Name:       c.Param("name"),
		BookSource: req.Source,
		UserID:     userID,
	}

	if err := h.CharacterService.SaveToMemory(c.Request.Context(), ident, req.Key, req.Value); err != nil {
		h.respondServiceError(c, "Failed to save memory", err)
		return
	}
	h.Response.Created(c, gin.H{"key": req.Key})
}

// GetCharacterMemory retrieves a long-term fact.
func (h *Handler) GetCharacterMemory(c *gin.Context) {
	ident := identityFromQuery(c)
	key := c.Param("key")
	if ident.Name == "" || key == "" {
		h.Response.BadRequest(c, "character name and key are required")
		return
	}

	value, err := h.CharacterService.GetFromMemory(c.Request.Context(), ident, key)
	if err != nil {
		h.respondServiceError(c, "Failed to load memory", err)
		return
	}
	if value == "" {
		h.Response.NotFound(c, "memory")
		return
	}

	h.Response.Success(c, gin.H{"key": key, "value": value})
}

// DocumentsRequest is the POST /api/documents payload.
type DocumentsRequest struct {
	Chunks []string `json:"chunks" binding:"required"`
}

// AddDocuments indexes book chunks for retrieval.
func (h *Handler) AddDocuments(c *gin.Context) {
	var req DocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "chunks are required", err.Error())
		return
	}

	h.Index.AddChunks(req.Chunks)
	h.Response.Created(c, gin.H{"indexed": h.Index.Len()})
}

// CreateSession allocates an anonymous session.
func (h *Handler) CreateSession(c *gin.Context) {
	id := h.SessionService.CreateSession()
	h.Response.Created(c, gin.H{"session_id": id})
}

// GetSessionTurns returns an anonymous session's buffered turns.
func (h *Handler) GetSessionTurns(c *gin.Context) {
	id := c.Param("id")
	turns := h.SessionService.Turns(id)
	h.Response.Success(c, gin.H{"session_id": id, "turns": turns, "count": len(turns)})
}

// GetLLMSettings reports the active provider without exposing the key.
func (h *Handler) GetLLMSettings(c *gin.Context) {
	cfg := config.GetCurrentConfig()
	ready, state := h.LLMService.GetProviderStatus()

	h.Response.Success(c, gin.H{
		"provider":        cfg.LLMProvider,
		"default_model":   cfg.LLMConfig["default_model"],
		"api_key_set":     cfg.LLMConfig["api_key"] != "",
		"ready":           ready,
		"state":           state,
		"known_providers": llm.ListProviders(),
	})
}

// LLMSettingsRequest is the POST /api/settings/llm payload.
type LLMSettingsRequest struct {
	Provider     string `json:"provider" binding:"required"`
	APIKey       string `json:"api_key"`
	DefaultModel string `json:"default_model"`
	BaseURL      string `json:"base_url"`
}

// UpdateLLMSettings swaps the active provider configuration.
func (h *Handler) UpdateLLMSettings(c *gin.Context) {
	var req LLMSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "provider is required", err.Error())
		return
	}

	llmConfig := map[string]string{
		"api_key":       req.APIKey,
		"default_model": req.DefaultModel,
	}
	if req.BaseURL != "" {
		llmConfig["base_url"] = req.BaseURL
	}

	// Keep the existing key when the request omits it.
	if req.APIKey == "" {
		if current := config.GetCurrentConfig(); current.LLMConfig != nil {
			llmConfig["api_key"] = current.LLMConfig["api_key"]
		}
	}

	if err := h.LLMService.UpdateProvider(req.Provider, llmConfig); err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorLLMConfigInvalid, "Failed to configure provider", err.Error())
		return
	}

	if err := config.UpdateLLMConfig(req.Provider, llmConfig); err != nil {
		h.Response.InternalError(c, "Provider updated but settings were not persisted", err.Error())
		return
	}

	h.Response.Success(c, gin.H{"provider": req.Provider}, "LLM settings updated")
}

// GetMetrics exposes the in-process counters and timings.
func (h *Handler) GetMetrics(c *gin.Context) {
	counters, histograms := h.Metrics.Snapshot()
	h.Response.Success(c, gin.H{
		"counters":   counters,
		"histograms": histograms,
	})
}

// Health is the liveness endpoint.
func (h *Handler) Health(c *gin.Context) {
	ready, state := h.LLMService.GetProviderStatus()
	h.Response.Success(c, gin.H{
		"status":    "ok",
		"llm_ready": ready,
		"llm_state": state,
	})
}
