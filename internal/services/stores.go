// internal/services/stores.go
package services

import (
	"context"

	"github.com/Tsegaye16/BookCompanion/internal/models"
)

// CharacterStore persists per-character emotion state.
type CharacterStore interface {
	// LoadState returns (nil, "", nil) for a never-saved identity.
	LoadState(ctx context.Context, ident models.CharacterIdentity) (*models.EmotionState, string, error)

	// SaveState upserts the state and returns the character id.
	SaveState(ctx context.Context, ident models.CharacterIdentity, state *models.EmotionState) (string, error)
}

// ConversationStore persists the append-only conversation log.
type ConversationStore interface {
	CreateConversation(ctx context.Context, characterID, userID string) (string, error)
	AppendMessage(ctx context.Context, conversationID, role, content string) error

	// History returns turns oldest-first.
	History(ctx context.Context, characterID, userID string, limit int) ([]models.ConversationTurn, error)

	// SearchMentions returns turns containing term, newest-first.
	SearchMentions(ctx context.Context, characterID, term string, limit int) ([]models.ConversationTurn, error)
}

// MemoryStore persists long-term key/value facts per character.
type MemoryStore interface {
	SaveMemory(ctx context.Context, characterID, key, value string) error
	LoadMemory(ctx context.Context, characterID, key string) (string, error)
}

// DocumentRetriever returns book passages relevant to a query.
type DocumentRetriever interface {
	SimilaritySearch(ctx context.Context, query string) ([]string, error)
}

// TextCompleter is the slice of LLMService the domain services consume.
type TextCompleter interface {
	CompleteText(ctx context.Context, prompt, systemPrompt string, temperature float32) (string, error)
}

// StructuredCompleter is implemented by completers that can decode a JSON
// reply straight into a value. Callers fall back to CompleteText plus local
// parsing when it is absent.
type StructuredCompleter interface {
	CreateStructuredCompletion(ctx context.Context, prompt, systemPrompt string, out interface{}) error
}
