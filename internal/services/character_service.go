// internal/services/character_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	apperrors "github.com/Tsegaye16/BookCompanion/internal/errors"
	"github.com/Tsegaye16/BookCompanion/internal/models"
	"github.com/Tsegaye16/BookCompanion/internal/utils"
)

// CharacterService owns the character state lifecycle and the emotion
// simulation step.
type CharacterService struct {
	Characters    CharacterStore
	Conversations ConversationStore
	Memory        MemoryStore
	LLM           TextCompleter

	// Per-identity locks serialize the read-modify-write on state.
	locks *LockManager
}

// NewCharacterService creates the service over the given collaborators.
func NewCharacterService(characters CharacterStore, conversations ConversationStore, memory MemoryStore, llm TextCompleter) *CharacterService {
	if llm == nil {
		llm = NewEmptyLLMService()
	}
	return &CharacterService{
		Characters:    characters,
		Conversations: conversations,
		Memory:        memory,
		LLM:           llm,
		locks:         NewLockManager(),
	}
}

func identityKey(ident models.CharacterIdentity) string {
	return ident.Name + "\x00" + ident.BookSource + "\x00" + ident.UserID
}

func (s *CharacterService) lockFor(ident models.CharacterIdentity) *sync.Mutex {
	return s.locks.GetCharacterLock(identityKey(ident))
}

// GetOrCreateState loads the identity's state, constructing and persisting
// baseline defaults on first contact so the character id exists before the
// conversation log needs it.
func (s *CharacterService) GetOrCreateState(ctx context.Context, ident models.CharacterIdentity) (*models.EmotionState, string, error) {
	if strings.TrimSpace(ident.Name) == "" {
		return nil, "", apperrors.NewValidationError("character name is required", nil)
	}

	lock := s.lockFor(ident)
	lock.Lock()
	defer lock.Unlock()

	state, characterID, err := s.Characters.LoadState(ctx, ident)
	if err != nil {
		return nil, "", apperrors.NewProcessingError(fmt.Sprintf("load state for %s", ident.Name), err)
	}
	if state != nil {
		return state, characterID, nil
	}

	state = models.NewEmotionState()
	characterID, err = s.Characters.SaveState(ctx, ident, state)
	if err != nil {
		return nil, "", apperrors.NewProcessingError(fmt.Sprintf("create state for %s", ident.Name), err)
	}

	utils.GetLogger().Info("Created character state", map[string]interface{}{
		"character": ident.Name,
		"source":    ident.BookSource,
	})
	return state, characterID, nil
}

// SaveState persists the state for the identity under its lock, so a save
// never interleaves with another turn's read-modify-write.
func (s *CharacterService) SaveState(ctx context.Context, ident models.CharacterIdentity, state *models.EmotionState) (string, error) {
	var characterID string
	err := s.locks.ExecuteWithCharacterLock(identityKey(ident), func() error {
		id, err := s.Characters.SaveState(ctx, ident, state)
		characterID = id
		return err
	})
	return characterID, err
}

// NextEmotionState maps the user input onto a new emotion state through the
// model. Any failure along the way degrades to a small random perturbation
// instead of an error; the returned state is always usable. The input state
// is not mutated and nothing is persisted here, so a canceled request can
// still drop the result on the floor.
func (s *CharacterService) NextEmotionState(ctx context.Context, userInput string, state *models.EmotionState) *models.EmotionState {
	next := *state

	prompt := buildEmotionPrompt(userInput, state)

	values, err := s.completeEmotionValues(ctx, prompt)
	if err != nil {
		utils.GetLogger().Warn("Emotion simulation call failed", map[string]interface{}{"err": err.Error()})
		return perturb(&next)
	}
	if len(values) == 0 {
		utils.GetLogger().Warn("Emotion simulation returned no usable values", nil)
		return perturb(&next)
	}

	next.Apply(values)
	return &next
}

// completeEmotionValues asks the model for the 11 parameters. A completer
// with structured support decodes directly; otherwise the raw text goes
// through the JSON cleanup path.
func (s *CharacterService) completeEmotionValues(ctx context.Context, prompt string) (map[string]float64, error) {
	if structured, ok := s.LLM.(StructuredCompleter); ok {
		var values map[string]float64
		if err := structured.CreateStructuredCompletion(ctx, prompt, "", &values); err != nil {
			return nil, err
		}
		return values, nil
	}

	raw, err := s.LLM.CompleteText(ctx, prompt, "", 0.7)
	if err != nil {
		return nil, err
	}

	jsonString := cleanJSONString(raw)
	if jsonString == "" {
		return nil, nil
	}

	var values map[string]float64
	if err := json.Unmarshal([]byte(jsonString), &values); err != nil {
		return nil, err
	}
	return values, nil
}

// SimulateEmotions computes and persists the next state in one step, for
// callers outside the chat pipeline. The pipeline itself defers the save
// until after generation.
func (s *CharacterService) SimulateEmotions(ctx context.Context, userInput string, ident models.CharacterIdentity, state *models.EmotionState) *models.EmotionState {
	lock := s.lockFor(ident)
	lock.Lock()
	defer lock.Unlock()

	next := s.NextEmotionState(ctx, userInput, state)

	if _, err := s.Characters.SaveState(ctx, ident, next); err != nil {
		utils.GetLogger().Error("Failed to persist simulated state", map[string]interface{}{
			"character": ident.Name,
			"err":       err.Error(),
		})
	}
	return next
}

// perturb is the degraded emotion path. Only arousal and valence drift,
// uniformly within ±0.1, clamped to [0, 1].
func perturb(state *models.EmotionState) *models.EmotionState {
	state.Arousal = models.Clamp01(state.Arousal + (rand.Float64()*0.2 - 0.1))
	state.Valence = models.Clamp01(state.Valence + (rand.Float64()*0.2 - 0.1))
	return state
}

func buildEmotionPrompt(userInput string, state *models.EmotionState) string {
	return fmt.Sprintf(`Given the user input: '%s', and the character's current state:
Arousal: %g,
Valence: %g,
Dominance: %g,
Sadness: %g,
Anger: %g,
Joy: %g,
Fear: %g,
Selection Threshold: %g,
Resolution Level: %g,
Goal Directedness: %g,
Securing Rate: %g

Analyze how the user input might affect the character's emotions and cognitive parameters.
Consider factors like the sentiment of the input, the character's personality, and the context of the conversation.

Generate new values for these parameters in JSON format, reflecting the character's emotional response.
Return ONLY the JSON object with these keys, and no other text.

Example JSON output:
{
"arousal": 0.6,
"valence": 0.7,
"dominance": 0.5,
"sadness": 0.1,
"anger": 0.0,
"joy": 0.8,
"fear": 0.2,
"selection_threshold": 0.5,
"resolution_level": 0.6,
"goal_directedness": 0.7,
"securing_rate": 0.5
}`,
		userInput,
		state.Arousal, state.Valence, state.Dominance,
		state.Sadness, state.Anger, state.Joy, state.Fear,
		state.SelectionThreshold, state.ResolutionLevel, state.GoalDirectedness, state.SecuringRate)
}

// History returns the identity's conversation turns oldest-first.
func (s *CharacterService) History(ctx context.Context, ident models.CharacterIdentity, limit int) ([]models.ConversationTurn, error) {
	_, characterID, err := s.GetOrCreateState(ctx, ident)
	if err != nil {
		return nil, err
	}
	return s.Conversations.History(ctx, characterID, ident.UserID, limit)
}

// SaveToMemory stores a long-term fact for the character.
func (s *CharacterService) SaveToMemory(ctx context.Context, ident models.CharacterIdentity, key, value string) error {
	if s.Memory == nil {
		return fmt.Errorf("memory store not configured")
	}
	_, characterID, err := s.GetOrCreateState(ctx, ident)
	if err != nil {
		return err
	}
	return s.Memory.SaveMemory(ctx, characterID, key, value)
}

// GetFromMemory retrieves a long-term fact; ("", nil) when absent.
func (s *CharacterService) GetFromMemory(ctx context.Context, ident models.CharacterIdentity, key string) (string, error) {
	if s.Memory == nil {
		return "", fmt.Errorf("memory store not configured")
	}
	_, characterID, err := s.GetOrCreateState(ctx, ident)
	if err != nil {
		return "", err
	}
	return s.Memory.LoadMemory(ctx, characterID, key)
}
