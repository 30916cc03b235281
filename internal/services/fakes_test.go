// internal/services/fakes_test.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/Tsegaye16/BookCompanion/internal/models"
)

// fakeCompleter returns canned responses in call order, or a fixed error.
type fakeCompleter struct {
	mu        sync.Mutex
	responses []string
	err       error
	prompts   []string
}

func (f *fakeCompleter) CompleteText(ctx context.Context, prompt, systemPrompt string, temperature float32) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no canned response left")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

// promptCompleter routes on prompt content so concurrent calls stay
// deterministic.
type promptCompleter struct {
	mu      sync.Mutex
	route   func(prompt string) (string, error)
	prompts []string
}

func (f *promptCompleter) CompleteText(ctx context.Context, prompt, systemPrompt string, temperature float32) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	return f.route(prompt)
}

// fakeStore is an in-memory CharacterStore, ConversationStore and
// MemoryStore that records every write.
type fakeStore struct {
	mu sync.Mutex

	states      map[string]*models.EmotionState
	ids         map[string]string
	saves       int
	loadErr     error
	saveErr     error
	searchErr   error
	searchTurns []models.ConversationTurn

	conversations []string
	messages      []models.ConversationTurn
	memory        map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		states: make(map[string]*models.EmotionState),
		ids:    make(map[string]string),
		memory: make(map[string]string),
	}
}

func fakeKey(ident models.CharacterIdentity) string {
	return ident.Name + "|" + ident.BookSource + "|" + ident.UserID
}

func (f *fakeStore) LoadState(ctx context.Context, ident models.CharacterIdentity) (*models.EmotionState, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, "", f.loadErr
	}
	state, ok := f.states[fakeKey(ident)]
	if !ok {
		return nil, "", nil
	}
	clone := *state
	return &clone, f.ids[fakeKey(ident)], nil
}

func (f *fakeStore) SaveState(ctx context.Context, ident models.CharacterIdentity, state *models.EmotionState) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saves++
	key := fakeKey(ident)
	clone := *state
	f.states[key] = &clone
	if _, ok := f.ids[key]; !ok {
		f.ids[key] = "char-" + ident.Name
	}
	return f.ids[key], nil
}

func (f *fakeStore) CreateConversation(ctx context.Context, characterID, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := "conv-" + characterID
	f.conversations = append(f.conversations, id)
	return id, nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, conversationID, role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, models.ConversationTurn{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	})
	return nil
}

func (f *fakeStore) History(ctx context.Context, characterID, userID string, limit int) ([]models.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	turns := make([]models.ConversationTurn, len(f.messages))
	copy(turns, f.messages)
	return turns, nil
}

func (f *fakeStore) SearchMentions(ctx context.Context, characterID, term string, limit int) ([]models.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	turns := make([]models.ConversationTurn, len(f.searchTurns))
	copy(turns, f.searchTurns)
	return turns, nil
}

func (f *fakeStore) SaveMemory(ctx context.Context, characterID, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memory[characterID+"|"+key] = value
	return nil
}

func (f *fakeStore) LoadMemory(ctx context.Context, characterID, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memory[characterID+"|"+key], nil
}

// fakeStructuredCompleter serves structured completions from canned values.
type fakeStructuredCompleter struct {
	fakeCompleter
	values    map[string]float64
	structErr error
	calls     int
}

func (f *fakeStructuredCompleter) CreateStructuredCompletion(ctx context.Context, prompt, systemPrompt string, out interface{}) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.structErr != nil {
		return f.structErr
	}
	data, err := json.Marshal(f.values)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// fixedExtractor returns a fixed name.
type fixedExtractor struct {
	name string
	err  error
}

func (e *fixedExtractor) ExtractName(ctx context.Context, question string) (string, error) {
	return e.name, e.err
}
