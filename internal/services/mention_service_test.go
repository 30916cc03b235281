// internal/services/mention_service_test.go
package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsegaye16/BookCompanion/internal/models"
)

func TestHasTrigger(t *testing.T) {
	svc := NewMentionService(newFakeStore(), nil)

	cases := map[string]bool{
		"Tell me about Bob":             true,
		"TELL ME ABOUT Bob":             true,
		"Do you know Alice?":            true,
		"describe the castle":           true,
		"Who is the stranger?":          true,
		"What's the weather like?":      false,
		"I had lunch with Bob earlier.": false,
	}
	for input, want := range cases {
		assert.Equal(t, want, svc.HasTrigger(input), "input: %s", input)
	}
}

func TestResolve_NoTriggerSkipsExtraction(t *testing.T) {
	store := newFakeStore()
	extractor := &fixedExtractor{name: "Bob"}
	svc := NewMentionService(store, extractor)

	query, err := svc.Resolve(context.Background(), "char-1", "Nice weather today")
	require.NoError(t, err)
	assert.Nil(t, query)
}

func TestResolve_NoneSentinelYieldsNoQuery(t *testing.T) {
	completer := &fakeCompleter{responses: []string{"None."}}
	svc := NewMentionService(newFakeStore(), &LLMNameExtractor{LLM: completer})

	query, err := svc.Resolve(context.Background(), "char-1", "Tell me about him")
	require.NoError(t, err)
	assert.Nil(t, query)
}

func TestResolve_ExtractionErrorDegradesToNoMention(t *testing.T) {
	svc := NewMentionService(newFakeStore(), &fixedExtractor{err: errors.New("model down")})

	query, err := svc.Resolve(context.Background(), "char-1", "Tell me about Bob")
	require.NoError(t, err)
	assert.Nil(t, query)
}

func TestResolve_StoreErrorIsReturned(t *testing.T) {
	store := newFakeStore()
	store.searchErr = errors.New("db locked")
	svc := NewMentionService(store, &fixedExtractor{name: "Bob"})

	_, err := svc.Resolve(context.Background(), "char-1", "Tell me about Bob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db locked")
}

func TestResolve_FiltersIrrelevantAndExcludedTurns(t *testing.T) {
	store := newFakeStore()
	store.searchTurns = []models.ConversationTurn{
		{Role: "user", Content: "Bob helped me fix the fence"},
		{Role: "assistant", Content: "bob sounds like a kind neighbor"},
		{Role: "user", Content: "Did you know Bob moved away?"},
		{Role: "user", Content: "The fence still needs paint"},
	}
	svc := NewMentionService(store, &fixedExtractor{name: "Bob"})

	query, err := svc.Resolve(context.Background(), "char-1", "Tell me about Bob")
	require.NoError(t, err)
	require.NotNil(t, query)
	assert.Equal(t, "Bob", query.Name)

	// The "did you know" turn and the turn without the name are dropped;
	// matching is case-insensitive, so both remaining Bob turns survive.
	require.Len(t, query.Turns, 2)
	assert.Equal(t, "Bob helped me fix the fence", query.Turns[0].Content)
	assert.Equal(t, "bob sounds like a kind neighbor", query.Turns[1].Content)
}

func TestFormatContext(t *testing.T) {
	svc := NewMentionService(newFakeStore(), nil)

	assert.Empty(t, svc.FormatContext(nil))
	assert.Empty(t, svc.FormatContext(&models.MentionQuery{Name: "Bob"}))

	query := &models.MentionQuery{
		Name: "Bob",
		Turns: []models.ConversationTurn{
			{Role: "user", Content: "Bob fixed the fence"},
			{Role: "assistant", Content: "Bob seems helpful"},
		},
	}
	want := "Previous mentions of Bob:\n" +
		"- user said: 'Bob fixed the fence'\n" +
		"- assistant said: 'Bob seems helpful'\n"
	assert.Equal(t, want, svc.FormatContext(query))
}

func TestLLMNameExtractor_TrimsAndPassesQuestion(t *testing.T) {
	completer := &fakeCompleter{responses: []string{"  Elizabeth Bennet. "}}
	extractor := &LLMNameExtractor{LLM: completer}

	name, err := extractor.ExtractName(context.Background(), "Tell me about Elizabeth Bennet")
	require.NoError(t, err)
	assert.Equal(t, "Elizabeth Bennet", name)

	require.Len(t, completer.prompts, 1)
	assert.Contains(t, completer.prompts[0], "Tell me about Elizabeth Bennet")
	assert.Contains(t, completer.prompts[0], "return 'None'")
}

func TestReadinessExtractor_FollowsReadiness(t *testing.T) {
	ready := false
	completer := &fakeCompleter{responses: []string{"Bob"}}
	extractor := &ReadinessExtractor{
		Ready:     func() bool { return ready },
		Model:     &LLMNameExtractor{LLM: completer},
		Heuristic: &HeuristicNameExtractor{},
	}

	// Standby: the heuristic answers, no model call happens.
	name, err := extractor.ExtractName(context.Background(), "Tell me about Bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", name)
	assert.Empty(t, completer.prompts)

	// A provider bound at runtime switches extraction on the next request.
	ready = true
	name, err = extractor.ExtractName(context.Background(), "Tell me about Bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", name)
	assert.Len(t, completer.prompts, 1)
}

func TestHeuristicNameExtractor(t *testing.T) {
	extractor := &HeuristicNameExtractor{}

	name, err := extractor.ExtractName(context.Background(), "Tell me about Bob?")
	require.NoError(t, err)
	assert.Equal(t, "Bob", name)

	name, err = extractor.ExtractName(context.Background(), "Who is Mary Shelley?")
	require.NoError(t, err)
	assert.Equal(t, "Mary Shelley", name)

	name, err = extractor.ExtractName(context.Background(), "The weather is nice")
	require.NoError(t, err)
	assert.Empty(t, name)
}
