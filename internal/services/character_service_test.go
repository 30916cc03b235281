// internal/services/character_service_test.go
package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsegaye16/BookCompanion/internal/models"
)

func testIdentity() models.CharacterIdentity {
	return models.CharacterIdentity{Name: "Hermione", BookSource: "hp", UserID: "u1"}
}

func TestGetOrCreateState_CreatesDefaultsOnce(t *testing.T) {
	store := newFakeStore()
	svc := NewCharacterService(store, store, store, nil)
	ctx := context.Background()

	state, characterID, err := svc.GetOrCreateState(ctx, testIdentity())
	require.NoError(t, err)
	require.NotEmpty(t, characterID)
	assert.Equal(t, models.NewEmotionState(), state)
	assert.Equal(t, 1, store.saves)

	// Second call loads instead of recreating.
	again, againID, err := svc.GetOrCreateState(ctx, testIdentity())
	require.NoError(t, err)
	assert.Equal(t, characterID, againID)
	assert.Equal(t, state, again)
	assert.Equal(t, 1, store.saves)
}

func TestGetOrCreateState_EmptyNameRejected(t *testing.T) {
	store := newFakeStore()
	svc := NewCharacterService(store, store, store, nil)

	_, _, err := svc.GetOrCreateState(context.Background(), models.CharacterIdentity{Name: "   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "character name is required")
}

func TestGetOrCreateState_StoreErrorWrapped(t *testing.T) {
	store := newFakeStore()
	store.loadErr = errors.New("disk on fire")
	svc := NewCharacterService(store, store, store, nil)

	_, _, err := svc.GetOrCreateState(context.Background(), testIdentity())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestNextEmotionState_AppliesFencedModelOutput(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		"```json\n{\"joy\": 0.9, \"valence\": 0.8}\n```",
	}}
	store := newFakeStore()
	svc := NewCharacterService(store, store, store, completer)

	state := models.NewEmotionState()
	next := svc.NextEmotionState(context.Background(), "Great news!", state)

	assert.Equal(t, 0.9, next.Joy)
	assert.Equal(t, 0.8, next.Valence)
	assert.Equal(t, 0.5, next.Arousal)

	// The input state is left alone; the caller decides when to persist.
	assert.Equal(t, 0.0, state.Joy)
	assert.Equal(t, 0, store.saves)
}

func TestNextEmotionState_UsesStructuredCompletionWhenAvailable(t *testing.T) {
	completer := &fakeStructuredCompleter{values: map[string]float64{"fear": 0.7}}
	store := newFakeStore()
	svc := NewCharacterService(store, store, store, completer)

	state := models.NewEmotionState()
	next := svc.NextEmotionState(context.Background(), "A shadow moves", state)

	assert.Equal(t, 0.7, next.Fear)
	assert.Equal(t, 1, completer.calls)
	// The plain text path is never taken.
	assert.Empty(t, completer.prompts)
}

func TestNextEmotionState_StructuredErrorFallsBack(t *testing.T) {
	completer := &fakeStructuredCompleter{structErr: errors.New("provider down")}
	store := newFakeStore()
	svc := NewCharacterService(store, store, store, completer)

	before := models.NewEmotionState()
	after := svc.NextEmotionState(context.Background(), "hello", before)
	assertPerturbedOnly(t, before, after)
}

func TestNextEmotionState_ParsesNoisyTextReply(t *testing.T) {
	completer := &fakeCompleter{responses: []string{
		"Here is the updated state:\n```json\n{\"joy\": 0.6}\n```\nLet me know if you need more.",
	}}
	store := newFakeStore()
	svc := NewCharacterService(store, store, store, completer)

	next := svc.NextEmotionState(context.Background(), "Good news", models.NewEmotionState())
	assert.Equal(t, 0.6, next.Joy)
}

func TestSaveState_SerializedPerIdentity(t *testing.T) {
	store := newFakeStore()
	svc := NewCharacterService(store, store, store, nil)
	ident := testIdentity()

	lock := svc.locks.GetCharacterLock(identityKey(ident))
	lock.Lock()

	done := make(chan struct{})
	go func() {
		_, _ = svc.SaveState(context.Background(), ident, models.NewEmotionState())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("save completed while the identity lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	lock.Unlock()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("save did not complete after the lock was released")
	}

	assert.Equal(t, 1, store.saves)
}

func TestNextEmotionState_PromptCarriesCurrentValues(t *testing.T) {
	completer := &fakeCompleter{responses: []string{`{"joy": 0.1}`}}
	store := newFakeStore()
	svc := NewCharacterService(store, store, store, completer)

	state := models.NewEmotionState()
	state.Fear = 0.25
	svc.NextEmotionState(context.Background(), "A noise in the dark", state)

	require.Len(t, completer.prompts, 1)
	prompt := completer.prompts[0]
	assert.Contains(t, prompt, "A noise in the dark")
	assert.Contains(t, prompt, "Fear: 0.25")
	assert.Contains(t, prompt, "Securing Rate: 0.5")
	assert.Contains(t, prompt, "Return ONLY the JSON object")
}

func assertPerturbedOnly(t *testing.T, before, after *models.EmotionState) {
	t.Helper()

	assert.InDelta(t, before.Arousal, after.Arousal, 0.1)
	assert.InDelta(t, before.Valence, after.Valence, 0.1)
	assert.GreaterOrEqual(t, after.Arousal, 0.0)
	assert.LessOrEqual(t, after.Arousal, 1.0)
	assert.GreaterOrEqual(t, after.Valence, 0.0)
	assert.LessOrEqual(t, after.Valence, 1.0)

	// Everything besides arousal and valence is untouched.
	assert.Equal(t, before.Dominance, after.Dominance)
	assert.Equal(t, before.Sadness, after.Sadness)
	assert.Equal(t, before.Anger, after.Anger)
	assert.Equal(t, before.Joy, after.Joy)
	assert.Equal(t, before.Fear, after.Fear)
	assert.Equal(t, before.SelectionThreshold, after.SelectionThreshold)
	assert.Equal(t, before.ResolutionLevel, after.ResolutionLevel)
	assert.Equal(t, before.GoalDirectedness, after.GoalDirectedness)
	assert.Equal(t, before.SecuringRate, after.SecuringRate)
}

func TestNextEmotionState_FallbackOnModelError(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("provider down")}
	store := newFakeStore()
	svc := NewCharacterService(store, store, store, completer)

	before := models.NewEmotionState()
	before.Joy = 0.3
	after := svc.NextEmotionState(context.Background(), "hello", before)

	assertPerturbedOnly(t, before, after)
}

func TestNextEmotionState_FallbackOnGarbageOutput(t *testing.T) {
	for _, raw := range []string{"", "   ", "I feel things", "{}"} {
		completer := &fakeCompleter{responses: []string{raw}}
		store := newFakeStore()
		svc := NewCharacterService(store, store, store, completer)

		before := models.NewEmotionState()
		after := svc.NextEmotionState(context.Background(), "hello", before)
		assertPerturbedOnly(t, before, after)
	}
}

func TestNextEmotionState_FallbackClampsAtBounds(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("down")}
	store := newFakeStore()
	svc := NewCharacterService(store, store, store, completer)

	before := models.NewEmotionState()
	before.Arousal = 1.0
	before.Valence = 0.0

	// The drift is random, so probe repeatedly.
	for i := 0; i < 20; i++ {
		after := svc.NextEmotionState(context.Background(), "hi", before)
		assert.LessOrEqual(t, after.Arousal, 1.0)
		assert.GreaterOrEqual(t, after.Valence, 0.0)
		assert.True(t, math.Abs(after.Arousal-1.0) <= 0.1)
		assert.True(t, math.Abs(after.Valence-0.0) <= 0.1)
	}
}

func TestSimulateEmotions_PersistsResult(t *testing.T) {
	completer := &fakeCompleter{responses: []string{`{"anger": 0.6}`}}
	store := newFakeStore()
	svc := NewCharacterService(store, store, store, completer)
	ctx := context.Background()

	state, _, err := svc.GetOrCreateState(ctx, testIdentity())
	require.NoError(t, err)
	savesBefore := store.saves

	next := svc.SimulateEmotions(ctx, "That was rude", testIdentity(), state)
	assert.Equal(t, 0.6, next.Anger)
	assert.Equal(t, savesBefore+1, store.saves)

	persisted, _, err := store.LoadState(ctx, testIdentity())
	require.NoError(t, err)
	assert.Equal(t, 0.6, persisted.Anger)
}

func TestSimulateEmotions_PersistsFallbackToo(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("down")}
	store := newFakeStore()
	svc := NewCharacterService(store, store, store, completer)
	ctx := context.Background()

	state, _, err := svc.GetOrCreateState(ctx, testIdentity())
	require.NoError(t, err)
	savesBefore := store.saves

	svc.SimulateEmotions(ctx, "hello", testIdentity(), state)
	assert.Equal(t, savesBefore+1, store.saves)
}

func TestMemoryRoundTrip(t *testing.T) {
	store := newFakeStore()
	svc := NewCharacterService(store, store, store, nil)
	ctx := context.Background()

	require.NoError(t, svc.SaveToMemory(ctx, testIdentity(), "wand", "vine wood"))

	value, err := svc.GetFromMemory(ctx, testIdentity(), "wand")
	require.NoError(t, err)
	assert.Equal(t, "vine wood", value)
}

func TestBuildEmotionPrompt_ListsAllParameters(t *testing.T) {
	prompt := buildEmotionPrompt("hi", models.NewEmotionState())
	for _, label := range []string{
		"Arousal:", "Valence:", "Dominance:", "Sadness:", "Anger:", "Joy:", "Fear:",
		"Selection Threshold:", "Resolution Level:", "Goal Directedness:", "Securing Rate:",
	} {
		assert.True(t, strings.Contains(prompt, label), "prompt missing %s", label)
	}
}
