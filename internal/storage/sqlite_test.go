// internal/storage/sqlite_test.go
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tsegaye16/BookCompanion/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndLoadState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ident := models.CharacterIdentity{Name: "Elizabeth Bennet", BookSource: "pride_and_prejudice", UserID: "u1"}

	state := models.NewEmotionState()
	state.Joy = 0.8
	state.Arousal = 0.6

	characterID, err := store.SaveState(ctx, ident, state)
	require.NoError(t, err)
	require.NotEmpty(t, characterID)

	loaded, loadedID, err := store.LoadState(ctx, ident)
	require.NoError(t, err)
	assert.Equal(t, characterID, loadedID)
	assert.Equal(t, state, loaded)
}

func TestSaveState_UpsertKeepsCharacterID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ident := models.CharacterIdentity{Name: "Gandalf", BookSource: "lotr", UserID: "u1"}

	firstID, err := store.SaveState(ctx, ident, models.NewEmotionState())
	require.NoError(t, err)

	updated := models.NewEmotionState()
	updated.Anger = 0.7
	secondID, err := store.SaveState(ctx, ident, updated)
	require.NoError(t, err)
	assert.Equal(t, firstID, secondID)

	loaded, _, err := store.LoadState(ctx, ident)
	require.NoError(t, err)
	assert.Equal(t, 0.7, loaded.Anger)
}

func TestLoadState_AbsentIdentity(t *testing.T) {
	store := newTestStore(t)

	state, characterID, err := store.LoadState(context.Background(),
		models.CharacterIdentity{Name: "Nobody", BookSource: "nowhere", UserID: "u1"})
	require.NoError(t, err)
	assert.Nil(t, state)
	assert.Empty(t, characterID)
}

func TestStateIsolatedPerIdentity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := models.CharacterIdentity{Name: "Watson", BookSource: "sherlock", UserID: "u1"}
	b := models.CharacterIdentity{Name: "Watson", BookSource: "sherlock", UserID: "u2"}

	stateA := models.NewEmotionState()
	stateA.Fear = 0.9
	idA, err := store.SaveState(ctx, a, stateA)
	require.NoError(t, err)

	idB, err := store.SaveState(ctx, b, models.NewEmotionState())
	require.NoError(t, err)
	assert.NotEqual(t, idA, idB)

	loadedB, _, err := store.LoadState(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, 0.0, loadedB.Fear)
}

func TestHistory_OrderFilterAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ident := models.CharacterIdentity{Name: "Alice", BookSource: "wonderland", UserID: "u1"}

	characterID, err := store.SaveState(ctx, ident, models.NewEmotionState())
	require.NoError(t, err)

	conv1, err := store.CreateConversation(ctx, characterID, "u1")
	require.NoError(t, err)
	conv2, err := store.CreateConversation(ctx, characterID, "u2")
	require.NoError(t, err)

	require.NoError(t, store.AppendMessage(ctx, conv1, "user", "first"))
	require.NoError(t, store.AppendMessage(ctx, conv1, "Assistant", "second"))
	require.NoError(t, store.AppendMessage(ctx, conv2, "user", "other user"))

	turns, err := store.History(ctx, characterID, "u1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "first", turns[0].Content)
	assert.Equal(t, "second", turns[1].Content)
	// Roles are normalized to lowercase on write.
	assert.Equal(t, "assistant", turns[1].Role)

	all, err := store.History(ctx, characterID, "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := store.History(ctx, characterID, "u1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "first", limited[0].Content)
}

func TestSearchMentions_NewestFirstLimitFive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ident := models.CharacterIdentity{Name: "Alice", BookSource: "wonderland", UserID: "u1"}

	characterID, err := store.SaveState(ctx, ident, models.NewEmotionState())
	require.NoError(t, err)
	conv, err := store.CreateConversation(ctx, characterID, "u1")
	require.NoError(t, err)

	for i := 1; i <= 7; i++ {
		require.NoError(t, store.AppendMessage(ctx, conv, "user", fmt.Sprintf("Bob did thing %d", i)))
	}
	require.NoError(t, store.AppendMessage(ctx, conv, "user", "unrelated message"))

	turns, err := store.SearchMentions(ctx, characterID, "bob", 0)
	require.NoError(t, err)
	require.Len(t, turns, 5)
	assert.Equal(t, "Bob did thing 7", turns[0].Content)
	assert.Equal(t, "Bob did thing 3", turns[4].Content)
}

func TestSearchMentions_CaseInsensitive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ident := models.CharacterIdentity{Name: "Alice", BookSource: "wonderland", UserID: "u1"}

	characterID, err := store.SaveState(ctx, ident, models.NewEmotionState())
	require.NoError(t, err)
	conv, err := store.CreateConversation(ctx, characterID, "u1")
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, conv, "user", "I met BOB yesterday"))

	turns, err := store.SearchMentions(ctx, characterID, "Bob", 5)
	require.NoError(t, err)
	require.Len(t, turns, 1)
}

func TestMemory_SaveLoadOverwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMemory(ctx, "char-1", "favorite_color", "blue"))

	value, err := store.LoadMemory(ctx, "char-1", "favorite_color")
	require.NoError(t, err)
	assert.Equal(t, "blue", value)

	require.NoError(t, store.SaveMemory(ctx, "char-1", "favorite_color", "green"))
	value, err = store.LoadMemory(ctx, "char-1", "favorite_color")
	require.NoError(t, err)
	assert.Equal(t, "green", value)

	absent, err := store.LoadMemory(ctx, "char-1", "never_set")
	require.NoError(t, err)
	assert.Empty(t, absent)
}
