// internal/models/emotion_test.go
package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmotionState_Defaults(t *testing.T) {
	state := NewEmotionState()

	assert.Equal(t, 0.5, state.Arousal)
	assert.Equal(t, 0.5, state.Valence)
	assert.Equal(t, 0.5, state.Dominance)

	assert.Equal(t, 0.0, state.Sadness)
	assert.Equal(t, 0.0, state.Anger)
	assert.Equal(t, 0.0, state.Joy)
	assert.Equal(t, 0.0, state.Fear)

	assert.Equal(t, 0.5, state.SelectionThreshold)
	assert.Equal(t, 0.5, state.ResolutionLevel)
	assert.Equal(t, 0.5, state.GoalDirectedness)
	assert.Equal(t, 0.5, state.SecuringRate)
}

func TestApply_PartialUpdate(t *testing.T) {
	state := NewEmotionState()

	state.Apply(map[string]float64{
		"joy":     0.9,
		"valence": 0.8,
	})

	assert.Equal(t, 0.9, state.Joy)
	assert.Equal(t, 0.8, state.Valence)

	// Untouched keys keep their previous values.
	assert.Equal(t, 0.5, state.Arousal)
	assert.Equal(t, 0.0, state.Sadness)
	assert.Equal(t, 0.5, state.SelectionThreshold)
}

func TestApply_IgnoresUnknownKeys(t *testing.T) {
	state := NewEmotionState()

	state.Apply(map[string]float64{
		"charisma": 1.0,
		"anger":    0.4,
	})

	assert.Equal(t, 0.4, state.Anger)
	assert.Equal(t, map[string]float64{
		"arousal": 0.5, "valence": 0.5, "dominance": 0.5,
		"sadness": 0.0, "anger": 0.4, "joy": 0.0, "fear": 0.0,
		"selection_threshold": 0.5, "resolution_level": 0.5,
		"goal_directedness": 0.5, "securing_rate": 0.5,
	}, state.Values())
}

func TestApply_DoesNotClamp(t *testing.T) {
	state := NewEmotionState()

	state.Apply(map[string]float64{
		"arousal": 1.7,
		"sadness": -0.3,
	})

	// Stored values stay raw; clamping is the display path's concern.
	assert.Equal(t, 1.7, state.Arousal)
	assert.Equal(t, -0.3, state.Sadness)
}

func TestDisplayRows_GroupsAndClamping(t *testing.T) {
	state := NewEmotionState()
	state.Apply(map[string]float64{
		"arousal": 1.7,
		"sadness": -0.3,
		"joy":     0.8,
	})

	groups := state.DisplayRows()
	require.Len(t, groups, 3)

	assert.Equal(t, "Core Dimensions", groups[0].Name)
	assert.Equal(t, "Basic Emotions", groups[1].Name)
	assert.Equal(t, "Cognitive Traits", groups[2].Name)

	require.Len(t, groups[0].Rows, 3)
	require.Len(t, groups[1].Rows, 4)
	require.Len(t, groups[2].Rows, 4)

	assert.Equal(t, EmotionRow{Label: "Arousal", Value: 1.0}, groups[0].Rows[0])
	assert.Equal(t, EmotionRow{Label: "Sadness", Value: 0.0}, groups[1].Rows[0])
	assert.Equal(t, EmotionRow{Label: "Joy", Value: 0.8}, groups[1].Rows[2])
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-0.1))
	assert.Equal(t, 0.0, Clamp01(0.0))
	assert.Equal(t, 0.42, Clamp01(0.42))
	assert.Equal(t, 1.0, Clamp01(1.0))
	assert.Equal(t, 1.0, Clamp01(1.5))
}

func TestEmotionKeys_CoverValues(t *testing.T) {
	values := NewEmotionState().Values()
	require.Len(t, EmotionKeys, 11)
	for _, key := range EmotionKeys {
		_, ok := values[key]
		assert.True(t, ok, "missing key %s", key)
	}
}
