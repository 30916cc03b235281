// internal/models/emotion.go
package models

// EmotionState holds the emotional and cognitive parameters of a character.
// The model combines dimensional affect (arousal, valence, dominance) with
// basic emotion intensities and psi-theory style cognitive modulators.
// Every field lives on the closed interval [0.0, 1.0].
type EmotionState struct {
	// Core dimensions
	Arousal   float64 `json:"arousal"`
	Valence   float64 `json:"valence"`
	Dominance float64 `json:"dominance"`

	// Basic emotions
	Sadness float64 `json:"sadness"`
	Anger   float64 `json:"anger"`
	Joy     float64 `json:"joy"`
	Fear    float64 `json:"fear"`

	// Cognitive parameters
	SelectionThreshold float64 `json:"selection_threshold"`
	ResolutionLevel    float64 `json:"resolution_level"`
	GoalDirectedness   float64 `json:"goal_directedness"`
	SecuringRate       float64 `json:"securing_rate"`
}

// EmotionKeys lists the wire keys of all eleven parameters in canonical order.
var EmotionKeys = []string{
	"arousal", "valence", "dominance",
	"sadness", "anger", "joy", "fear",
	"selection_threshold", "resolution_level", "goal_directedness", "securing_rate",
}

// NewEmotionState returns the neutral default state: dimensional and
// cognitive parameters at the 0.5 midpoint, basic emotions absent.
func NewEmotionState() *EmotionState {
	return &EmotionState{
		Arousal:            0.5,
		Valence:            0.5,
		Dominance:          0.5,
		SelectionThreshold: 0.5,
		ResolutionLevel:    0.5,
		GoalDirectedness:   0.5,
		SecuringRate:       0.5,
	}
}

// Apply merges the provided values into the state. Only keys present in the
// map are overwritten; unknown keys are ignored. Values are written as-is:
// clamping is an accessor concern (DisplayRows, fallback perturbation), not
// a mutator concern, so out-of-range model output persists unclamped.
func (s *EmotionState) Apply(values map[string]float64) {
	if v, ok := values["arousal"]; ok {
		s.Arousal = v
	}
	if v, ok := values["valence"]; ok {
		s.Valence = v
	}
	if v, ok := values["dominance"]; ok {
		s.Dominance = v
	}
	if v, ok := values["sadness"]; ok {
		s.Sadness = v
	}
	if v, ok := values["anger"]; ok {
		s.Anger = v
	}
	if v, ok := values["joy"]; ok {
		s.Joy = v
	}
	if v, ok := values["fear"]; ok {
		s.Fear = v
	}
	if v, ok := values["selection_threshold"]; ok {
		s.SelectionThreshold = v
	}
	if v, ok := values["resolution_level"]; ok {
		s.ResolutionLevel = v
	}
	if v, ok := values["goal_directedness"]; ok {
		s.GoalDirectedness = v
	}
	if v, ok := values["securing_rate"]; ok {
		s.SecuringRate = v
	}
}

// Values returns all eleven parameters keyed by wire name, unclamped.
func (s *EmotionState) Values() map[string]float64 {
	return map[string]float64{
		"arousal":             s.Arousal,
		"valence":             s.Valence,
		"dominance":           s.Dominance,
		"sadness":             s.Sadness,
		"anger":               s.Anger,
		"joy":                 s.Joy,
		"fear":                s.Fear,
		"selection_threshold": s.SelectionThreshold,
		"resolution_level":    s.ResolutionLevel,
		"goal_directedness":   s.GoalDirectedness,
		"securing_rate":       s.SecuringRate,
	}
}

// EmotionRow is one presentable (label, value) pair.
type EmotionRow struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// EmotionGroup groups rows for presentation.
type EmotionGroup struct {
	Name string       `json:"name"`
	Rows []EmotionRow `json:"rows"`
}

// DisplayRows renders the state as ordered presentation groups. Values are
// clamped to [0,1] here regardless of what is stored, since the update path
// deliberately leaves model-supplied values untouched.
func (s *EmotionState) DisplayRows() []EmotionGroup {
	return []EmotionGroup{
		{
			Name: "Core Dimensions",
			Rows: []EmotionRow{
				{Label: "Arousal", Value: Clamp01(s.Arousal)},
				{Label: "Valence", Value: Clamp01(s.Valence)},
				{Label: "Dominance", Value: Clamp01(s.Dominance)},
			},
		},
		{
			Name: "Basic Emotions",
			Rows: []EmotionRow{
				{Label: "Sadness", Value: Clamp01(s.Sadness)},
				{Label: "Anger", Value: Clamp01(s.Anger)},
				{Label: "Joy", Value: Clamp01(s.Joy)},
				{Label: "Fear", Value: Clamp01(s.Fear)},
			},
		},
		{
			Name: "Cognitive Traits",
			Rows: []EmotionRow{
				{Label: "Selection Threshold", Value: Clamp01(s.SelectionThreshold)},
				{Label: "Resolution Level", Value: Clamp01(s.ResolutionLevel)},
				{Label: "Goal Directedness", Value: Clamp01(s.GoalDirectedness)},
				{Label: "Securing Rate", Value: Clamp01(s.SecuringRate)},
			},
		},
	}
}

// Clamp01 bounds v to the closed interval [0.0, 1.0].
func Clamp01(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}
