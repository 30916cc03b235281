// internal/services/mention_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tsegaye16/BookCompanion/internal/models"
	"github.com/Tsegaye16/BookCompanion/internal/utils"
)

// triggerPhrases mark an input as asking about a third party. Matching is
// case-insensitive containment anywhere in the input.
var triggerPhrases = []string{
	"tell me about",
	"you know",
	"describe",
	"who is",
}

const (
	mentionSearchLimit = 5
	mentionExclusion   = "did you know"
)

// NameExtractor pulls the mentioned person's name out of a question.
// Implementations return "" when no name is present.
type NameExtractor interface {
	ExtractName(ctx context.Context, question string) (string, error)
}

// LLMNameExtractor asks the model for the name, with a literal "None"
// sentinel for the no-name case.
type LLMNameExtractor struct {
	LLM TextCompleter
}

func (e *LLMNameExtractor) ExtractName(ctx context.Context, question string) (string, error) {
	prompt := fmt.Sprintf(`Extract the full name of the person mentioned in the following question. If no name is mentioned, return 'None'.

Question: %s

Name:`, question)

	raw, err := e.LLM.CompleteText(ctx, prompt, "", 0.1)
	if err != nil {
		return "", err
	}

	name := strings.TrimSpace(raw)
	name = strings.Trim(name, " .")
	if name == "None" || name == "" {
		return "", nil
	}
	return name, nil
}

// HeuristicNameExtractor slices the text after a marker phrase. It is the
// zero-cost fallback when no model is configured.
type HeuristicNameExtractor struct{}

var heuristicMarkers = []string{
	"tell me about",
	"who is",
	"describe",
	"do you know",
	"you know",
}

func (e *HeuristicNameExtractor) ExtractName(ctx context.Context, question string) (string, error) {
	lower := strings.ToLower(question)
	for _, marker := range heuristicMarkers {
		idx := strings.Index(lower, marker)
		if idx == -1 {
			continue
		}
		candidate := question[idx+len(marker):]
		candidate = strings.Trim(candidate, " ?.!,'\"")
		if candidate != "" {
			return candidate, nil
		}
	}
	return "", nil
}

// ReadinessExtractor delegates to the model-backed extractor while the LLM
// service reports ready and to the heuristic otherwise. A provider bound at
// runtime through the settings API takes effect on the next request.
type ReadinessExtractor struct {
	Ready     func() bool
	Model     NameExtractor
	Heuristic NameExtractor
}

// NewReadinessExtractor builds the switching extractor over the service.
func NewReadinessExtractor(llm *LLMService) *ReadinessExtractor {
	return &ReadinessExtractor{
		Ready:     llm.IsReady,
		Model:     &LLMNameExtractor{LLM: llm},
		Heuristic: &HeuristicNameExtractor{},
	}
}

func (e *ReadinessExtractor) ExtractName(ctx context.Context, question string) (string, error) {
	if e.Ready != nil && e.Ready() {
		return e.Model.ExtractName(ctx, question)
	}
	return e.Heuristic.ExtractName(ctx, question)
}

// MentionService resolves third-party mentions against the character's
// conversation log.
type MentionService struct {
	Conversations ConversationStore
	Extractor     NameExtractor
}

// NewMentionService creates the service. A nil extractor falls back to the
// heuristic one.
func NewMentionService(conversations ConversationStore, extractor NameExtractor) *MentionService {
	if extractor == nil {
		extractor = &HeuristicNameExtractor{}
	}
	return &MentionService{
		Conversations: conversations,
		Extractor:     extractor,
	}
}

// HasTrigger reports whether the input asks about a third party.
func (s *MentionService) HasTrigger(input string) bool {
	lower := strings.ToLower(input)
	for _, phrase := range triggerPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Resolve finds prior mentions of whoever the input asks about. A nil
// result with nil error means the input needs no mention context. Name
// extraction failure degrades to no mention; a store failure is returned
// so the caller can log it and continue without context.
func (s *MentionService) Resolve(ctx context.Context, characterID, input string) (*models.MentionQuery, error) {
	if !s.HasTrigger(input) {
		return nil, nil
	}

	name, err := s.Extractor.ExtractName(ctx, input)
	if err != nil {
		utils.GetLogger().Warn("Name extraction failed", map[string]interface{}{"err": err.Error()})
		return nil, nil
	}
	if name == "" {
		return nil, nil
	}

	utils.GetLogger().Debug("Searching for mentions", map[string]interface{}{"name": name})

	turns, err := s.Conversations.SearchMentions(ctx, characterID, name, mentionSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search mentions of %s: %w", name, err)
	}

	lowerName := strings.ToLower(name)
	relevant := make([]models.ConversationTurn, 0, len(turns))
	for _, turn := range turns {
		lowerContent := strings.ToLower(turn.Content)
		if !strings.Contains(lowerContent, lowerName) {
			continue
		}
		if strings.Contains(lowerContent, mentionExclusion) {
			continue
		}
		relevant = append(relevant, turn)
	}

	return &models.MentionQuery{Name: name, Turns: relevant}, nil
}

// FormatContext renders a mention query as the history block fed to the
// answer prompt. Empty queries render as "".
func (s *MentionService) FormatContext(q *models.MentionQuery) string {
	if q == nil || len(q.Turns) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Previous mentions of %s:\n", q.Name)
	for _, turn := range q.Turns {
		fmt.Fprintf(&b, "- %s said: '%s'\n", turn.Role, turn.Content)
	}
	return b.String()
}
