// internal/services/chat_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Tsegaye16/BookCompanion/internal/models"
	"github.com/Tsegaye16/BookCompanion/internal/utils"
)

// ChatService runs the conversation pipeline: emotion simulation and
// mention resolution in parallel, then context assembly, generation and
// persistence.
type ChatService struct {
	Character     *CharacterService
	Mentions      *MentionService
	Sessions      *SessionService
	Conversations ConversationStore
	Retriever     DocumentRetriever
	LLM           TextCompleter
	Metrics       *utils.MetricsCollector
}

// NewChatService wires the pipeline from its collaborators.
func NewChatService(character *CharacterService, mentions *MentionService, sessions *SessionService,
	conversations ConversationStore, retriever DocumentRetriever, llm TextCompleter,
	metrics *utils.MetricsCollector) *ChatService {
	return &ChatService{
		Character:     character,
		Mentions:      mentions,
		Sessions:      sessions,
		Conversations: conversations,
		Retriever:     retriever,
		LLM:           llm,
		Metrics:       metrics,
	}
}

// ProcessUserInput runs one full conversation turn. The returned result
// always carries a response and a usable state; model failures degrade to
// an apologetic reply rather than an error. sessionID is used only for
// anonymous users, whose turns are buffered in memory and never persisted.
func (s *ChatService) ProcessUserInput(ctx context.Context, userInput string, ident models.CharacterIdentity, sessionID string) (*models.ChatResult, error) {
	started := time.Now()
	if s.Metrics != nil {
		s.Metrics.IncrementCounter("chat_turns_total")
		defer func() { s.Metrics.ObserveDuration("chat_turn", time.Since(started)) }()
	}

	state, characterID, err := s.Character.GetOrCreateState(ctx, ident)
	if err != nil {
		return nil, err
	}

	// Emotion simulation and mention resolution are independent of each
	// other; run them concurrently before assembly.
	emotionDone := make(chan *models.EmotionState, 1)
	mentionDone := make(chan string, 1)

	go func() {
		emotionDone <- s.Character.NextEmotionState(ctx, userInput, state)
	}()

	go func() {
		query, err := s.Mentions.Resolve(ctx, characterID, userInput)
		if err != nil {
			utils.GetLogger().Warn("Mention resolution failed, continuing without history context",
				map[string]interface{}{"character": ident.Name, "err": err.Error()})
			mentionDone <- ""
			return
		}
		mentionDone <- s.Mentions.FormatContext(query)
	}()

	docContext := s.retrieveDocuments(ctx, userInput)
	historyContext := <-mentionDone

	prompt := buildAnswerPrompt(ident.Name, docContext, historyContext, userInput)

	responseText, genErr := s.LLM.CompleteText(ctx, prompt, "", 0.3)
	if genErr != nil {
		utils.GetLogger().Error("Response generation failed", map[string]interface{}{
			"character": ident.Name,
			"err":       genErr.Error(),
		})
		if s.Metrics != nil {
			s.Metrics.IncrementCounter("chat_generation_failures_total")
		}
		responseText = fmt.Sprintf("I can't process that right now. Error: %v", genErr)
	}

	updatedState := <-emotionDone

	// Persistence is the last step so a canceled turn leaves the store
	// untouched.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if _, err := s.Character.SaveState(ctx, ident, updatedState); err != nil {
		utils.GetLogger().Error("Failed to persist updated state", map[string]interface{}{
			"character": ident.Name,
			"err":       err.Error(),
		})
	}

	if ident.IsAnonymous() {
		s.Sessions.BufferTurn(sessionID, models.RoleUser, userInput)
		s.Sessions.BufferTurn(sessionID, models.RoleAssistant, responseText)
	} else {
		s.persistTurn(ctx, characterID, ident.UserID, userInput, responseText)
	}

	return &models.ChatResult{
		Character: ident.Name,
		Response:  responseText,
		State:     updatedState,
		Groups:    updatedState.DisplayRows(),
	}, nil
}

func (s *ChatService) retrieveDocuments(ctx context.Context, query string) string {
	if s.Retriever == nil {
		return ""
	}
	chunks, err := s.Retriever.SimilaritySearch(ctx, query)
	if err != nil {
		utils.GetLogger().Warn("Document retrieval failed, continuing without book context",
			map[string]interface{}{"err": err.Error()})
		return ""
	}
	return strings.Join(chunks, "\n\n")
}

func (s *ChatService) persistTurn(ctx context.Context, characterID, userID, userInput, responseText string) {
	conversationID, err := s.Conversations.CreateConversation(ctx, characterID, userID)
	if err != nil {
		utils.GetLogger().Error("Failed to create conversation", map[string]interface{}{"err": err.Error()})
		return
	}
	if err := s.Conversations.AppendMessage(ctx, conversationID, models.RoleUser, userInput); err != nil {
		utils.GetLogger().Error("Failed to persist user turn", map[string]interface{}{"err": err.Error()})
		return
	}
	if err := s.Conversations.AppendMessage(ctx, conversationID, models.RoleAssistant, responseText); err != nil {
		utils.GetLogger().Error("Failed to persist assistant turn", map[string]interface{}{"err": err.Error()})
	}
}

// buildAnswerPrompt assembles the in-character answer prompt. Book context
// precedes conversation history; both may be empty, leaving a persona-only
// prompt. The emotion state is deliberately absent here.
func buildAnswerPrompt(characterName, docContext, historyContext, question string) string {
	return fmt.Sprintf(`You are %s, a character from a book. Respond naturally to questions while staying in character.

When asked about someone (like "Tell me about someone"), summarize what you've learned about them from the [Conversation History].
Include details like their general behavior or any relevant information gleaned from previous interactions, but DO NOT reveal any personally identifiable information (PII) such as specific addresses, phone numbers, email addresses, or ages.
If there are no mentions in the [Conversation History], state that you don't have enough information to provide a summary.
If there are mentions in the [Book Context] and not in the [Conversation History], use the book context to provide general information, excluding PII.

[Book Context]:
%s

[Conversation History]:
%s

Current Question:
%s

Answer:`, characterName, docContext, historyContext, question)
}
