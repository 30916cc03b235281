// internal/models/character.go
package models

// CharacterIdentity identifies one character instance. The same name under a
// different book source is a distinct entity with an independent emotional
// state, and identified users each get their own divergent copy.
type CharacterIdentity struct {
	Name       string `json:"name"`
	BookSource string `json:"book_source"`
	UserID     string `json:"user_id,omitempty"`
}

// AnonymousUser marks an ephemeral, unauthenticated session. The
// conversation log for anonymous users is never persisted; their character
// state is, under this shared user id.
const AnonymousUser = "anonymous"

// IsAnonymous reports whether the identity belongs to an ephemeral session.
func (id CharacterIdentity) IsAnonymous() bool {
	return id.UserID == "" || id.UserID == AnonymousUser
}

// ChatResult is what one processed user message yields: the generated reply
// plus the character's updated emotional state. The state is carried as
// metadata for display and is not part of the generation prompt.
type ChatResult struct {
	Character string         `json:"character"`
	Response  string         `json:"response"`
	State     *EmotionState  `json:"state"`
	Groups    []EmotionGroup `json:"emotion_display,omitempty"`
}
