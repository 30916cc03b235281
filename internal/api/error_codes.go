// internal/api/error_codes.go
package api

const (
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"

	ErrorCharacterNotFound = "CHARACTER_NOT_FOUND"
	ErrorChatFailed        = "CHAT_FAILED"

	ErrorLLMServiceUnavailable = "LLM_SERVICE_UNAVAILABLE"
	ErrorLLMConfigInvalid      = "LLM_CONFIG_INVALID"
)
