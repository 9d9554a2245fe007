package llm

import "errors"

var (
	// ErrNoJSON is returned when no JSON value can be recovered from a reply.
	ErrNoJSON = errors.New("no JSON found in response")

	// ErrNoCode is returned when a reply contains no fenced code block.
	ErrNoCode = errors.New("no code block found in response")

	// ErrAPIKeyMissing is returned by providers that need a key.
	ErrAPIKeyMissing = errors.New("API key not configured")

	// ErrEmptyResponse is returned when the service answers with no content.
	ErrEmptyResponse = errors.New("no completion returned")

	// ErrUnknownProvider is returned by NewClient for unsupported providers.
	ErrUnknownProvider = errors.New("unknown LLM provider")
)
