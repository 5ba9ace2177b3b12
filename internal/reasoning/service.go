// Package reasoning provides the language-generation backend the negotiation
// engine calls for every agent turn. The production implementation is an
// OpenAI-compatible chat completions client; MockService offers a scripted
// deterministic stand-in.
package reasoning

import (
	"context"
	"encoding/json"
)

// ResponseSchema names the JSON schema a structured generation must satisfy.
type ResponseSchema struct {
	Name   string
	Schema json.RawMessage
}

// Service generates agent turns. Generate returns free text for a
// conversation; GenerateStructured constrains the reply to a JSON schema and
// unmarshals it into target.
type Service interface {
	Generate(ctx context.Context, messages []ChatMessage) (string, error)
	GenerateStructured(ctx context.Context, messages []ChatMessage, schema ResponseSchema, target interface{}) error
}
