package build

import (
	"context"
	"log"
)

// Prompt is how a build talks to the person who started it.
type Prompt interface {
	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, message string) (bool, error)
	Info(message string)
	Error(message string)
}

// AutoPrompt answers every confirmation with Answer and writes notices to the
// process log. Servers use it with the caller's overwrite flag.
type AutoPrompt struct {
	Answer bool
}

func (p AutoPrompt) Confirm(_ context.Context, message string) (bool, error) {
	log.Printf("build: %s (answering %t)", message, p.Answer)
	return p.Answer, nil
}

func (AutoPrompt) Info(message string)  { log.Printf("build: %s", message) }
func (AutoPrompt) Error(message string) { log.Printf("build: error: %s", message) }
