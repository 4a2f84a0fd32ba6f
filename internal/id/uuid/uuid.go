// Package uuid provides ID generation helpers.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Generator creates batch and record identifiers.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a short batch ID: the first eight hex characters of a v4
// UUID. Short ids keep snapshot names and log lines readable; the collision
// odds are acceptable at daily-batch scale.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid4: %w", err)
	}
	return strings.ReplaceAll(id.String(), "-", "")[:8], nil
}

// NewLongID returns a full UUID v7 string for callers that need ordered,
// collision-free identifiers.
func (Generator) NewLongID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
