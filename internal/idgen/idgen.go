// Package idgen generates batch run identifiers backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// RunPrefix is prepended to every run ID.
var RunPrefix = "run-"

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const length = 12

// NewRunID returns a new unique run ID.
func NewRunID() (string, error) {
	id, err := nanoid.Generate(alphabet, length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return RunPrefix + id, nil
}
