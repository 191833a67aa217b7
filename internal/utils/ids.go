package utils

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateNanoIDWithPrefix returns an id like "run_8f2k..." with the given
// prefix and random part length
func GenerateNanoIDWithPrefix(prefix string, length int) string {
	id, err := gonanoid.Generate(idAlphabet, length)
	if err != nil {
		// gonanoid only fails when the platform RNG is broken
		panic(fmt.Sprintf("nanoid generation failed: %v", err))
	}
	return fmt.Sprintf("%s_%s", prefix, id)
}
