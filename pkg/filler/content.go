package filler

import (
	"crypto/rand"
	"errors"
	"fmt"

	"diskfiller/pkg/types"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

var ErrChunkTooLarge = errors.New("chunk size too large")

// NewBlock returns chunkMiB MiB of random alphanumeric text. A run
// generates one block and writes it to every filler file.
func NewBlock(chunkMiB int64) ([]byte, error) {
	if chunkMiB <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d MiB", chunkMiB)
	}
	if chunkMiB > types.MaxChunkMiB {
		return nil, fmt.Errorf("%w: %d MiB", ErrChunkTooLarge, chunkMiB)
	}

	block := make([]byte, chunkMiB*types.MiB)
	if _, err := rand.Read(block); err != nil {
		return nil, fmt.Errorf("failed to generate content block: %w", err)
	}
	for i, b := range block {
		block[i] = alphabet[int(b)%len(alphabet)]
	}

	return block, nil
}
