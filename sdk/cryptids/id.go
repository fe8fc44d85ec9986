// Package cryptids generates short random identifiers from crypto/rand.
package cryptids

import (
	"crypto/rand"
	"fmt"
)

var (
	// IDAlphabet deliberately omits most vowels so generated ids never
	// spell words.
	IDAlphabet = "bcdfghjklmnpqrstvwxyZBCDFGHJKLMNPQRSTVWXYZ0123456789"
	IDLength   = 18
)

// GenerateID creates a random id using the package defaults.
func GenerateID() (string, error) {
	return generateID(IDAlphabet, IDLength)
}

// GenerateCustomID creates a random id with the given alphabet and length.
func GenerateCustomID(alphabet string, size int) (string, error) {
	return generateID(alphabet, size)
}

func generateID(alphabet string, size int) (string, error) {
	if len(alphabet) < 2 {
		return "", fmt.Errorf("alphabet must contain at least 2 characters")
	}
	if size < 1 {
		return "", fmt.Errorf("size must be at least 1")
	}

	// Mask to the next power of two above the alphabet length and reject
	// out-of-range bytes. Rejection keeps the character distribution uniform.
	mask := 1
	for mask < len(alphabet) {
		mask = (mask << 1) | 1
	}

	// Read more bytes than strictly needed so a few rejections rarely cost
	// a second rand.Read call.
	step := int(float64(size) * 1.6)
	if step < size {
		step = size
	}

	id := make([]byte, size)
	buf := make([]byte, step)

	written := 0
	for written < size {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}

		for i := 0; i < len(buf) && written < size; i++ {
			idx := int(buf[i]) & mask
			if idx >= len(alphabet) {
				continue
			}
			id[written] = alphabet[idx]
			written++
		}
	}

	return string(id), nil
}
