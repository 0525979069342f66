// Package util provides small helpers shared across LaunchPipe components.
package util

import (
	"math/rand"
	"strings"
)

const hexChars = "0123456789abcdef"

// GenerateRandomID returns prefix followed by hexLength random hex characters.
// The ids are not secret; they only need to avoid collisions between live sessions.
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex returns length random hex characters.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(hexChars[rand.Intn(len(hexChars))])
	}
	return b.String()
}

// GenerateSessionID returns an id for an interactive session.
func GenerateSessionID() string {
	return GenerateRandomID("s", 10)
}
