package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// audioFileNamePattern matches names produced by AudioFileName. The serving
// endpoint only exposes files matching this pattern, which also keeps path
// traversal out of the audio directory.
var audioFileNamePattern = regexp.MustCompile(`^voice_[A-Za-z0-9_-]+_[0-9a-f-]{36}\.mp3$`)

// AudioFileName builds a globally unique MP3 file name for a synthesized
// reply. Uniqueness comes from a random UUID per call, so repeated
// synthesis for the same user and text never overwrites an earlier file.
func AudioFileName(userID string) string {
	return fmt.Sprintf("voice_%s_%s.mp3", sanitizeID(userID), uuid.NewString())
}

// IsAudioFileName reports whether name looks like a generated audio file name.
func IsAudioFileName(name string) bool {
	return audioFileNamePattern.MatchString(name)
}

// sanitizeID reduces an opaque user identifier to file-name-safe characters.
func sanitizeID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "anon"
	}
	return b.String()
}
