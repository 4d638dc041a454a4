package speech

import (
	"regexp"
	"strings"
)

// annotation matches whisper environmental annotations like
// "(keyboard clicking)", "[BLANK_AUDIO]" or "[Music]".
var annotation = regexp.MustCompile(`[\(\[][a-zA-Z][a-zA-Z_\s]*[\)\]]`)

// timestamp matches a leading "[00:00:00.000 --> 00:00:02.000]".
var timestamp = regexp.MustCompile(`^\[[0-9:.]+\s*-->\s*[0-9:.]+\]`)

// hallucinations are whole transcripts whisper produces on silence or
// noise.
var hallucinations = []string{
	"...",
	"you",
	"thank you.",
	"thank you",
	"thanks for watching!",
	"thank you for watching.",
	"bye.",
	"bye!",
	"the end.",
}

// cleanTranscript strips whisper artifacts, collapses whitespace and
// drops known hallucinations. It returns "" when nothing usable is left.
func cleanTranscript(s string) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
	s = strings.TrimSpace(s)
	s = timestamp.ReplaceAllString(s, "")
	s = annotation.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")

	lower := strings.ToLower(s)
	for _, h := range hallucinations {
		if lower == h {
			return ""
		}
	}
	return s
}
