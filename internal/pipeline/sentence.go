package pipeline

import "strings"

// sentenceBuffer accumulates streamed tokens and splits at sentence
// boundaries so synthesis can start before the full response exists.
type sentenceBuffer struct {
	buf strings.Builder
}

// Add appends a token and returns a completed sentence once the
// accumulated text crosses a boundary. Returns empty string while a
// sentence is still forming.
func (s *sentenceBuffer) Add(token string) string {
	s.buf.WriteString(token)
	complete, remainder := splitAtBoundary(s.buf.String())
	if complete == "" {
		return ""
	}
	s.buf.Reset()
	s.buf.WriteString(remainder)
	return complete
}

// Flush returns whatever is still buffered, trimmed. End of stream counts
// as a boundary for the final partial sentence.
func (s *sentenceBuffer) Flush() string {
	text := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	return text
}

var sentenceEnders = map[byte]bool{'.': true, '!': true, '?': true}

// splitAtBoundary finds the last sentence boundary in text. A boundary is
// an ender (.!?) followed by whitespace, or a newline, so list-style model
// output flushes line by line. Returns (completeSentences, remainder); no
// boundary returns ("", text). A trailing ender does not split: more of the
// sentence may still be streaming.
func splitAtBoundary(text string) (string, string) {
	lastIdx := -1
	for i := range len(text) {
		if text[i] == '\n' {
			lastIdx = i + 1
			continue
		}
		if i+1 < len(text) && sentenceEnders[text[i]] && isWordBoundary(text[i+1]) {
			lastIdx = i + 1
		}
	}
	if lastIdx < 0 {
		return "", text
	}
	complete := strings.TrimSpace(text[:lastIdx])
	if complete == "" {
		return "", text
	}
	return complete, text[lastIdx:]
}

func isWordBoundary(ch byte) bool {
	return ch == ' ' || ch == '\n' || ch == '\t'
}
