package pipeline

import "testing"

func TestSentenceBufferStreaming(t *testing.T) {
	var b sentenceBuffer

	tokens := []string{"Bonjour", ".", " Comment", " allez-vous?"}
	var complete []string
	for _, tok := range tokens {
		if s := b.Add(tok); s != "" {
			complete = append(complete, s)
		}
	}

	if len(complete) != 1 || complete[0] != "Bonjour." {
		t.Errorf("completed sentences = %q, want exactly [\"Bonjour.\"]", complete)
	}
	if rest := b.Flush(); rest != "Comment allez-vous?" {
		t.Errorf("Flush = %q, want %q", rest, "Comment allez-vous?")
	}
	if again := b.Flush(); again != "" {
		t.Errorf("second Flush = %q, want empty", again)
	}
}

func TestSplitAtBoundary(t *testing.T) {
	cases := []struct {
		name      string
		text      string
		complete  string
		remainder string
	}{
		{"no boundary", "Hello there", "", "Hello there"},
		{"trailing ender still streaming", "Hello.", "", "Hello."},
		{"ender then space", "Hello. There", "Hello.", " There"},
		{"ender then tab", "Done?\tnext", "Done?", "\tnext"},
		{"newline is a boundary", "- semer le blé\net", "- semer le blé", "et"},
		{"last boundary wins", "One. Two! Three? And", "One. Two! Three?", " And"},
		{"decimal point is not a boundary", "Il faut 2.5 kg", "", "Il faut 2.5 kg"},
		{"whitespace only head", "\n", "", "\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			complete, remainder := splitAtBoundary(tc.text)
			if complete != tc.complete || remainder != tc.remainder {
				t.Errorf("splitAtBoundary(%q) = (%q, %q), want (%q, %q)",
					tc.text, complete, remainder, tc.complete, tc.remainder)
			}
		})
	}
}

func TestSentenceBufferMultipleSentencesInOneToken(t *testing.T) {
	var b sentenceBuffer
	got := b.Add("Oui. Bien sûr. Et")
	if got != "Oui. Bien sûr." {
		t.Errorf("Add = %q, want both finished sentences", got)
	}
	if rest := b.Flush(); rest != "Et" {
		t.Errorf("Flush = %q, want %q", rest, "Et")
	}
}
