package command

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
)

// DefaultPrefix is the wake word every command starts with.
const DefaultPrefix = "Drone"

// Grammar is "<Prefix> <one of Choices>", the only utterance shape the
// recognizer accepts.
type Grammar struct {
	Prefix  string
	Choices []string
	Culture string

	vocab *Vocabulary
}

// NewGrammar builds the grammar over every phrase in vocab.
func NewGrammar(prefix string, vocab *Vocabulary) (*Grammar, error) {
	if vocab == nil || vocab.Len() == 0 {
		return nil, domain.ErrNoVocabulary
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || strings.ContainsAny(prefix, " \t\n") {
		return nil, fmt.Errorf("%w: prefix must be a single word, got %q", domain.ErrConfiguration, prefix)
	}
	return &Grammar{
		Prefix:  prefix,
		Choices: vocab.Phrases(),
		Culture: "en-US",
		vocab:   vocab,
	}, nil
}

// Vocabulary returns the table the grammar was built from.
func (g *Grammar) Vocabulary() *Vocabulary { return g.vocab }

// Match checks text against "^<Prefix> (.*)$" and returns the phrase
// portion. The prefix is matched exactly; the phrase may be anything on
// a single line, including empty.
func (g *Grammar) Match(text string) (string, bool) {
	return matchPrefix(g.Prefix, text)
}

func matchPrefix(prefix, text string) (string, bool) {
	head := prefix + " "
	if !strings.HasPrefix(text, head) {
		return "", false
	}
	rest := text[len(head):]
	if strings.ContainsRune(rest, '\n') {
		return "", false
	}
	return rest, true
}

// Canonical maps a free-form transcript such as "drone, take off." or
// "Drone mayday!" onto the grammar text "Drone Take off" / "Drone May day".
// Case, punctuation and the spacing inside a phrase are ignored.
func (g *Grammar) Canonical(transcript string) (string, bool) {
	words := normalizeWords(transcript)
	if len(words) < 2 || words[0] != fold(g.Prefix) {
		return "", false
	}
	spoken := strings.Join(words[1:], "")
	for _, choice := range g.Choices {
		if strings.Join(normalizeWords(choice), "") == spoken {
			return g.Prefix + " " + choice, true
		}
	}
	return "", false
}

// Prompt is a hint for transcribers that accept one: every grammar
// sentence, punctuated.
func (g *Grammar) Prompt() string {
	var b strings.Builder
	for i, c := range g.Choices {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s %s.", g.Prefix, c)
	}
	return b.String()
}

// normalizeWords folds case and splits on anything that is not a letter
// or digit.
func normalizeWords(s string) []string {
	return strings.FieldsFunc(fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
