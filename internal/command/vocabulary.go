// Package command maps recognized speech to voice commands: the phrase
// vocabulary, the wake-word grammar, and the interpreter that gates each
// recognition on rate and confidence.
package command

import (
	"fmt"
	"strings"

	"github.com/iancoleman/orderedmap"
	"golang.org/x/text/cases"

	"github.com/hammamikhairi/kinectdrone/internal/domain"
)

// Entry is one phrase of the vocabulary.
type Entry struct {
	Phrase  string
	Command domain.VoiceCommand
}

// DefaultEntries is the built-in vocabulary.
var DefaultEntries = []Entry{
	{"Take off", domain.TakeOff},
	{"Land", domain.Land},
	{"May day", domain.EmergencyLanding},
}

// Vocabulary is an ordered phrase → command table. Phrases are unique
// under case folding. A Vocabulary is immutable once built and safe for
// concurrent reads.
type Vocabulary struct {
	phrases *orderedmap.OrderedMap // display phrase → domain.VoiceCommand
	folded  map[string]string      // folded phrase → display phrase
}

// NewVocabulary builds a table from entries, keeping their order.
func NewVocabulary(entries ...Entry) (*Vocabulary, error) {
	if len(entries) == 0 {
		return nil, domain.ErrNoVocabulary
	}

	v := &Vocabulary{
		phrases: orderedmap.New(),
		folded:  make(map[string]string, len(entries)),
	}
	for _, e := range entries {
		phrase := strings.TrimSpace(e.Phrase)
		if phrase == "" {
			return nil, fmt.Errorf("%w: empty phrase for %s", domain.ErrConfiguration, e.Command)
		}
		if e.Command == domain.Unknown {
			return nil, fmt.Errorf("%w: phrase %q maps to Unknown", domain.ErrConfiguration, phrase)
		}
		key := fold(phrase)
		if prev, ok := v.folded[key]; ok {
			return nil, fmt.Errorf("%w: %q and %q", domain.ErrDuplicatePhrase, prev, phrase)
		}
		v.folded[key] = phrase
		v.phrases.Set(phrase, e.Command)
	}
	return v, nil
}

// DefaultVocabulary returns the built-in "Take off" / "Land" / "May day" table.
func DefaultVocabulary() *Vocabulary {
	v, err := NewVocabulary(DefaultEntries...)
	if err != nil {
		panic(err) // built-in table is static
	}
	return v
}

// Lookup finds the command for phrase, ignoring case.
func (v *Vocabulary) Lookup(phrase string) (domain.VoiceCommand, bool) {
	if v == nil {
		return domain.Unknown, false
	}
	display, ok := v.folded[fold(phrase)]
	if !ok {
		return domain.Unknown, false
	}
	cmd, _ := v.phrases.Get(display)
	return cmd.(domain.VoiceCommand), true
}

// Phrases returns the phrases in table order.
func (v *Vocabulary) Phrases() []string {
	return v.phrases.Keys()
}

// Entries returns the table in order.
func (v *Vocabulary) Entries() []Entry {
	keys := v.phrases.Keys()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		cmd, _ := v.phrases.Get(k)
		out = append(out, Entry{Phrase: k, Command: cmd.(domain.VoiceCommand)})
	}
	return out
}

// Len returns the number of phrases.
func (v *Vocabulary) Len() int { return len(v.folded) }

// fold applies locale-independent full Unicode case folding. A Caser
// is stateful, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}
