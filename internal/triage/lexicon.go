package triage

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var builtinLexicon []byte

// BuiltinSource is reported by Lexicon.Source for the embedded tables.
const BuiltinSource = "builtin"

// ErrEmptyLexicon is returned when a lexicon document defines none of the
// known phrase lists.
var ErrEmptyLexicon = errors.New("lexicon defines no phrase lists")

// Lexicon holds the phrase tables used by the matcher. A Lexicon is never
// modified after it has been loaded and may be shared between goroutines.
type Lexicon struct {
	Productive        []string `yaml:"productive"`
	SocialNicety      []string `yaml:"social_nicety"`
	Promotional       []string `yaml:"promotional"`
	AttachmentMention []string `yaml:"attachment_mention"`
	Greetings         []string `yaml:"greetings"`

	source string
}

var defaultLexicon = mustParseBuiltin()

func mustParseBuiltin() *Lexicon {
	var lex Lexicon
	if err := yaml.Unmarshal(builtinLexicon, &lex); err != nil {
		panic(fmt.Sprintf("triage: invalid builtin lexicon: %v", err))
	}
	lex.clean()
	lex.source = BuiltinSource
	return &lex
}

// DefaultLexicon returns the embedded Portuguese lexicon.
func DefaultLexicon() *Lexicon { return defaultLexicon }

// ParseLexicon decodes a YAML lexicon. Lists the document omits are taken
// from the built-in lexicon; a list given as [] disables that signal.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon: %w", err)
	}
	if lex.Productive == nil && lex.SocialNicety == nil && lex.Promotional == nil &&
		lex.AttachmentMention == nil && lex.Greetings == nil {
		return nil, ErrEmptyLexicon
	}

	base := DefaultLexicon()
	if lex.Productive == nil {
		lex.Productive = base.Productive
	}
	if lex.SocialNicety == nil {
		lex.SocialNicety = base.SocialNicety
	}
	if lex.Promotional == nil {
		lex.Promotional = base.Promotional
	}
	if lex.AttachmentMention == nil {
		lex.AttachmentMention = base.AttachmentMention
	}
	if lex.Greetings == nil {
		lex.Greetings = base.Greetings
	}

	lex.clean()
	return &lex, nil
}

// LoadLexicon reads a YAML lexicon from path.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon file: %w", err)
	}
	lex, err := ParseLexicon(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	lex.source = path
	return lex, nil
}

// Source is "builtin" or the file the lexicon was loaded from.
func (l *Lexicon) Source() string {
	if l.source == "" {
		return "inline"
	}
	return l.source
}

// Sizes reports the number of phrases per list.
func (l *Lexicon) Sizes() map[string]int {
	return map[string]int{
		"productive":         len(l.Productive),
		"social_nicety":      len(l.SocialNicety),
		"promotional":        len(l.Promotional),
		"attachment_mention": len(l.AttachmentMention),
		"greetings":          len(l.Greetings),
	}
}

// clean normalizes every phrase, drops blanks and removes duplicates while
// keeping the first occurrence's position.
func (l *Lexicon) clean() {
	l.Productive = cleanPhrases(l.Productive)
	l.SocialNicety = cleanPhrases(l.SocialNicety)
	l.Promotional = cleanPhrases(l.Promotional)
	l.AttachmentMention = cleanPhrases(l.AttachmentMention)
	l.Greetings = cleanPhrases(l.Greetings)
}

func cleanPhrases(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	seen := make(map[string]bool, len(phrases))
	for _, p := range phrases {
		p = strings.TrimSpace(Normalize(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// containsAny reports whether text contains at least one phrase.
func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// hits returns the phrases contained in text, in lexicon order.
func hits(text string, phrases []string) []string {
	var found []string
	for _, p := range phrases {
		if strings.Contains(text, p) {
			found = append(found, p)
		}
	}
	return found
}
