package triage

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Messages at or above this many characters are never greeting-only.
const greetingOnlyMaxLen = 60

var (
	// Order/ticket style identifiers, e.g. "pedido 1234", "chamado #48213".
	// Separators include Unicode spaces such as NBSP from HTML mail.
	referencePattern = regexp.MustCompile(`(?i)(pedido|chamado|ticket|protocolo)[\s\p{Z}]*[:#-]?[\s\p{Z}]*(\p{Nd}{3,})`)
	urlPattern       = regexp.MustCompile(`(?i)(https?://|www\.)`)
)

// Reference is a keyword plus numeric code extracted from the message.
type Reference struct {
	Keyword string // lower-cased
	Digits  string
}

func (r Reference) String() string { return r.Keyword + " " + r.Digits }

// Matches records every signal the matcher found in a message. Both the
// scorer and the reply composer read it.
type Matches struct {
	ProductiveHits   []string
	UnproductiveHits []string
	Promotional      bool
	Attachment       bool
	Reference        *Reference
	HasQuestion      bool
	HasURL           bool
	GreetingOnly     bool
}

// Match extracts the signals of text against the classifier's lexicon.
func (c *Classifier) Match(text string) Matches {
	raw := strings.TrimSpace(text)
	normalized := Normalize(raw)
	lex := c.lexicon

	m := Matches{
		ProductiveHits:   hits(normalized, lex.Productive),
		UnproductiveHits: hits(normalized, lex.SocialNicety),
		Promotional:      containsAny(normalized, lex.Promotional),
		Attachment:       containsAny(normalized, lex.AttachmentMention),
		Reference:        findReference(raw),
		HasQuestion:      strings.ContainsRune(raw, '?'),
		HasURL:           urlPattern.MatchString(raw),
	}
	m.GreetingOnly = containsAny(normalized, lex.Greetings) &&
		utf8.RuneCountInString(raw) < greetingOnlyMaxLen &&
		len(m.ProductiveHits) == 0 &&
		m.Reference == nil &&
		!m.HasQuestion
	return m
}

func findReference(raw string) *Reference {
	sub := referencePattern.FindStringSubmatch(raw)
	if sub == nil {
		return nil
	}
	return &Reference{Keyword: strings.ToLower(sub[1]), Digits: sub[2]}
}
