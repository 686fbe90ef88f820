package template

import (
	"bytes"
	"embed"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"time"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

// maxQuotedLines bounds how much of the original message is quoted back.
const maxQuotedLines = 40

// ReplyData contains all data available to reply templates
type ReplyData struct {
	Reply     string
	Signature string

	// Original message
	OriginalSender string
	OriginalDate   string
	QuotedBody     string
}

// Original is the message being answered
type Original struct {
	From       string
	FromName   string
	Subject    string
	Body       string
	ReceivedAt time.Time
}

// Email represents a rendered reply ready to send
type Email struct {
	Subject string
	Body    string
}

// Engine handles reply template rendering
type Engine struct {
	templates map[string]*template.Template
}

// NewEngine creates a new template engine
func NewEngine() (*Engine, error) {
	e := &Engine{
		templates: make(map[string]*template.Template),
	}

	templateNames := []string{"quoted", "plain"}
	for _, name := range templateNames {
		content, err := embeddedTemplates.ReadFile("templates/" + name + ".tmpl")
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded template %s: %w", name, err)
		}

		tmpl, err := template.New(name).Option("missingkey=error").Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		e.templates[name] = tmpl
	}

	return e, nil
}

// Render builds the reply to orig with the suggested reply text
func (e *Engine) Render(templateName, reply, signature string, orig Original) (*Email, error) {
	tmpl, ok := e.templates[templateName]
	if !ok {
		return nil, fmt.Errorf("unknown template %q (available: %s)",
			templateName, strings.Join(e.AvailableTemplates(), ", "))
	}

	data := ReplyData{
		Reply:          strings.TrimSpace(reply),
		Signature:      strings.TrimSpace(signature),
		OriginalSender: sender(orig),
		QuotedBody:     quote(orig.Body),
	}
	if !orig.ReceivedAt.IsZero() {
		data.OriginalDate = orig.ReceivedAt.Format("02/01/2006 15:04")
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	return &Email{
		Subject: ReplySubject(orig.Subject),
		Body:    strings.TrimRight(buf.String(), "\n") + "\n",
	}, nil
}

// ReplySubject prefixes "Re: " unless the subject already carries it
func ReplySubject(subject string) string {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "Re: sua mensagem"
	}
	if len(subject) >= 3 && strings.EqualFold(subject[:3], "re:") {
		return subject
	}
	return "Re: " + subject
}

func sender(orig Original) string {
	switch {
	case orig.FromName != "" && orig.From != "":
		return fmt.Sprintf("%s <%s>", orig.FromName, orig.From)
	case orig.From != "":
		return orig.From
	case orig.FromName != "":
		return orig.FromName
	default:
		return "Você"
	}
}

func quote(body string) string {
	body = strings.TrimSpace(strings.ReplaceAll(body, "\r\n", "\n"))
	if body == "" {
		return ""
	}
	lines := strings.Split(body, "\n")
	truncated := len(lines) > maxQuotedLines
	if truncated {
		lines = lines[:maxQuotedLines]
	}
	for i, line := range lines {
		if line == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + line
		}
	}
	if truncated {
		lines = append(lines, "> [...]")
	}
	return strings.Join(lines, "\n")
}

// AvailableTemplates returns the list of available template names
func (e *Engine) AvailableTemplates() []string {
	templates := make([]string, 0, len(e.templates))
	for name := range e.templates {
		templates = append(templates, name)
	}
	sort.Strings(templates)
	return templates
}
