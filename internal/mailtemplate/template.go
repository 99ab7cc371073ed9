// Package mailtemplate parses message templates and fills in $placeholders.
package mailtemplate

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/kursadbilgin/mailrunner/internal/domain"
)

const subjectMarker = "SUBJECT:"

// Template is a parsed message template. Subject may be empty.
type Template struct {
	Subject string
	Body    string
	HTML    bool
}

// Parse splits content into subject and body. The first line whose trimmed
// text starts with "SUBJECT:" holds the subject and everything after it is
// the body. Without such a line the whole content is the body.
func Parse(content string, html bool) Template {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, subjectMarker) {
			continue
		}

		return Template{
			Subject: strings.TrimSpace(strings.TrimPrefix(trimmed, subjectMarker)),
			Body:    strings.Join(lines[i+1:], "\n"),
			HTML:    html,
		}
	}

	return Template{Body: content, HTML: html}
}

// LoadFile reads and parses a template file.
func LoadFile(path string, html bool) (Template, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("read template %s: %w", path, err)
	}
	return Parse(string(content), html), nil
}

// Substitute replaces every "$key" in text with vars[key] in a single pass.
// Longer keys win over their prefixes, so "$names" is never clobbered by
// "$name".
func Substitute(text string, vars map[string]string) string {
	if len(vars) == 0 || text == "" {
		return text
	}

	keys := make([]string, 0, len(vars))
	for key := range vars {
		if key == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, len(keys)*2)
	for _, key := range keys {
		pairs = append(pairs, "$"+key, vars[key])
	}

	return strings.NewReplacer(pairs...).Replace(text)
}

// Render fills the template for one personalization mapping.
func (t Template) Render(vars map[string]string) (subject, body string) {
	return Substitute(t.Subject, vars), Substitute(t.Body, vars)
}

// MessageFor renders the message for recipient. A non-empty recipient
// subject replaces the template subject and is substituted as well.
func (t Template) MessageFor(recipient domain.Recipient) domain.Message {
	vars := recipient.Personalization()
	subject, body := t.Render(vars)
	if override := strings.TrimSpace(recipient.Subject); override != "" {
		subject = Substitute(override, vars)
	}

	return domain.Message{Subject: subject, Body: body, HTML: t.HTML}
}
