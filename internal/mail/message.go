// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Authgate Contributors

package mail

import (
	"bytes"
	"embed"
	"html/template"
	"sync"

	"github.com/samber/oops"
)

// Message is a templated email addressed to one recipient.
type Message struct {
	To       string
	Subject  string
	Template string
	Data     map[string]any
}

// Envelope is a rendered email ready for delivery.
type Envelope struct {
	From    string
	To      string
	Subject string
	HTML    string
}

//go:embed templates/*.html
var templatesFS embed.FS

// Renderer renders named templates from the embedded templates directory.
type Renderer struct {
	once      sync.Once
	templates *template.Template
	err       error
}

// NewRenderer creates a Renderer. Templates are parsed on first use.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render executes the template named name (without extension) with data.
func (r *Renderer) Render(name string, data map[string]any) (string, error) {
	r.once.Do(func() {
		r.templates, r.err = template.ParseFS(templatesFS, "templates/*.html")
	})
	if r.err != nil {
		return "", oops.Code("MAIL_TEMPLATE_PARSE_FAILED").Wrap(r.err)
	}

	tmpl := r.templates.Lookup(name + ".html")
	if tmpl == nil {
		return "", oops.Code("MAIL_TEMPLATE_NOT_FOUND").With("template", name).Errorf("unknown mail template %q", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", oops.Code("MAIL_TEMPLATE_RENDER_FAILED").With("template", name).Wrap(err)
	}
	return buf.String(), nil
}
