package render

import (
	"fmt"
	"maps"
	"strings"

	"github.com/notifyhub/notice-dispatch/internal/domain"
)

// Variant is one output format of a notice, named by its template file.
type Variant string

const (
	ShortText Variant = "short.txt"
	FullText  Variant = "full.txt"
	SiteHTML  Variant = "notice.html"
	FullHTML  Variant = "full.html"
)

// Variants lists every output format in render order.
var Variants = []Variant{ShortText, FullText, SiteHTML, FullHTML}

const (
	emailSubject = "email_subject.txt"
	emailBody    = "email_body.txt"
)

// Keys returns the ordered lookup keys for a notice type's variant: the
// type-specific template first, then the system default.
func Keys(label string, v Variant) []string {
	return []string{label + "/" + string(v), string(v)}
}

// MissingVariant records a variant that produced no output.
type MissingVariant struct {
	Variant Variant
	Err     error
}

// Rendered holds every output format of one notice for one recipient.
type Rendered struct {
	ShortText string
	FullText  string
	SiteHTML  string
	FullHTML  string
	Missing   []MissingVariant
}

func (r *Rendered) set(v Variant, s string) {
	switch v {
	case ShortText:
		r.ShortText = s
	case FullText:
		r.FullText = s
	case SiteHTML:
		r.SiteHTML = s
	case FullHTML:
		r.FullHTML = s
	}
}

// Renderer turns a notice type label and template data into output formats.
// It holds no per-call state and is safe for concurrent use.
type Renderer struct {
	src Source
}

func NewRenderer(src Source) *Renderer {
	return &Renderer{src: src}
}

// Render produces every variant for label. A variant with no template, a
// failing template, or blank output is listed in Missing. The call fails
// with domain.ErrRender only when neither the short text nor the site HTML
// produced anything.
func (r *Renderer) Render(label string, data map[string]any) (*Rendered, error) {
	out := &Rendered{}
	for _, v := range Variants {
		s, err := r.execute(Keys(label, v), data)
		if err == nil && strings.TrimSpace(s) == "" {
			err = fmt.Errorf("%w: %s/%s rendered empty", domain.ErrRender, label, v)
		}
		if err != nil {
			out.Missing = append(out.Missing, MissingVariant{Variant: v, Err: err})
			continue
		}
		out.set(v, s)
	}

	if strings.TrimSpace(out.ShortText) == "" && strings.TrimSpace(out.SiteHTML) == "" {
		return out, fmt.Errorf("%w: %q has neither short text nor site html", domain.ErrRender, label)
	}
	return out, nil
}

// Email builds the subject and plain-text body of a notice email by wrapping
// the short and full text in the email_subject.txt and email_body.txt
// templates. Subjects are collapsed to one line. When a wrapper is missing
// the raw variant is used.
func (r *Renderer) Email(rendered *Rendered, data map[string]any) (subject, body string) {
	short := rendered.ShortText
	if short == "" {
		short = rendered.SiteHTML
	}
	full := rendered.FullText
	if full == "" {
		full = short
	}

	subject = r.wrap(emailSubject, short, data)
	body = r.wrap(emailBody, full, data)
	return strings.Join(strings.Fields(subject), " "), body
}

func (r *Renderer) wrap(key, message string, data map[string]any) string {
	wrapped := make(map[string]any, len(data)+1)
	maps.Copy(wrapped, data)
	wrapped["message"] = message

	s, err := r.execute([]string{key}, wrapped)
	if err != nil {
		return message
	}
	return s
}

func (r *Renderer) execute(keys []string, data map[string]any) (string, error) {
	tpl, err := r.src.Lookup(keys)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrRender, err)
	}
	var b strings.Builder
	if err := tpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("%w: execute %s: %v", domain.ErrRender, keys[0], err)
	}
	return b.String(), nil
}
