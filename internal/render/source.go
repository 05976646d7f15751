package render

import (
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"
	texttemplate "text/template"
)

//go:embed templates
var defaultTemplates embed.FS

// ErrTemplateNotFound is returned by Source.Lookup when no key resolves.
var ErrTemplateNotFound = errors.New("template not found")

// Template is a parsed template ready to execute.
// Both text/template and html/template satisfy it.
type Template interface {
	Execute(w io.Writer, data any) error
}

// Source resolves templates. Lookup tries keys in order and returns the
// first template found.
type Source interface {
	Lookup(keys []string) (Template, error)
}

// Defaults returns the built-in system templates.
func Defaults() fs.FS {
	sub, err := fs.Sub(defaultTemplates, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// FSSource loads templates from one or more file systems. For every key the
// file systems are consulted in order, so an override directory placed before
// Defaults() shadows the built-in templates. Keys ending in .html are parsed
// with html/template (auto-escaped); everything else with text/template.
type FSSource struct {
	layers []fs.FS

	mu    sync.RWMutex
	cache map[string]Template // nil value = known missing
}

// NewFSSource returns a Source over the given layers.
func NewFSSource(layers ...fs.FS) *FSSource {
	return &FSSource{layers: layers, cache: make(map[string]Template)}
}

func (s *FSSource) Lookup(keys []string) (Template, error) {
	for _, key := range keys {
		tpl, err := s.load(key)
		if err != nil {
			return nil, err
		}
		if tpl != nil {
			return tpl, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, strings.Join(keys, ", "))
}

// load returns (nil, nil) when no layer has the key.
func (s *FSSource) load(key string) (Template, error) {
	s.mu.RLock()
	tpl, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	tpl, err := s.parse(key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[key] = tpl
	s.mu.Unlock()
	return tpl, nil
}

func (s *FSSource) parse(key string) (Template, error) {
	for _, layer := range s.layers {
		data, err := fs.ReadFile(layer, key)
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrInvalid) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", key, err)
		}

		if path.Ext(key) == ".html" {
			tpl, err := htmltemplate.New(key).Parse(string(data))
			if err != nil {
				return nil, fmt.Errorf("parse template %s: %w", key, err)
			}
			return tpl, nil
		}
		tpl, err := texttemplate.New(key).Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", key, err)
		}
		return tpl, nil
	}
	return nil, nil
}
