// Package extract turns uploaded audit documents into plain text.
package extract

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrDecode means the bytes are not valid text for the declared type.
	ErrDecode = errors.New("document is not valid text")
	// ErrUnsupported means no extractor is registered for the file type.
	ErrUnsupported = errors.New("document type is not supported")
	// ErrEmpty means extraction succeeded but produced no text.
	ErrEmpty = errors.New("document contains no text")
)

// Extractor converts raw file bytes into text.
type Extractor interface {
	Extract(data []byte) (string, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(data []byte) (string, error)

func (f ExtractorFunc) Extract(data []byte) (string, error) { return f(data) }

// Registry maps lower-cased file extensions (".txt") to extractors.
// Unknown extensions fall back to the registry's fallback extractor.
type Registry struct {
	mu       sync.RWMutex
	byExt    map[string]Extractor
	fallback Extractor
}

func NewRegistry(fallback Extractor) *Registry {
	return &Registry{byExt: make(map[string]Extractor), fallback: fallback}
}

// Default returns a registry with text, HTML and DOCX support. PDF is
// registered as unsupported so callers get an explicit error instead of
// binary garbage.
func Default() *Registry {
	text := ExtractorFunc(Text)
	r := NewRegistry(text)
	for _, ext := range []string{"", ".txt", ".md", ".log", ".csv", ".json", ".yaml", ".yml"} {
		r.Register(ext, text)
	}
	r.Register(".html", ExtractorFunc(HTML))
	r.Register(".htm", ExtractorFunc(HTML))
	r.Register(".docx", ExtractorFunc(DOCX))
	r.Register(".pdf", Unsupported("pdf"))
	return r
}

func (r *Registry) Register(ext string, e Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byExt[normalizeExt(ext)] = e
}

// Extensions lists the registered extensions, sorted.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		if ext != "" {
			out = append(out, ext)
		}
	}
	sort.Strings(out)
	return out
}

// Extract picks an extractor by the file name's extension and returns the
// trimmed text.
func (r *Registry) Extract(fileName string, data []byte) (string, error) {
	ext := normalizeExt(filepath.Ext(fileName))
	r.mu.RLock()
	e, ok := r.byExt[ext]
	if !ok {
		e = r.fallback
	}
	r.mu.RUnlock()
	if e == nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, ext)
	}
	text, err := e.Extract(data)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", fileName, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("extract %s: %w", fileName, ErrEmpty)
	}
	return text, nil
}

// Unsupported returns an extractor that always reports ErrUnsupported.
func Unsupported(kind string) Extractor {
	return ExtractorFunc(func([]byte) (string, error) {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, kind)
	})
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
