package template

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSyntax is returned by Parse for malformed templates.
var ErrSyntax = errors.New("template syntax error")

// Missing selects what Render does with an unresolved placeholder.
type Missing int

const (
	// MissingKeep leaves the placeholder text in place.
	MissingKeep Missing = iota
	// MissingEmpty renders nothing.
	MissingEmpty
	// MissingFail fails the render with *MissingError.
	MissingFail
)

// MissingError lists unresolved placeholder names.
type MissingError struct {
	Names []string
}

func (e *MissingError) Error() string {
	return "missing template value: " + strings.Join(e.Names, ", ")
}

// Option configures Parse.
type Option func(*Template)

// WithMissing sets the missing-value behaviour. The default is MissingKeep.
func WithMissing(m Missing) Option {
	return func(t *Template) { t.missing = m }
}

// Lookup resolves a placeholder name.
type Lookup func(name string) (any, bool)

// Map returns a Lookup over vars. Dotted names descend into nested maps.
func Map(vars map[string]any) Lookup {
	return func(name string) (any, bool) {
		if v, ok := vars[name]; ok {
			return v, true
		}
		var cur any = vars
		for part := range strings.SplitSeq(name, ".") {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			if cur, ok = m[part]; !ok {
				return nil, false
			}
		}
		return cur, true
	}
}

type segment struct {
	text     string // literal text, or the raw placeholder for a reference
	name     string
	fallback string
	ref      bool
	hasDef   bool
}

// Template is a parsed template. It is safe for concurrent use.
type Template struct {
	src     string
	segs    []segment
	missing Missing
}

// Parse parses src.
func Parse(src string, opts ...Option) (*Template, error) {
	t := &Template{src: src}
	for _, opt := range opts {
		opt(t)
	}

	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.segs = append(t.segs, segment{text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(src); {
		if src[i] != '$' || i+1 >= len(src) {
			lit.WriteByte(src[i])
			i++
			continue
		}
		switch src[i+1] {
		case '$':
			lit.WriteByte('$')
			i += 2
		case '{':
			end := strings.IndexByte(src[i+2:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed placeholder at %d", ErrSyntax, i)
			}
			body := src[i+2 : i+2+end]
			seg := segment{text: src[i : i+3+end], ref: true, name: body}
			if name, def, ok := strings.Cut(body, ":-"); ok {
				seg.name, seg.fallback, seg.hasDef = name, def, true
			}
			seg.name = strings.TrimSpace(seg.name)
			if seg.name == "" {
				return nil, fmt.Errorf("%w: empty placeholder at %d", ErrSyntax, i)
			}
			flush()
			t.segs = append(t.segs, seg)
			i += end + 3
		default:
			lit.WriteByte('$')
			i++
		}
	}
	flush()
	return t, nil
}

// MustParse is Parse that panics on error.
func MustParse(src string, opts ...Option) *Template {
	t, err := Parse(src, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the source text.
func (t *Template) String() string { return t.src }

// IsStatic reports whether the template has no placeholders.
func (t *Template) IsStatic() bool {
	for _, s := range t.segs {
		if s.ref {
			return false
		}
	}
	return true
}

// Names returns the placeholder names in order of appearance.
func (t *Template) Names() []string {
	var names []string
	for _, s := range t.segs {
		if s.ref {
			names = append(names, s.name)
		}
	}
	return names
}

// Render renders the template with values from lookup.
func (t *Template) Render(lookup Lookup) (string, error) {
	if lookup == nil {
		lookup = Map(nil)
	}
	var (
		b       strings.Builder
		missing []string
	)
	for _, s := range t.segs {
		if !s.ref {
			b.WriteString(s.text)
			continue
		}
		if v, ok := lookup(s.name); ok && v != nil {
			fmt.Fprint(&b, v)
			continue
		}
		switch {
		case s.hasDef:
			b.WriteString(s.fallback)
		case t.missing == MissingEmpty:
		case t.missing == MissingFail:
			missing = append(missing, s.name)
		default:
			b.WriteString(s.text)
		}
	}
	if len(missing) > 0 {
		return "", &MissingError{Names: missing}
	}
	return b.String(), nil
}
