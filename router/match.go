package router

import (
	"net/http"
	"strings"
)

// Params holds captured path segments.
type Params map[string]string

// Get returns the named parameter or "".
func (p Params) Get(name string) string { return p[name] }

type segmentKind uint8

const (
	literal segmentKind = iota
	param
	wildcard
)

type segment struct {
	kind segmentKind
	text string
}

// Route is a registered pattern with its pipeline.
type Route struct {
	Method  string
	Pattern string
	Steps   []Step
	Handler Handler

	segments []segment
}

// Table holds routes grouped by method.
type Table struct {
	byMethod map[string][]*Route
	count    int
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{byMethod: make(map[string][]*Route)}
}

// Handle registers handler for method and pattern behind steps. It panics on
// a malformed pattern, which is a programming error.
func (t *Table) Handle(method, pattern string, handler Handler, steps ...Step) *Route {
	r := &Route{
		Method:   strings.ToUpper(method),
		Pattern:  pattern,
		Steps:    steps,
		Handler:  handler,
		segments: compile(pattern),
	}
	t.byMethod[r.Method] = append(t.byMethod[r.Method], r)
	t.count++
	return r
}

func (t *Table) GET(pattern string, h Handler, steps ...Step) *Route {
	return t.Handle(http.MethodGet, pattern, h, steps...)
}

func (t *Table) POST(pattern string, h Handler, steps ...Step) *Route {
	return t.Handle(http.MethodPost, pattern, h, steps...)
}

func (t *Table) PUT(pattern string, h Handler, steps ...Step) *Route {
	return t.Handle(http.MethodPut, pattern, h, steps...)
}

func (t *Table) PATCH(pattern string, h Handler, steps ...Step) *Route {
	return t.Handle(http.MethodPatch, pattern, h, steps...)
}

func (t *Table) DELETE(pattern string, h Handler, steps ...Step) *Route {
	return t.Handle(http.MethodDelete, pattern, h, steps...)
}

// Len reports the number of registered routes.
func (t *Table) Len() int { return t.count }

// Routes returns the routes registered for method, in order.
func (t *Table) Routes(method string) []*Route {
	return t.byMethod[strings.ToUpper(method)]
}

// Match finds the first route for method whose pattern matches path. The path
// must not include the query string.
func (t *Table) Match(method, path string) (*Route, Params, bool) {
	parts := split(path)
	for _, r := range t.byMethod[strings.ToUpper(method)] {
		if params, ok := r.match(parts); ok {
			return r, params, true
		}
	}
	return nil, nil, false
}

func (r *Route) match(parts []string) (Params, bool) {
	var params Params
	for i, seg := range r.segments {
		if seg.kind == wildcard {
			if params == nil {
				params = make(Params, 1)
			}
			params[seg.text] = strings.Join(parts[i:], "/")
			return params, true
		}
		if i >= len(parts) {
			return nil, false
		}
		switch seg.kind {
		case literal:
			if parts[i] != seg.text {
				return nil, false
			}
		case param:
			if params == nil {
				params = make(Params, len(r.segments))
			}
			params[seg.text] = parts[i]
		}
	}
	if len(parts) != len(r.segments) {
		return nil, false
	}
	if params == nil {
		params = Params{}
	}
	return params, true
}

func compile(pattern string) []segment {
	parts := split(pattern)
	segs := make([]segment, 0, len(parts))
	for i, p := range parts {
		switch {
		case strings.HasPrefix(p, ":") && strings.HasSuffix(p, "*"):
			if i != len(parts)-1 {
				panic("router: wildcard must be the last segment in " + pattern)
			}
			segs = append(segs, segment{kind: wildcard, text: strings.TrimSuffix(p[1:], "*")})
		case strings.HasPrefix(p, ":"):
			if len(p) == 1 {
				panic("router: unnamed parameter in " + pattern)
			}
			segs = append(segs, segment{kind: param, text: p[1:]})
		default:
			segs = append(segs, segment{kind: literal, text: p})
		}
	}
	return segs
}

// split drops empty segments, so "/a//b/" and "a/b" are the same path.
func split(path string) []string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	raw := strings.Split(path, "/")
	out := raw[:0]
	for _, p := range raw {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
