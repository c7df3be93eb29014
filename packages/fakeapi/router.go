package fakeapi

import (
	"net/http"
	"regexp"
	"strings"
)

// HandlerFunc serves a matched route; params holds its named path segments.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, params map[string]string)

// Route binds a method and path pattern to a handler. Patterns use {name}
// for a single path segment.
type Route struct {
	Method      string
	PathPattern string
	PathRegex   *regexp.Regexp
	Handler     HandlerFunc
}

type Router struct {
	routes []*Route
}

func NewRouter() *Router {
	return &Router{
		routes: make([]*Route, 0),
	}
}

// Handle registers handler for method and pattern.
func (r *Router) Handle(method, pattern string, handler HandlerFunc) {
	r.routes = append(r.routes, &Route{
		Method:      method,
		PathPattern: pattern,
		PathRegex:   createPathRegex(pattern),
		Handler:     handler,
	})
}

// Match finds a route matching the given method and path. allowed lists the
// methods registered for path when only the method differs.
func (r *Router) Match(method, path string) (route *Route, params map[string]string, allowed []string) {
	path = normalizePath(path)

	for _, rt := range r.routes {
		p := matchPath(rt, path)
		if p == nil {
			continue
		}
		if !strings.EqualFold(rt.Method, method) {
			allowed = append(allowed, rt.Method)
			continue
		}
		return rt, p, nil
	}

	return nil, nil, allowed
}

func (r *Router) Routes() []*Route {
	return r.routes
}

func normalizePath(path string) string {
	// Ensure path starts with /
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	// Remove trailing slash (except for root)
	if len(path) > 1 && strings.HasSuffix(path, "/") {
		path = path[:len(path)-1]
	}
	return path
}

var paramPattern = regexp.MustCompile(`\{(\w+)\}`)

func createPathRegex(pattern string) *regexp.Regexp {
	parts := paramPattern.Split(pattern, -1)
	names := paramPattern.FindAllStringSubmatch(pattern, -1)

	var b strings.Builder
	b.WriteString("^")
	for i, part := range parts {
		b.WriteString(regexp.QuoteMeta(part))
		if i < len(names) {
			b.WriteString(`(?P<` + names[i][1] + `>[^/]+)`)
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func matchPath(route *Route, path string) map[string]string {
	matches := route.PathRegex.FindStringSubmatch(path)
	if matches == nil {
		return nil
	}
	params := make(map[string]string)
	for i, name := range route.PathRegex.SubexpNames() {
		if i > 0 && name != "" {
			params[name] = matches[i]
		}
	}
	return params
}
