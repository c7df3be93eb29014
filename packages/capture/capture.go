package capture

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/contractspec/packages/core/parser"
	"github.com/abdul-hamid-achik/contractspec/packages/http"
	"github.com/tidwall/gjson"
)

// ErrFieldNotFound is wrapped by every *Error caused by absent data.
var ErrFieldNotFound = errors.New("field not found")

// Error describes a capture rule that could not be satisfied.
type Error struct {
	Name   string
	Source parser.CaptureSource
	Path   string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s from %s %q", e.Err, e.Name, e.Source, e.Path)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Extractor struct {
	response *http.Response
	bodyJSON gjson.Result
	isJSON   bool
}

func NewExtractor(resp *http.Response) *Extractor {
	e := &Extractor{
		response: resp,
	}
	if resp.IsJSON() && gjson.ValidBytes(resp.Body) {
		e.bodyJSON = gjson.ParseBytes(resp.Body)
		e.isJSON = true
	}
	return e
}

func (e *Extractor) Extract(c *parser.Capture) (any, error) {
	switch c.Source {
	case parser.CaptureBody:
		return e.extractFromBody(c)
	case parser.CaptureHeader:
		return e.extractFromHeader(c)
	default:
		return nil, &Error{Name: c.Name, Source: c.Source, Path: c.Path, Err: fmt.Errorf("unknown capture source")}
	}
}

func (e *Extractor) extractFromBody(c *parser.Capture) (any, error) {
	notFound := &Error{Name: c.Name, Source: c.Source, Path: c.Path, Err: ErrFieldNotFound}
	if !e.isJSON {
		return nil, notFound
	}

	result := e.bodyJSON
	if c.Path != "" {
		result = e.bodyJSON.Get(parser.GJSONPath(c.Path))
	}
	if !result.Exists() {
		return nil, notFound
	}
	return Value(result), nil
}

func (e *Extractor) extractFromHeader(c *parser.Capture) (any, error) {
	value, ok := e.response.LookupHeader(c.Path)
	if !ok || value == "" {
		return nil, &Error{Name: c.Name, Source: c.Source, Path: c.Path, Err: ErrFieldNotFound}
	}
	if c.Pattern == nil {
		return value, nil
	}

	m := c.Pattern.FindStringSubmatch(value)
	if m == nil {
		return nil, &Error{
			Name:   c.Name,
			Source: c.Source,
			Path:   c.Path,
			Err:    fmt.Errorf("%w: %q does not match /%s/", ErrFieldNotFound, value, c.Pattern),
		}
	}
	if idx := c.Pattern.SubexpIndex("id"); idx > 0 {
		return m[idx], nil
	}
	if len(m) > 1 {
		return m[1], nil
	}
	return m[0], nil
}

// Value converts a gjson result to a Go value. Integral numbers become int64
// so they print without an exponent.
func Value(r gjson.Result) any {
	if r.Type == gjson.Number {
		if i := r.Int(); float64(i) == r.Num {
			return i
		}
		return r.Num
	}
	return r.Value()
}

// ExtractAll applies every rule in order and stops at the first failure. The
// values extracted before the failure are returned alongside the error.
func ExtractAll(resp *http.Response, captures []*parser.Capture) (map[string]any, error) {
	extractor := NewExtractor(resp)
	results := make(map[string]any, len(captures))

	for _, c := range captures {
		value, err := extractor.Extract(c)
		if err != nil {
			return results, err
		}
		results[c.Name] = value
	}

	return results, nil
}
