package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Suite is an ordered list of scenarios loaded from one source.
type Suite struct {
	Path      string
	Name      string
	Variables map[string]any
	Scenarios []*Scenario
}

// Scenario is one declarative request plus the response it is expected to
// produce. A scenario is immutable once registered; its name identifies it.
type Scenario struct {
	Name        string
	Description string
	Tags        []string
	DependsOn   []string
	Request     RequestSpec
	Expect      Expectation
	Captures    []*Capture
	Line        int
}

// RequestSpec is a request template. Path, header values and string leaves of
// Body may reference captured values or variables as {{name}}.
type RequestSpec struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    any
}

// HasBody reports whether the request carries a body.
func (r RequestSpec) HasBody() bool {
	return r.Body != nil
}

// Expectation is evaluated in field order: status, required headers, header
// patterns, then body assertions.
type Expectation struct {
	Status         StatusExpectation
	Headers        []string
	HeaderPatterns []*HeaderPattern
	Body           []*Assertion
}

// StatusExpectation is either an exact code, a set of codes or an inclusive
// range.
type StatusExpectation struct {
	Code int
	In   []int
	Min  int
	Max  int
}

func Status(code int) StatusExpectation {
	return StatusExpectation{Code: code}
}

func StatusIn(codes ...int) StatusExpectation {
	return StatusExpectation{In: codes}
}

func StatusRange(min, max int) StatusExpectation {
	return StatusExpectation{Min: min, Max: max}
}

func (s StatusExpectation) IsZero() bool {
	return s.Code == 0 && len(s.In) == 0 && s.Min == 0 && s.Max == 0
}

func (s StatusExpectation) Match(code int) bool {
	switch {
	case s.Code != 0:
		return code == s.Code
	case len(s.In) > 0:
		for _, c := range s.In {
			if c == code {
				return true
			}
		}
		return false
	case s.Min != 0 || s.Max != 0:
		return code >= s.Min && code <= s.Max
	default:
		return true
	}
}

func (s StatusExpectation) String() string {
	switch {
	case s.Code != 0:
		return strconv.Itoa(s.Code)
	case len(s.In) > 0:
		parts := make([]string, len(s.In))
		for i, c := range s.In {
			parts[i] = strconv.Itoa(c)
		}
		return "one of " + strings.Join(parts, ", ")
	case s.Min != 0 || s.Max != 0:
		return fmt.Sprintf("%d..%d", s.Min, s.Max)
	default:
		return "any"
	}
}

// HeaderPattern checks a header value, either by substring or by regexp.
type HeaderPattern struct {
	Name     string
	Contains string
	Regexp   *regexp.Regexp
}

func HeaderContains(name, substr string) *HeaderPattern {
	return &HeaderPattern{Name: name, Contains: substr}
}

func HeaderMatches(name string, re *regexp.Regexp) *HeaderPattern {
	return &HeaderPattern{Name: name, Regexp: re}
}

func (p *HeaderPattern) Match(value string) bool {
	if p.Regexp != nil {
		return p.Regexp.MatchString(value)
	}
	return strings.Contains(value, p.Contains)
}

func (p *HeaderPattern) String() string {
	if p.Regexp != nil {
		return "/" + p.Regexp.String() + "/"
	}
	return fmt.Sprintf("contains %q", p.Contains)
}

// Assertion checks the value found at Path in the JSON body. An empty Path
// addresses the whole body.
type Assertion struct {
	Path     string
	Operator AssertionOperator
	Expected any
	// Field maps each element of an array of objects before OpIncludes.
	Field string
	// Predicate is used by OpSatisfies; Expected then holds its description.
	Predicate func(actual any) bool
	Regexp    *regexp.Regexp
	Line      int
}

type AssertionOperator int

const (
	OpEquals AssertionOperator = iota
	OpLength
	OpIncludes
	OpExists
	OpType
	OpMatches
	OpContains
	OpSchema
	OpSatisfies
)

func (op AssertionOperator) String() string {
	switch op {
	case OpEquals:
		return "=="
	case OpLength:
		return "length"
	case OpIncludes:
		return "includes"
	case OpExists:
		return "exists"
	case OpType:
		return "type"
	case OpMatches:
		return "matches"
	case OpContains:
		return "contains"
	case OpSchema:
		return "schema"
	case OpSatisfies:
		return "satisfies"
	default:
		return "unknown"
	}
}

func Equals(path string, expected any) *Assertion {
	return &Assertion{Path: path, Operator: OpEquals, Expected: expected}
}

func Length(path string, n int) *Assertion {
	return &Assertion{Path: path, Operator: OpLength, Expected: n}
}

// Includes asserts that the array at path contains every expected value.
func Includes(path string, values ...any) *Assertion {
	return &Assertion{Path: path, Operator: OpIncludes, Expected: values}
}

// IncludesField asserts that mapping field over the array of objects at path
// yields every expected value.
func IncludesField(path, field string, values ...any) *Assertion {
	return &Assertion{Path: path, Operator: OpIncludes, Field: field, Expected: values}
}

func Exists(path string) *Assertion {
	return &Assertion{Path: path, Operator: OpExists}
}

// IsType asserts the JSON type at path: string, number, boolean, array,
// object or null.
func IsType(path, typ string) *Assertion {
	return &Assertion{Path: path, Operator: OpType, Expected: typ}
}

func Matches(path string, re *regexp.Regexp) *Assertion {
	return &Assertion{Path: path, Operator: OpMatches, Expected: re.String(), Regexp: re}
}

func Contains(path, substr string) *Assertion {
	return &Assertion{Path: path, Operator: OpContains, Expected: substr}
}

// Schema validates the value at path against a JSON schema. schema is either
// a file path or an inline schema document.
func Schema(path string, schema any) *Assertion {
	return &Assertion{Path: path, Operator: OpSchema, Expected: schema}
}

func Satisfies(path, description string, fn func(actual any) bool) *Assertion {
	return &Assertion{Path: path, Operator: OpSatisfies, Expected: description, Predicate: fn}
}

// Capture extracts a named value from a response for later scenarios.
type Capture struct {
	Name   string
	Source CaptureSource
	// Path is a JSON path for body captures and a header name for header
	// captures.
	Path string
	// Pattern, for header captures, selects the captured part of the value:
	// the "id" group when present, otherwise the first group.
	Pattern *regexp.Regexp
	Line    int
}

type CaptureSource int

const (
	CaptureBody CaptureSource = iota
	CaptureHeader
)

func (s CaptureSource) String() string {
	switch s {
	case CaptureBody:
		return "body"
	case CaptureHeader:
		return "header"
	default:
		return "unknown"
	}
}

func CaptureFromBody(name, path string) *Capture {
	return &Capture{Name: name, Source: CaptureBody, Path: path}
}

func CaptureFromHeader(name, header string, pattern *regexp.Regexp) *Capture {
	return &Capture{Name: name, Source: CaptureHeader, Path: header, Pattern: pattern}
}

// ResourceIDPattern matches a location ending in /<resource>/<digits> and
// exposes the digits as the "id" group.
func ResourceIDPattern(resource string) *regexp.Regexp {
	return regexp.MustCompile(`/` + regexp.QuoteMeta(resource) + `/(?P<id>\d+)/?$`)
}

// LocationIDPattern matches any location ending in /<resource>/<digits>.
var LocationIDPattern = regexp.MustCompile(`/[^/?#]+/(?P<id>\d+)/?$`)

type ParseError struct {
	File    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return e.File + ":" + strconv.Itoa(e.Line) + ": " + e.Message
	}
	return "line " + strconv.Itoa(e.Line) + ": " + e.Message
}
