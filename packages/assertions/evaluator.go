package assertions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/contractspec/packages/core/parser"
	"github.com/abdul-hamid-achik/contractspec/packages/http"
	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"
)

// Step identifies which part of an expectation produced a result.
type Step int

const (
	StepStatus Step = iota
	StepHeader
	StepHeaderPattern
	StepBody
)

func (s Step) String() string {
	switch s {
	case StepStatus:
		return "status"
	case StepHeader:
		return "header"
	case StepHeaderPattern:
		return "header pattern"
	case StepBody:
		return "body"
	default:
		return "unknown"
	}
}

// Failure reasons that callers may want to tell apart.
const (
	ReasonFieldNotFound = "field not found"
	ReasonTypeMismatch  = "type mismatch"
	ReasonValueMismatch = "value mismatch"
	ReasonHeaderMissing = "header missing"
	ReasonNotJSON       = "response body is not JSON"
)

type Result struct {
	Passed   bool
	Step     Step
	Reason   string
	Message  string
	Expected any
	Actual   any
	Subject  string
	Operator string
}

type Evaluator struct {
	response *http.Response
	bodyJSON gjson.Result
	isJSON   bool
	baseDir  string // Base directory for resolving schema file paths
}

// EvaluatorOption is a functional option for configuring an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithBaseDir resolves relative schema paths against dir and refuses paths
// that escape it.
func WithBaseDir(dir string) EvaluatorOption {
	return func(e *Evaluator) {
		e.baseDir = dir
	}
}

func NewEvaluator(resp *http.Response, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		response: resp,
	}
	if resp.IsJSON() && gjson.ValidBytes(resp.Body) {
		e.bodyJSON = gjson.ParseBytes(resp.Body)
		e.isJSON = true
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks exp against the response in a fixed order (status,
// required headers, header patterns, body assertions) and returns the first
// failing result, or a passing result when everything holds.
func (e *Evaluator) Evaluate(exp parser.Expectation) *Result {
	if r := e.evaluateStatus(exp.Status); !r.Passed {
		return r
	}

	for _, name := range exp.Headers {
		if r := e.evaluateHeaderPresent(name); !r.Passed {
			return r
		}
	}

	for _, p := range exp.HeaderPatterns {
		if r := e.evaluateHeaderPattern(p); !r.Passed {
			return r
		}
	}

	for _, a := range exp.Body {
		if r := e.EvaluateAssertion(a); !r.Passed {
			return r
		}
	}

	return &Result{Passed: true, Step: StepBody}
}

func (e *Evaluator) evaluateStatus(exp parser.StatusExpectation) *Result {
	result := &Result{
		Step:     StepStatus,
		Subject:  "status",
		Operator: "==",
		Expected: exp.String(),
		Actual:   e.response.StatusCode,
	}
	if exp.Match(e.response.StatusCode) {
		result.Passed = true
		return result
	}
	result.Reason = ReasonValueMismatch
	result.Message = fmt.Sprintf("status: expected %s, got %d", exp, e.response.StatusCode)
	return result
}

func (e *Evaluator) evaluateHeaderPresent(name string) *Result {
	result := &Result{
		Step:     StepHeader,
		Subject:  "header " + name,
		Operator: "exists",
	}
	if _, ok := e.response.LookupHeader(name); ok {
		result.Passed = true
		return result
	}
	result.Reason = ReasonHeaderMissing
	result.Message = fmt.Sprintf("header %s: missing", name)
	return result
}

func (e *Evaluator) evaluateHeaderPattern(p *parser.HeaderPattern) *Result {
	value, ok := e.response.LookupHeader(p.Name)
	result := &Result{
		Step:     StepHeaderPattern,
		Subject:  "header " + p.Name,
		Operator: "matches",
		Expected: p.String(),
		Actual:   value,
	}
	if !ok {
		result.Reason = ReasonHeaderMissing
		result.Message = fmt.Sprintf("header %s: missing", p.Name)
		return result
	}
	if p.Match(value) {
		result.Passed = true
		return result
	}
	result.Reason = ReasonValueMismatch
	result.Message = fmt.Sprintf("header %s: expected %s, got %q", p.Name, p, value)
	return result
}

// EvaluateAssertion checks a single body assertion.
func (e *Evaluator) EvaluateAssertion(a *parser.Assertion) *Result {
	result := &Result{
		Step:     StepBody,
		Subject:  bodySubject(a.Path),
		Operator: a.Operator.String(),
		Expected: a.Expected,
	}

	fail := func(reason, format string, args ...any) *Result {
		result.Reason = reason
		result.Message = result.Subject + ": " + fmt.Sprintf(format, args...)
		return result
	}

	if !e.isJSON {
		return fail(ReasonNotJSON, "%s (content-type %q)", ReasonNotJSON, e.response.ContentType())
	}

	actual := e.lookup(a.Path)
	if !actual.Exists() {
		return fail(ReasonFieldNotFound, ReasonFieldNotFound)
	}
	result.Actual = jsonValue(actual)

	var reason, msg string
	switch a.Operator {
	case parser.OpEquals:
		reason, msg = equals(actual, a.Expected)
	case parser.OpLength:
		reason, msg = length(actual, a.Expected)
		if n, ok := computeLength(actual); ok {
			result.Actual = n
		}
	case parser.OpIncludes:
		reason, msg = includes(actual, a.Field, a.Expected)
	case parser.OpExists:
		// presence was checked above
	case parser.OpType:
		if got := jsonType(actual); got != fmt.Sprintf("%v", a.Expected) {
			reason, msg = ReasonTypeMismatch, fmt.Sprintf("%s: expected %v, got %s", ReasonTypeMismatch, a.Expected, got)
		}
	case parser.OpMatches:
		reason, msg = matches(actual, a.Regexp)
	case parser.OpContains:
		reason, msg = contains(actual, a.Expected)
	case parser.OpSchema:
		reason, msg = e.schema(actual, a.Expected)
	case parser.OpSatisfies:
		if !a.Predicate(jsonValue(actual)) {
			reason, msg = ReasonValueMismatch, fmt.Sprintf("expected value to satisfy %v, got %s", a.Expected, actual.Raw)
		}
	default:
		reason, msg = ReasonValueMismatch, fmt.Sprintf("unknown operator: %v", a.Operator)
	}

	if reason != "" {
		return fail(reason, "%s", msg)
	}
	result.Passed = true
	return result
}

func bodySubject(path string) string {
	if path == "" {
		return "body"
	}
	return "body." + path
}

func (e *Evaluator) lookup(path string) gjson.Result {
	if path == "" {
		return e.bodyJSON
	}
	return e.bodyJSON.Get(parser.GJSONPath(path))
}

// jsonType names the JSON type of r the way JSON Schema does.
func jsonType(r gjson.Result) string {
	switch r.Type {
	case gjson.Null:
		return "null"
	case gjson.False, gjson.True:
		return "boolean"
	case gjson.Number:
		return "number"
	case gjson.String:
		return "string"
	default:
		if r.IsArray() {
			return "array"
		}
		return "object"
	}
}

// goType names the JSON type an expected Go value would encode to.
func goType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return "number"
	case string:
		return "string"
	case []any, []string, []int:
		return "array"
	case map[string]any:
		return "object"
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

func jsonValue(r gjson.Result) any {
	if r.Type == gjson.Number {
		if i := r.Int(); float64(i) == r.Num {
			return i
		}
		return r.Num
	}
	return r.Value()
}

// normalize round-trips v through encoding/json so it compares with decoded
// JSON (numbers become float64, slices become []any).
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// jsonEqual compares without coercion: "1" never equals 1. The reason is
// empty when the values are equal.
func jsonEqual(actual gjson.Result, expected any) (reason string) {
	want, got := goType(expected), jsonType(actual)
	if want != got {
		return ReasonTypeMismatch
	}
	switch want {
	case "null":
		return ""
	case "boolean":
		if actual.Bool() == expected.(bool) {
			return ""
		}
	case "number":
		exp, _ := normalize(expected)
		if f, ok := exp.(float64); ok && f == actual.Num {
			return ""
		}
	case "string":
		if actual.Str == expected.(string) {
			return ""
		}
	default:
		exp, err := normalize(expected)
		if err == nil && reflect.DeepEqual(exp, actual.Value()) {
			return ""
		}
	}
	return ReasonValueMismatch
}

func equals(actual gjson.Result, expected any) (string, string) {
	switch jsonEqual(actual, expected) {
	case "":
		return "", ""
	case ReasonTypeMismatch:
		return ReasonTypeMismatch, fmt.Sprintf("%s: expected %s %s, got %s %s",
			ReasonTypeMismatch, goType(expected), formatExpected(expected), jsonType(actual), actual.Raw)
	default:
		return ReasonValueMismatch, fmt.Sprintf("expected %s, got %s", formatExpected(expected), actual.Raw)
	}
}

func formatExpected(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

// computeLength returns the length of an array, object or string.
func computeLength(r gjson.Result) (int, bool) {
	switch {
	case r.IsArray():
		return len(r.Array()), true
	case r.IsObject():
		n := 0
		r.ForEach(func(_, _ gjson.Result) bool {
			n++
			return true
		})
		return n, true
	case r.Type == gjson.String:
		return len([]rune(r.Str)), true
	default:
		return 0, false
	}
}

func length(actual gjson.Result, expected any) (string, string) {
	want, ok := toInt(expected)
	if !ok {
		return ReasonValueMismatch, fmt.Sprintf("expected length must be a number, got %v", expected)
	}
	got, ok := computeLength(actual)
	if !ok {
		return ReasonTypeMismatch, fmt.Sprintf("%s: cannot get length of %s", ReasonTypeMismatch, jsonType(actual))
	}
	if got != want {
		return ReasonValueMismatch, fmt.Sprintf("expected length %d, got %d", want, got)
	}
	return "", ""
}

func includes(actual gjson.Result, field string, expected any) (string, string) {
	if !actual.IsArray() {
		return ReasonTypeMismatch, fmt.Sprintf("%s: expected array, got %s", ReasonTypeMismatch, jsonType(actual))
	}

	var items []gjson.Result
	for _, item := range actual.Array() {
		if field == "" {
			items = append(items, item)
			continue
		}
		if v := item.Get(field); v.Exists() {
			items = append(items, v)
		}
	}

	wanted, ok := expected.([]any)
	if !ok {
		wanted = []any{expected}
	}

	for _, w := range wanted {
		found := false
		for _, item := range items {
			if jsonEqual(item, w) == "" {
				found = true
				break
			}
		}
		if !found {
			raw := make([]string, len(items))
			for i, item := range items {
				raw[i] = item.Raw
			}
			of := "values"
			if field != "" {
				of = field + " values"
			}
			return ReasonValueMismatch, fmt.Sprintf("expected %s [%s] to include %s",
				of, strings.Join(raw, ", "), formatExpected(w))
		}
	}
	return "", ""
}

func matches(actual gjson.Result, re *regexp.Regexp) (string, string) {
	if re == nil {
		return ReasonValueMismatch, "no pattern"
	}
	s := actual.Raw
	if actual.Type == gjson.String {
		s = actual.Str
	}
	if re.MatchString(s) {
		return "", ""
	}
	return ReasonValueMismatch, fmt.Sprintf("expected %q to match /%s/", s, re)
}

func contains(actual gjson.Result, expected any) (string, string) {
	if actual.Type != gjson.String {
		return ReasonTypeMismatch, fmt.Sprintf("%s: expected string, got %s", ReasonTypeMismatch, jsonType(actual))
	}
	sub := fmt.Sprintf("%v", expected)
	if strings.Contains(actual.Str, sub) {
		return "", ""
	}
	return ReasonValueMismatch, fmt.Sprintf("expected %q to contain %q", actual.Str, sub)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case int32:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

// validatePathWithinBase checks that the resolved path stays within the base directory
// to prevent path traversal attacks
func validatePathWithinBase(path, baseDir string) error {
	if baseDir == "" {
		return nil
	}

	cleanBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %v", err)
	}

	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %v", err)
	}

	if !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) && cleanPath != cleanBase {
		return fmt.Errorf("path traversal detected: %s is outside allowed directory %s", path, baseDir)
	}

	return nil
}

func (e *Evaluator) schemaLoader(expected any) (gojsonschema.JSONLoader, error) {
	schemaPath, isPath := expected.(string)
	if !isPath {
		return gojsonschema.NewGoLoader(expected), nil
	}

	if !filepath.IsAbs(schemaPath) && e.baseDir != "" {
		schemaPath = filepath.Join(e.baseDir, schemaPath)
	}
	if err := validatePathWithinBase(schemaPath, e.baseDir); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %v", err)
	}
	return gojsonschema.NewBytesLoader(data), nil
}

func (e *Evaluator) schema(actual gjson.Result, expected any) (string, string) {
	loader, err := e.schemaLoader(expected)
	if err != nil {
		return ReasonValueMismatch, err.Error()
	}

	result, err := gojsonschema.Validate(loader, gojsonschema.NewStringLoader(actual.Raw))
	if err != nil {
		return ReasonValueMismatch, fmt.Sprintf("schema validation error: %v", err)
	}
	if result.Valid() {
		return "", ""
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return ReasonValueMismatch, fmt.Sprintf("schema validation failed: %s", strings.Join(errs, "; "))
}

// Evaluate is a shorthand for NewEvaluator(resp, opts...).Evaluate(exp).
func Evaluate(exp parser.Expectation, resp *http.Response, opts ...EvaluatorOption) *Result {
	return NewEvaluator(resp, opts...).Evaluate(exp)
}
