package env

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/contractspec/packages/builtin"
)

var variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// ErrCaptureExists is returned when a scenario tries to overwrite one of its
// own captured values.
var ErrCaptureExists = errors.New("capture already set")

// UnresolvedError lists placeholders that had no value.
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return "unresolved placeholder: " + strings.Join(e.Names, ", ")
}

// WarnFunc is a function type for handling warnings
type WarnFunc func(format string, args ...any)

// Resolver substitutes {{name}} placeholders from captures, variables,
// $ENVIRONMENT variables and builtin function calls.
//
// Captures are stored under "scenario.name" and under the bare name. The
// qualified key is write-once; the bare name follows the latest producer.
type Resolver struct {
	mu        sync.RWMutex
	variables map[string]any
	captures  map[string]any
	funcs     *builtin.Registry
	warnFunc  WarnFunc
}

// NewResolver returns a resolver whose functions draw on provider. A nil
// provider gets a time-seeded one.
func NewResolver(provider builtin.Provider) *Resolver {
	return &Resolver{
		variables: make(map[string]any),
		captures:  make(map[string]any),
		funcs:     builtin.NewRegistry(provider),
	}
}

// SetWarnFunc sets a function to be called when warnings occur (e.g., unresolved variables)
func (r *Resolver) SetWarnFunc(fn WarnFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnFunc = fn
}

func (r *Resolver) warn(format string, args ...any) {
	r.mu.RLock()
	fn := r.warnFunc
	r.mu.RUnlock()
	if fn != nil {
		fn(format, args...)
	}
}

// Functions exposes the builtin registry so callers can register more.
func (r *Resolver) Functions() *builtin.Registry {
	return r.funcs
}

func (r *Resolver) SetVariables(vars map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range vars {
		r.variables[k] = v
	}
}

func (r *Resolver) SetVariable(name string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.variables[name] = value
}

func (r *Resolver) SetCapture(scenarioName, captureName string, value any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := scenarioName + "." + captureName
	if _, exists := r.captures[key]; exists {
		return fmt.Errorf("%w: %s", ErrCaptureExists, key)
	}
	r.captures[key] = value
	r.captures[captureName] = value
	return nil
}

func (r *Resolver) GetCapture(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.captures[name]
	return v, ok
}

// Captures returns a copy of every captured value, keyed as stored.
func (r *Resolver) Captures() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.captures))
	for k, v := range r.captures {
		out[k] = v
	}
	return out
}

// ResetCaptures discards every captured value, for example between runs.
func (r *Resolver) ResetCaptures() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures = make(map[string]any)
}

func (r *Resolver) GetVariable(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if v, ok := r.captures[name]; ok {
		return v, true
	}
	if v, ok := r.variables[name]; ok {
		return v, true
	}
	return nil, false
}

func (r *Resolver) HasVariable(name string) bool {
	_, ok := r.GetVariable(name)
	return ok
}

// lookup returns the value of one placeholder expression.
func (r *Resolver) lookup(expr string) (any, bool, error) {
	if strings.HasPrefix(expr, "$") {
		if val, ok := os.LookupEnv(expr[1:]); ok {
			return val, true, nil
		}
		return nil, false, nil
	}

	if strings.Contains(expr, "(") {
		return r.funcs.Call(expr)
	}

	v, ok := r.GetVariable(expr)
	return v, ok, nil
}

// Resolve substitutes every placeholder it can and leaves the rest as-is,
// warning about each one it could not resolve.
func (r *Resolver) Resolve(input string) string {
	out, err := r.ResolveString(input)
	if err != nil {
		r.warn("%v", err)
	}
	return out
}

// ResolveString substitutes placeholders in input. Placeholders without a
// value are left in place and reported in an *UnresolvedError.
func (r *Resolver) ResolveString(input string) (string, error) {
	var missing []string
	var callErr error
	out := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-2])
		val, ok, err := r.lookup(expr)
		if err != nil {
			if callErr == nil {
				callErr = err
			}
			return match
		}
		if !ok {
			missing = append(missing, expr)
			return match
		}
		return FormatValue(val)
	})
	if callErr != nil {
		return out, callErr
	}
	if len(missing) > 0 {
		return out, &UnresolvedError{Names: missing}
	}
	return out, nil
}

// ResolveValue walks a JSON-like value and resolves every string in it. A
// string consisting of a single placeholder is replaced by the raw value, so
// a captured number stays a number.
func (r *Resolver) ResolveValue(v any) (any, error) {
	var missing []string
	out, err := r.resolveValue(v, &missing)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return out, &UnresolvedError{Names: missing}
	}
	return out, nil
}

func (r *Resolver) resolveValue(v any, missing *[]string) (any, error) {
	switch val := v.(type) {
	case string:
		if m := variablePattern.FindStringSubmatch(val); m != nil && m[0] == val {
			expr := strings.TrimSpace(m[1])
			resolved, ok, err := r.lookup(expr)
			if err != nil {
				return nil, err
			}
			if !ok {
				*missing = append(*missing, expr)
				return val, nil
			}
			return resolved, nil
		}
		out, err := r.ResolveString(val)
		var ue *UnresolvedError
		if errors.As(err, &ue) {
			*missing = append(*missing, ue.Names...)
			return out, nil
		}
		return out, err
	case map[string]any:
		out := make(map[string]any, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		// Stable order keeps function calls like randomInt() reproducible.
		sort.Strings(keys)
		for _, k := range keys {
			resolved, err := r.resolveValue(val[k], missing)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			resolved, err := r.resolveValue(item, missing)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// ResolveAll resolves every value of a string map.
func (r *Resolver) ResolveAll(values map[string]string) (map[string]string, error) {
	result := make(map[string]string, len(values))
	var missing []string
	for k, v := range values {
		out, err := r.ResolveString(v)
		var ue *UnresolvedError
		switch {
		case errors.As(err, &ue):
			missing = append(missing, ue.Names...)
		case err != nil:
			return nil, err
		}
		result[k] = out
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return result, &UnresolvedError{Names: missing}
	}
	return result, nil
}

// GetUnresolvedVariables lists the placeholders in input that have no value.
func (r *Resolver) GetUnresolvedVariables(input string) []string {
	var names []string
	for _, m := range variablePattern.FindAllStringSubmatch(input, -1) {
		expr := strings.TrimSpace(m[1])
		if strings.Contains(expr, "(") {
			continue
		}
		if _, ok, _ := r.lookup(expr); !ok {
			names = append(names, expr)
		}
	}
	return names
}

// Placeholders lists the capture or variable names referenced by input,
// ignoring function calls and environment variables.
func Placeholders(input string) []string {
	var names []string
	for _, m := range variablePattern.FindAllStringSubmatch(input, -1) {
		expr := strings.TrimSpace(m[1])
		if strings.HasPrefix(expr, "$") || strings.Contains(expr, "(") {
			continue
		}
		names = append(names, expr)
	}
	return names
}

// FormatValue renders a resolved value for use inside a string. Integral
// floats are printed without an exponent so ids survive the trip into a path.
func FormatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case float64:
		if n == float64(int64(n)) {
			return fmt.Sprintf("%d", int64(n))
		}
		return fmt.Sprintf("%v", n)
	case float32:
		return FormatValue(float64(n))
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (r *Resolver) Clone() *Resolver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clone := &Resolver{
		variables: make(map[string]any, len(r.variables)),
		captures:  make(map[string]any, len(r.captures)),
		funcs:     r.funcs,
		warnFunc:  r.warnFunc,
	}
	for k, v := range r.variables {
		clone.variables[k] = v
	}
	for k, v := range r.captures {
		clone.captures[k] = v
	}
	return clone
}
