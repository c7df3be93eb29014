package builtin

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Func computes a template value from its string arguments.
type Func func(args []string) (any, error)

type Registry struct {
	funcs    map[string]Func
	provider Provider
	now      func() time.Time
}

// NewRegistry returns the default functions backed by provider. A nil
// provider gets a time-seeded RandomProvider.
func NewRegistry(provider Provider) *Registry {
	if provider == nil {
		provider = NewProvider(0)
	}
	r := &Registry{
		funcs:    make(map[string]Func),
		provider: provider,
		now:      time.Now,
	}
	r.registerDefaults()
	return r
}

func (r *Registry) registerDefaults() {
	r.funcs["now"] = r.funcNow
	r.funcs["timestamp"] = r.funcTimestamp
	r.funcs["date"] = r.funcDate
	r.funcs["uuid"] = func(_ []string) (any, error) { return r.provider.UUID(), nil }
	r.funcs["randomInt"] = r.funcRandomInt
	r.funcs["random"] = r.funcRandomInt
	r.funcs["randomString"] = r.funcRandomString
	r.funcs["randomEmail"] = func(_ []string) (any, error) { return r.provider.Email(), nil }
	r.funcs["firstName"] = func(_ []string) (any, error) { return r.provider.FirstName(), nil }
	r.funcs["lastName"] = func(_ []string) (any, error) { return r.provider.LastName(), nil }
	r.funcs["password"] = func(_ []string) (any, error) { return r.provider.Password(), nil }
	r.funcs["base64"] = funcBase64
	r.funcs["urlEncode"] = funcURLEncode
}

// Provider returns the data provider backing the random functions.
func (r *Registry) Provider() Provider {
	return r.provider
}

func (r *Registry) Register(name string, fn Func) {
	r.funcs[name] = fn
}

// Names lists the registered function names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	return names
}

var funcCallPattern = regexp.MustCompile(`^(\w+)\((.*)\)$`)

// Call evaluates an expression such as randomInt(18, 65). ok is false when
// expr is not a call to a registered function.
func (r *Registry) Call(expr string) (value any, ok bool, err error) {
	matches := funcCallPattern.FindStringSubmatch(strings.TrimSpace(expr))
	if matches == nil {
		return nil, false, nil
	}

	fn, found := r.funcs[matches[1]]
	if !found {
		return nil, false, nil
	}

	var args []string
	if matches[2] != "" {
		args = parseArgs(matches[2])
	}

	value, err = fn(args)
	if err != nil {
		return nil, true, fmt.Errorf("%s(): %w", matches[1], err)
	}
	return value, true, nil
}

func parseArgs(s string) []string {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := byte(0)

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if !inQuote && (ch == '"' || ch == '\'') {
			inQuote = true
			quoteChar = ch
		} else if inQuote && ch == quoteChar {
			inQuote = false
			quoteChar = 0
		} else if !inQuote && ch == ',' {
			args = append(args, strings.TrimSpace(current.String()))
			current.Reset()
		} else {
			current.WriteByte(ch)
		}
	}

	if current.Len() > 0 {
		args = append(args, strings.TrimSpace(current.String()))
	}

	return args
}

func (r *Registry) funcNow(_ []string) (any, error) {
	return r.now().UTC().Format(time.RFC3339), nil
}

func (r *Registry) funcTimestamp(_ []string) (any, error) {
	return r.now().Unix(), nil
}

func (r *Registry) funcDate(args []string) (any, error) {
	format := "2006-01-02"
	if len(args) >= 1 {
		format = args[0]
	}
	return r.now().UTC().Format(format), nil
}

func (r *Registry) funcRandomInt(args []string) (any, error) {
	min, max := 0, 100
	if len(args) >= 2 {
		var err error
		if min, err = strconv.Atoi(args[0]); err != nil {
			return nil, fmt.Errorf("min argument %q is not a valid integer", args[0])
		}
		if max, err = strconv.Atoi(args[1]); err != nil {
			return nil, fmt.Errorf("max argument %q is not a valid integer", args[1])
		}
	}
	return r.provider.IntBetween(min, max), nil
}

func (r *Registry) funcRandomString(args []string) (any, error) {
	length := 16
	if len(args) >= 1 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("length argument %q is not a valid integer", args[0])
		}
		length = v
	}
	return r.provider.String(length), nil
}

func funcBase64(args []string) (any, error) {
	if len(args) < 1 {
		return "", nil
	}
	return base64.StdEncoding.EncodeToString([]byte(args[0])), nil
}

func funcURLEncode(args []string) (any, error) {
	if len(args) < 1 {
		return "", nil
	}
	return url.QueryEscape(args[0]), nil
}
