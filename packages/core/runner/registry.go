package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/contractspec/packages/assertions"
	"github.com/abdul-hamid-achik/contractspec/packages/builtin"
	"github.com/abdul-hamid-achik/contractspec/packages/capture"
	"github.com/abdul-hamid-achik/contractspec/packages/core/env"
	"github.com/abdul-hamid-achik/contractspec/packages/core/parser"
	"github.com/abdul-hamid-achik/contractspec/packages/http"
	"github.com/google/uuid"
)

// BaseURLVariable is the variable consulted when no base URL is configured.
const BaseURLVariable = "baseUrl"

type Config struct {
	BaseURL    string
	NameFilter string
	TagsFilter []string
	Bail       bool
	// RunTimeout bounds the whole run. Zero means no run-level limit; each
	// request is still bounded by the client timeout.
	RunTimeout time.Duration
	// BaseDir resolves relative schema files.
	BaseDir string
}

// Registry holds scenarios in registration order and runs them one at a time.
type Registry struct {
	scenarios []*parser.Scenario
	byName    map[string]*parser.Scenario

	client   *http.Client
	resolver *env.Resolver
	config   Config
	provider builtin.Provider
	warn     env.WarnFunc
	observer func(*ScenarioResult)
}

type Option func(*Registry)

func WithClient(c *http.Client) Option {
	return func(r *Registry) {
		r.client = c
	}
}

// WithResolver replaces the template resolver, e.g. to share variables
// loaded from an environment.
func WithResolver(res *env.Resolver) Option {
	return func(r *Registry) {
		r.resolver = res
	}
}

// WithProvider backs template functions with p. It is ignored when
// WithResolver is also given.
func WithProvider(p builtin.Provider) Option {
	return func(r *Registry) {
		r.provider = p
	}
}

func WithConfig(cfg Config) Option {
	return func(r *Registry) {
		r.config = cfg
	}
}

func WithBaseURL(url string) Option {
	return func(r *Registry) {
		r.config.BaseURL = url
	}
}

func WithBail(bail bool) Option {
	return func(r *Registry) {
		r.config.Bail = bail
	}
}

func WithRunTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.config.RunTimeout = d
	}
}

// WithNameFilter runs only scenarios whose name matches pattern. A leading
// or trailing '*' matches any suffix or prefix.
func WithNameFilter(pattern string) Option {
	return func(r *Registry) {
		r.config.NameFilter = pattern
	}
}

// WithTags runs only scenarios carrying at least one of tags.
func WithTags(tags ...string) Option {
	return func(r *Registry) {
		r.config.TagsFilter = tags
	}
}

func WithWarnFunc(fn env.WarnFunc) Option {
	return func(r *Registry) {
		r.warn = fn
	}
}

// WithObserver is called with each result as soon as it is known.
func WithObserver(fn func(*ScenarioResult)) Option {
	return func(r *Registry) {
		r.observer = fn
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		byName: make(map[string]*parser.Scenario),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = http.NewClient()
	}
	if r.resolver == nil {
		r.resolver = env.NewResolver(r.provider)
	}
	if r.warn != nil {
		r.resolver.SetWarnFunc(r.warn)
	}
	return r
}

// Resolver returns the resolver holding variables and captured values.
func (r *Registry) Resolver() *env.Resolver {
	return r.resolver
}

// Register appends s. Names must be unique and every dependency must
// already be registered.
func (r *Registry) Register(s *parser.Scenario) error {
	if err := parser.ValidateScenario(s); err != nil {
		return err
	}
	if _, exists := r.byName[s.Name]; exists {
		return fmt.Errorf("%w: %q", parser.ErrDuplicateName, s.Name)
	}
	for _, dep := range s.DependsOn {
		if _, ok := r.byName[dep]; !ok {
			return fmt.Errorf("%w: %q depends on %q, which is not registered", parser.ErrUnknownDependency, s.Name, dep)
		}
	}
	r.scenarios = append(r.scenarios, s)
	r.byName[s.Name] = s
	return nil
}

// RegisterAll registers scenarios in order and stops at the first error.
func (r *Registry) RegisterAll(scenarios []*parser.Scenario) error {
	for _, s := range scenarios {
		if err := r.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// RegisterSuite registers a parsed suite and makes its variables available
// to templates. Variables are resolved once, here, so a variable such as
// "{{randomEmail()}}" keeps one value for the whole run. Relative schema
// files resolve against the suite's directory.
func (r *Registry) RegisterSuite(suite *parser.Suite) error {
	if len(suite.Variables) > 0 {
		resolved, err := r.resolver.ResolveValue(suite.Variables)
		if err != nil {
			return fmt.Errorf("resolving variables of %s: %w", suite.Name, err)
		}
		vars, _ := resolved.(map[string]any)
		r.resolver.SetVariables(vars)
	}
	if r.config.BaseDir == "" && suite.Path != "" {
		r.config.BaseDir = filepath.Dir(suite.Path)
	}
	return r.RegisterAll(suite.Scenarios)
}

// Scenarios returns the registered scenarios in execution order.
func (r *Registry) Scenarios() []*parser.Scenario {
	out := make([]*parser.Scenario, len(r.scenarios))
	copy(out, r.scenarios)
	return out
}

func (r *Registry) Len() int {
	return len(r.scenarios)
}

// RunAll executes every registered scenario in registration order and
// returns exactly one result per scenario. Captured values from a previous
// run are discarded first.
func (r *Registry) RunAll(ctx context.Context) *RunResult {
	if r.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.RunTimeout)
		defer cancel()
	}

	r.resolver.ResetCaptures()

	start := time.Now()
	result := &RunResult{
		ID:        uuid.NewString(),
		StartedAt: start,
	}
	latency := newLatencyRecorder()
	// Scenarios that passed and so published their captures.
	resolved := make(map[string]bool, len(r.scenarios))
	bailed := false

	for _, s := range r.scenarios {
		var res *ScenarioResult
		switch {
		case ctx.Err() != nil:
			res = skipped(s, ReasonRunCancelled)
		case bailed:
			res = skipped(s, ReasonBail)
		case !r.shouldRun(s):
			res = skipped(s, ReasonFilteredOut)
		default:
			if dep := firstUnresolved(s, resolved); dep != "" {
				res = skipped(s, ReasonDependencyPrefix+dep)
				break
			}
			res = r.runScenario(ctx, s)
		}

		if res.Executed() && res.Response != nil {
			latency.record(res.Duration)
		}
		if res.Passed() {
			resolved[s.Name] = true
		}
		if res.Failed() && r.config.Bail {
			bailed = true
		}

		result.add(res)
		if r.observer != nil {
			r.observer(res)
		}
	}

	result.Duration = time.Since(start)
	result.Latency = latency.summary()
	return result
}

func (r *Registry) shouldRun(s *parser.Scenario) bool {
	if r.config.NameFilter != "" && !matchesPattern(s.Name, r.config.NameFilter) {
		return false
	}
	if len(r.config.TagsFilter) > 0 && !hasAnyTag(s.Tags, r.config.TagsFilter) {
		return false
	}
	return true
}

func firstUnresolved(s *parser.Scenario, resolved map[string]bool) string {
	for _, dep := range s.DependsOn {
		if !resolved[dep] {
			return dep
		}
	}
	return ""
}

func skipped(s *parser.Scenario, reason string) *ScenarioResult {
	return &ScenarioResult{
		Name:     s.Name,
		Scenario: s,
		Outcome:  Skipped,
		Reason:   reason,
	}
}

func failed(res *ScenarioResult, kind FailureKind, err error, detail string) *ScenarioResult {
	res.Outcome = Failed
	res.Kind = kind
	res.Error = err
	res.Reason = kind.String() + ": " + detail
	return res
}

// buildRequest resolves every template in s. An *env.UnresolvedError means a
// captured value or variable the scenario needs does not exist.
func (r *Registry) buildRequest(s *parser.Scenario) (*http.Request, error) {
	baseURL := r.config.BaseURL
	if baseURL == "" {
		if v, ok := r.resolver.GetVariable(BaseURLVariable); ok {
			baseURL = env.FormatValue(v)
		}
	}
	baseURL, err := r.resolver.ResolveString(baseURL)
	if err != nil {
		return nil, err
	}

	path, err := r.resolver.ResolveString(s.Request.Path)
	if err != nil {
		return nil, err
	}

	req := http.NewRequest(s.Request.Method, http.JoinURL(baseURL, path))

	headers, err := r.resolver.ResolveAll(s.Request.Headers)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.SetHeader(k, v)
	}

	if s.Request.HasBody() {
		body, err := r.resolver.ResolveValue(s.Request.Body)
		if err != nil {
			return nil, err
		}
		if raw, ok := body.(string); ok {
			req.SetBody([]byte(raw))
		} else if err := req.SetJSONBody(body); err != nil {
			return nil, err
		}
		if !hasHeader(req.Headers, "Content-Type") {
			req.SetHeader("Content-Type", "application/json")
		}
	}

	return req, nil
}

// resolveExpectation substitutes placeholders in expected values, so a
// scenario can assert that a response echoes a captured value.
func (r *Registry) resolveExpectation(exp parser.Expectation) (parser.Expectation, error) {
	out := exp
	out.Body = make([]*parser.Assertion, len(exp.Body))
	for i, a := range exp.Body {
		switch a.Operator {
		case parser.OpEquals, parser.OpIncludes, parser.OpContains:
		default:
			out.Body[i] = a
			continue
		}
		expected, err := r.resolver.ResolveValue(a.Expected)
		if err != nil {
			return exp, err
		}
		resolved := *a
		resolved.Expected = expected
		out.Body[i] = &resolved
	}
	return out, nil
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func (r *Registry) runScenario(ctx context.Context, s *parser.Scenario) *ScenarioResult {
	res := &ScenarioResult{
		Name:     s.Name,
		Scenario: s,
		Captures: make(map[string]any),
	}

	req, err := r.buildRequest(s)
	var expect parser.Expectation
	if err == nil {
		expect, err = r.resolveExpectation(s.Expect)
	}
	if err != nil {
		var ue *env.UnresolvedError
		if errors.As(err, &ue) {
			res.Outcome = Skipped
			res.Reason = ue.Error()
			res.Error = err
			return res
		}
		return failed(res, FailureRequest, err, err.Error())
	}
	res.Request = req

	// Run cancellation stops new scenarios from starting but does not cut a
	// request short; the client timeout still bounds it.
	start := time.Now()
	resp, err := r.client.Do(context.WithoutCancel(ctx), req)
	res.Duration = time.Since(start)
	if err != nil {
		return failed(res, FailureTransport, err, err.Error())
	}
	res.Response = resp
	res.Duration = resp.Duration

	verdict := assertions.Evaluate(expect, resp, assertions.WithBaseDir(r.config.BaseDir))
	res.Assertion = verdict
	if !verdict.Passed {
		return failed(res, FailureAssertion, nil, verdict.Message)
	}

	values, err := capture.ExtractAll(resp, s.Captures)
	if err != nil {
		return failed(res, FailureCapture, err, err.Error())
	}

	// Publish only once every rule succeeded so dependents never see a
	// partial set.
	for _, c := range s.Captures {
		if err := r.resolver.SetCapture(s.Name, c.Name, values[c.Name]); err != nil {
			return failed(res, FailureCapture, err, err.Error())
		}
		res.Captures[c.Name] = values[c.Name]
	}

	res.Outcome = Passed
	return res
}
