// Package coverage reports which API endpoints a set of scenarios exercises.
package coverage

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/contractspec/packages/core/parser"
	"github.com/abdul-hamid-achik/contractspec/packages/core/runner"
	"gopkg.in/yaml.v3"
)

// Report represents an API coverage report.
type Report struct {
	TotalEndpoints   int                   `json:"totalEndpoints"`
	CoveredEndpoints int                   `json:"coveredEndpoints"`
	CoveragePercent  float64               `json:"coveragePercent"`
	ByTag            map[string]*TagReport `json:"byTag,omitempty"`
	Endpoints        []EndpointStatus      `json:"endpoints"`
	// Unmatched lists requests that hit no known endpoint.
	Unmatched []ExecutedRequest `json:"unmatched,omitempty"`
}

// TagReport represents coverage for a specific tag.
type TagReport struct {
	Tag              string  `json:"tag"`
	TotalEndpoints   int     `json:"totalEndpoints"`
	CoveredEndpoints int     `json:"coveredEndpoints"`
	CoveragePercent  float64 `json:"coveragePercent"`
}

// EndpointStatus represents the coverage status of an endpoint.
type EndpointStatus struct {
	Method      string   `json:"method"`
	Path        string   `json:"path"`
	OperationID string   `json:"operationId,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Covered     bool     `json:"covered"`
	TestCount   int      `json:"testCount"`
}

// Endpoint is a method and a path pattern such as /posts/{id}.
type Endpoint struct {
	Method      string
	Path        string
	OperationID string
	Tags        []string

	pattern *regexp.Regexp
}

// ExecutedRequest is a request a scenario sends or sent.
type ExecutedRequest struct {
	Method string `json:"method"`
	Path   string `json:"path"`
}

// Analyzer matches requests against known endpoints.
type Analyzer struct {
	endpoints []Endpoint
	rewrite   func(string) string
}

type Option func(*Analyzer)

// WithPathRewrite normalizes every request path before matching, e.g. to
// drop a permission prefix.
func WithPathRewrite(fn func(string) string) Option {
	return func(a *Analyzer) {
		a.rewrite = fn
	}
}

// NewAnalyzer creates a new coverage analyzer.
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		endpoints: make([]Endpoint, 0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var paramPattern = regexp.MustCompile(`\{[^}]+\}`)

// AddEndpoint registers an endpoint. Path parameters are written {name}.
func (a *Analyzer) AddEndpoint(e Endpoint) {
	e.Method = strings.ToUpper(e.Method)
	parts := paramPattern.Split(e.Path, -1)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	e.pattern = regexp.MustCompile("^" + strings.Join(parts, `[^/]+`) + "/?$")
	a.endpoints = append(a.endpoints, e)
}

// Endpoints returns the registered endpoints.
func (a *Analyzer) Endpoints() []Endpoint {
	return a.endpoints
}

// LoadOpenAPI loads endpoints from an OpenAPI document in YAML or JSON.
func (a *Analyzer) LoadOpenAPI(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read spec file: %w", err)
	}

	var spec map[string]any

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, &spec); err != nil {
		if err := json.Unmarshal(data, &spec); err != nil {
			return fmt.Errorf("failed to parse spec as YAML or JSON: %w", err)
		}
	}

	return a.parseOpenAPISpec(spec)
}

func (a *Analyzer) parseOpenAPISpec(spec map[string]any) error {
	paths, ok := spec["paths"].(map[string]any)
	if !ok {
		return fmt.Errorf("no paths found in OpenAPI spec")
	}

	// Map iteration order is random; sort for stable reports.
	names := make([]string, 0, len(paths))
	for path := range paths {
		names = append(names, path)
	}
	sort.Strings(names)

	for _, path := range names {
		pathObj, ok := paths[path].(map[string]any)
		if !ok {
			continue
		}

		for _, method := range []string{"get", "post", "put", "delete"} {
			operation, ok := pathObj[method].(map[string]any)
			if !ok {
				continue
			}

			endpoint := Endpoint{
				Method: method,
				Path:   path,
			}

			if opID, ok := operation["operationId"].(string); ok {
				endpoint.OperationID = opID
			}

			if tags, ok := operation["tags"].([]any); ok {
				for _, tag := range tags {
					if tagStr, ok := tag.(string); ok {
						endpoint.Tags = append(endpoint.Tags, tagStr)
					}
				}
			}

			a.AddEndpoint(endpoint)
		}
	}

	return nil
}

var placeholderPattern = regexp.MustCompile(`\{\{[^}]+\}\}`)

// RequestsFromScenarios lists the requests scenarios would send. Query
// strings are dropped and placeholders stand for one path segment.
func RequestsFromScenarios(scenarios []*parser.Scenario) []ExecutedRequest {
	requests := make([]ExecutedRequest, 0, len(scenarios))
	for _, s := range scenarios {
		path, _, _ := strings.Cut(s.Request.Path, "?")
		path = placeholderPattern.ReplaceAllString(path, "_")
		requests = append(requests, ExecutedRequest{Method: s.Request.Method, Path: path})
	}
	return requests
}

// RequestsFromRun lists the requests a run actually sent.
func RequestsFromRun(result *runner.RunResult) []ExecutedRequest {
	var requests []ExecutedRequest
	for _, res := range result.Results {
		if res.Request == nil {
			continue
		}
		u, err := url.Parse(res.Request.URL)
		if err != nil {
			continue
		}
		requests = append(requests, ExecutedRequest{Method: res.Request.Method, Path: u.Path})
	}
	return requests
}

// Analyze compares requests against the known endpoints.
func (a *Analyzer) Analyze(requests []ExecutedRequest) *Report {
	report := &Report{
		TotalEndpoints: len(a.endpoints),
		ByTag:          make(map[string]*TagReport),
		Endpoints:      make([]EndpointStatus, 0),
	}

	// Track which endpoints were covered and how many times
	coverageCount := make(map[string]int)

	for _, req := range requests {
		matched := false
		for _, endpoint := range a.endpoints {
			if a.matchEndpoint(req, endpoint) {
				coverageCount[endpoint.Method+" "+endpoint.Path]++
				matched = true
				break
			}
		}
		if !matched {
			report.Unmatched = append(report.Unmatched, req)
		}
	}

	// Build endpoint statuses
	for _, endpoint := range a.endpoints {
		count := coverageCount[endpoint.Method+" "+endpoint.Path]
		covered := count > 0

		report.Endpoints = append(report.Endpoints, EndpointStatus{
			Method:      endpoint.Method,
			Path:        endpoint.Path,
			OperationID: endpoint.OperationID,
			Tags:        endpoint.Tags,
			Covered:     covered,
			TestCount:   count,
		})

		if covered {
			report.CoveredEndpoints++
		}

		for _, tag := range endpoint.Tags {
			tagReport, exists := report.ByTag[tag]
			if !exists {
				tagReport = &TagReport{Tag: tag}
				report.ByTag[tag] = tagReport
			}
			tagReport.TotalEndpoints++
			if covered {
				tagReport.CoveredEndpoints++
			}
		}
	}

	if report.TotalEndpoints > 0 {
		report.CoveragePercent = float64(report.CoveredEndpoints) / float64(report.TotalEndpoints) * 100
	}

	for _, tagReport := range report.ByTag {
		if tagReport.TotalEndpoints > 0 {
			tagReport.CoveragePercent = float64(tagReport.CoveredEndpoints) / float64(tagReport.TotalEndpoints) * 100
		}
	}

	// Sort endpoints by path and method
	sort.Slice(report.Endpoints, func(i, j int) bool {
		if report.Endpoints[i].Path != report.Endpoints[j].Path {
			return report.Endpoints[i].Path < report.Endpoints[j].Path
		}
		return report.Endpoints[i].Method < report.Endpoints[j].Method
	})

	return report
}

func (a *Analyzer) matchEndpoint(req ExecutedRequest, endpoint Endpoint) bool {
	if !strings.EqualFold(req.Method, endpoint.Method) {
		return false
	}
	path := req.Path
	if a.rewrite != nil {
		path = a.rewrite(path)
	}
	return endpoint.pattern.MatchString(path)
}

// FormatConsole formats the report for console output.
func (r *Report) FormatConsole() string {
	var sb strings.Builder

	sb.WriteString("\nAPI Coverage Report\n")
	sb.WriteString("===================\n\n")

	sb.WriteString(fmt.Sprintf("Total Endpoints:   %d\n", r.TotalEndpoints))
	sb.WriteString(fmt.Sprintf("Covered Endpoints: %d\n", r.CoveredEndpoints))
	sb.WriteString(fmt.Sprintf("Coverage:          %.1f%%\n\n", r.CoveragePercent))

	if len(r.ByTag) > 0 {
		sb.WriteString("Coverage by Tag:\n")

		tags := make([]string, 0, len(r.ByTag))
		for tag := range r.ByTag {
			tags = append(tags, tag)
		}
		sort.Strings(tags)

		for _, tag := range tags {
			tagReport := r.ByTag[tag]
			sb.WriteString(fmt.Sprintf("  %s: %d/%d (%.1f%%)\n",
				tag, tagReport.CoveredEndpoints, tagReport.TotalEndpoints, tagReport.CoveragePercent))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("Endpoint Details:\n")
	for _, endpoint := range r.Endpoints {
		status := "[ ]"
		if endpoint.Covered {
			status = "[x]"
		}
		sb.WriteString(fmt.Sprintf("  %s %s %s", status, endpoint.Method, endpoint.Path))
		if endpoint.TestCount > 1 {
			sb.WriteString(fmt.Sprintf(" (x%d)", endpoint.TestCount))
		}
		sb.WriteString("\n")
	}

	if len(r.Unmatched) > 0 {
		sb.WriteString("\nRequests Without Endpoint:\n")
		for _, req := range r.Unmatched {
			sb.WriteString(fmt.Sprintf("  %s %s\n", req.Method, req.Path))
		}
	}

	return sb.String()
}

// FormatJSON formats the report as JSON.
func (r *Report) FormatJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
