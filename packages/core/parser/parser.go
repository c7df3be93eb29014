package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type suiteDTO struct {
	Name      string         `yaml:"name"`
	Variables map[string]any `yaml:"variables"`
	Scenarios []yaml.Node    `yaml:"scenarios"`
}

type scenarioDTO struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Tags        []string     `yaml:"tags"`
	DependsOn   []string     `yaml:"dependsOn"`
	Request     requestDTO   `yaml:"request"`
	Expect      expectDTO    `yaml:"expect"`
	Capture     []captureDTO `yaml:"capture"`
}

type requestDTO struct {
	Method  string            `yaml:"method"`
	Path    string            `yaml:"path"`
	Headers map[string]string `yaml:"headers"`
	Body    any               `yaml:"body"`
}

type expectDTO struct {
	Status         yaml.Node          `yaml:"status"`
	Headers        []string           `yaml:"headers"`
	HeaderPatterns []headerPatternDTO `yaml:"headerPatterns"`
	Body           []yaml.Node        `yaml:"body"`
}

type headerPatternDTO struct {
	Name     string `yaml:"name"`
	Contains string `yaml:"contains"`
	Matches  string `yaml:"matches"`
}

type bodyAssertionDTO struct {
	Path     string    `yaml:"path"`
	Equals   yaml.Node `yaml:"equals"`
	Length   *int      `yaml:"length"`
	Includes []any     `yaml:"includes"`
	Field    string    `yaml:"field"`
	Exists   *bool     `yaml:"exists"`
	Type     string    `yaml:"type"`
	Matches  string    `yaml:"matches"`
	Contains *string   `yaml:"contains"`
	Schema   yaml.Node `yaml:"schema"`
}

type captureDTO struct {
	Name    string `yaml:"name"`
	Body    string `yaml:"body"`
	Header  string `yaml:"header"`
	Pattern string `yaml:"pattern"`
}

// ParseFile reads and parses a scenario file.
func ParseFile(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, path)
}

// Parse parses a YAML scenario document. path is used in error messages only.
func Parse(data []byte, path string) (*Suite, error) {
	var dto suiteDTO
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&dto); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{File: path, Line: 1, Message: "empty scenario file"}
		}
		return nil, &ParseError{File: path, Line: yamlErrorLine(err), Message: err.Error()}
	}

	suite := &Suite{
		Path:      path,
		Name:      dto.Name,
		Variables: dto.Variables,
	}
	if suite.Variables == nil {
		suite.Variables = make(map[string]any)
	}

	for i := range dto.Scenarios {
		node := &dto.Scenarios[i]
		s, err := parseScenario(node)
		if err != nil {
			return nil, &ParseError{File: path, Line: node.Line, Message: err.Error()}
		}
		suite.Scenarios = append(suite.Scenarios, s)
	}

	if err := Validate(suite.Scenarios); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return suite, nil
}

func parseScenario(node *yaml.Node) (*Scenario, error) {
	var dto scenarioDTO
	if err := node.Decode(&dto); err != nil {
		return nil, err
	}

	s := &Scenario{
		Name:        dto.Name,
		Description: dto.Description,
		Tags:        dto.Tags,
		DependsOn:   dto.DependsOn,
		Line:        node.Line,
		Request: RequestSpec{
			Method:  strings.ToUpper(dto.Request.Method),
			Path:    dto.Request.Path,
			Headers: dto.Request.Headers,
			Body:    dto.Request.Body,
		},
	}

	status, err := parseStatus(&dto.Expect.Status)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", dto.Name, err)
	}
	s.Expect.Status = status
	s.Expect.Headers = dto.Expect.Headers

	for _, hp := range dto.Expect.HeaderPatterns {
		switch {
		case hp.Matches != "":
			re, err := regexp.Compile(hp.Matches)
			if err != nil {
				return nil, fmt.Errorf("scenario %q: header %s: invalid pattern: %w", dto.Name, hp.Name, err)
			}
			s.Expect.HeaderPatterns = append(s.Expect.HeaderPatterns, HeaderMatches(hp.Name, re))
		case hp.Contains != "":
			s.Expect.HeaderPatterns = append(s.Expect.HeaderPatterns, HeaderContains(hp.Name, hp.Contains))
		default:
			return nil, fmt.Errorf("scenario %q: header %s: pattern needs 'contains' or 'matches'", dto.Name, hp.Name)
		}
	}

	for i := range dto.Expect.Body {
		a, err := parseAssertion(&dto.Expect.Body[i])
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", dto.Name, err)
		}
		s.Expect.Body = append(s.Expect.Body, a)
	}

	for _, c := range dto.Capture {
		capture, err := parseCapture(c)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", dto.Name, err)
		}
		s.Captures = append(s.Captures, capture)
	}

	return s, nil
}

// parseStatus accepts 201, [200, 201] or a class such as "2xx".
func parseStatus(node *yaml.Node) (StatusExpectation, error) {
	switch node.Kind {
	case 0:
		return StatusExpectation{}, nil
	case yaml.ScalarNode:
		value := strings.TrimSpace(node.Value)
		if code, err := strconv.Atoi(value); err == nil {
			return Status(code), nil
		}
		lower := strings.ToLower(value)
		if len(lower) == 3 && strings.HasSuffix(lower, "xx") && lower[0] >= '1' && lower[0] <= '5' {
			base := int(lower[0]-'0') * 100
			return StatusRange(base, base+99), nil
		}
		return StatusExpectation{}, fmt.Errorf("line %d: invalid status %q", node.Line, value)
	case yaml.SequenceNode:
		var codes []int
		if err := node.Decode(&codes); err != nil {
			return StatusExpectation{}, fmt.Errorf("line %d: invalid status list: %w", node.Line, err)
		}
		return StatusIn(codes...), nil
	default:
		return StatusExpectation{}, fmt.Errorf("line %d: status must be a code, a list of codes or a class like 2xx", node.Line)
	}
}

func parseAssertion(node *yaml.Node) (*Assertion, error) {
	var dto bodyAssertionDTO
	if err := node.Decode(&dto); err != nil {
		return nil, fmt.Errorf("line %d: %w", node.Line, err)
	}

	var found []*Assertion
	if dto.Equals.Kind != 0 {
		var v any
		if err := dto.Equals.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		found = append(found, Equals(dto.Path, v))
	}
	if dto.Length != nil {
		found = append(found, Length(dto.Path, *dto.Length))
	}
	if dto.Includes != nil {
		if dto.Field != "" {
			found = append(found, IncludesField(dto.Path, dto.Field, dto.Includes...))
		} else {
			found = append(found, Includes(dto.Path, dto.Includes...))
		}
	}
	if dto.Exists != nil {
		if !*dto.Exists {
			return nil, fmt.Errorf("line %d: 'exists: false' is not supported", node.Line)
		}
		found = append(found, Exists(dto.Path))
	}
	if dto.Type != "" {
		found = append(found, IsType(dto.Path, dto.Type))
	}
	if dto.Matches != "" {
		re, err := regexp.Compile(dto.Matches)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid pattern: %w", node.Line, err)
		}
		found = append(found, Matches(dto.Path, re))
	}
	if dto.Contains != nil {
		found = append(found, Contains(dto.Path, *dto.Contains))
	}
	if dto.Schema.Kind != 0 {
		var v any
		if err := dto.Schema.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		found = append(found, Schema(dto.Path, v))
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("line %d: body assertion on %q has no operator", node.Line, dto.Path)
	case 1:
		found[0].Line = node.Line
		return found[0], nil
	default:
		return nil, fmt.Errorf("line %d: body assertion on %q has more than one operator", node.Line, dto.Path)
	}
}

func parseCapture(dto captureDTO) (*Capture, error) {
	if dto.Name == "" {
		return nil, fmt.Errorf("capture without a name")
	}
	switch {
	case dto.Header != "":
		var re *regexp.Regexp
		if dto.Pattern != "" {
			var err error
			re, err = regexp.Compile(dto.Pattern)
			if err != nil {
				return nil, fmt.Errorf("capture %q: invalid pattern: %w", dto.Name, err)
			}
		}
		return CaptureFromHeader(dto.Name, dto.Header, re), nil
	case dto.Body != "":
		if dto.Pattern != "" {
			return nil, fmt.Errorf("capture %q: pattern applies to header captures only", dto.Name)
		}
		return CaptureFromBody(dto.Name, dto.Body), nil
	default:
		return nil, fmt.Errorf("capture %q: needs 'body' or 'header'", dto.Name)
	}
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

func yamlErrorLine(err error) int {
	m := yamlLinePattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}
