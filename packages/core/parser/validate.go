package parser

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateName     = errors.New("duplicate scenario name")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrInvalidScenario   = errors.New("invalid scenario")
)

// Methods lists the request methods a scenario may use.
var Methods = []string{"GET", "POST", "PUT", "DELETE"}

func isAllowedMethod(m string) bool {
	for _, allowed := range Methods {
		if m == allowed {
			return true
		}
	}
	return false
}

// ValidateScenario checks a scenario on its own, without regard to its
// position in a suite.
func ValidateScenario(s *Scenario) error {
	if s == nil {
		return fmt.Errorf("%w: nil scenario", ErrInvalidScenario)
	}
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidScenario)
	}
	if !isAllowedMethod(s.Request.Method) {
		return fmt.Errorf("%w: %q: unsupported method %q (want one of %s)",
			ErrInvalidScenario, s.Name, s.Request.Method, strings.Join(Methods, ", "))
	}
	if s.Request.Path == "" {
		return fmt.Errorf("%w: %q: missing request path", ErrInvalidScenario, s.Name)
	}
	if s.Expect.Status.IsZero() {
		return fmt.Errorf("%w: %q: missing expected status", ErrInvalidScenario, s.Name)
	}
	for _, p := range s.Expect.HeaderPatterns {
		if p == nil || p.Name == "" {
			return fmt.Errorf("%w: %q: header pattern without a header name", ErrInvalidScenario, s.Name)
		}
	}
	for i, a := range s.Expect.Body {
		if a == nil {
			return fmt.Errorf("%w: %q: body assertion %d is nil", ErrInvalidScenario, s.Name, i)
		}
		if a.Operator == OpSatisfies && a.Predicate == nil {
			return fmt.Errorf("%w: %q: body assertion %d has no predicate", ErrInvalidScenario, s.Name, i)
		}
		if a.Operator == OpMatches && a.Regexp == nil {
			return fmt.Errorf("%w: %q: body assertion %d has no pattern", ErrInvalidScenario, s.Name, i)
		}
	}
	seen := make(map[string]bool)
	for _, c := range s.Captures {
		if c == nil || c.Name == "" {
			return fmt.Errorf("%w: %q: capture without a name", ErrInvalidScenario, s.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: %q: capture %q declared twice", ErrInvalidScenario, s.Name, c.Name)
		}
		seen[c.Name] = true
		if c.Source == CaptureHeader && c.Path == "" {
			return fmt.Errorf("%w: %q: header capture %q without a header name", ErrInvalidScenario, s.Name, c.Name)
		}
	}
	for _, dep := range s.DependsOn {
		if dep == s.Name {
			return fmt.Errorf("%w: %q depends on itself", ErrUnknownDependency, s.Name)
		}
	}
	return nil
}

// Validate checks every scenario and the suite ordering: names are unique
// and each dependency names an earlier scenario.
func Validate(scenarios []*Scenario) error {
	seen := make(map[string]bool, len(scenarios))
	for _, s := range scenarios {
		if err := ValidateScenario(s); err != nil {
			return err
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateName, s.Name)
		}
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("%w: %q depends on %q, which is not registered before it", ErrUnknownDependency, s.Name, dep)
			}
		}
		seen[s.Name] = true
	}
	return nil
}
