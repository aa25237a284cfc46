package policy

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadError reports a policy file that exists but cannot be used.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load policy %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Load reads a policy file. A missing file yields DefaultPolicy with no
// error; an unreadable, malformed or schema-invalid file is a *LoadError.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultPolicy(), nil
		}
		return nil, &LoadError{Path: path, Err: err}
	}

	p, err := Parse(data)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return p, nil
}

// LoadOrDefault is Load that never fails: on a LoadError it returns
// DefaultPolicy together with the error so the caller can report it.
func LoadOrDefault(path string) (*Policy, error) {
	p, err := Load(path)
	if err != nil {
		return DefaultPolicy(), err
	}
	return p, nil
}

// Parse decodes and validates a policy document.
func Parse(data []byte) (*Policy, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		return nil, errors.New("policy document is empty")
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks constraints the schema cannot express.
func (p *Policy) Validate() error {
	var errs []error

	if _, ok := p.Roles[FallbackRole]; !ok {
		errs = append(errs, fmt.Errorf("roles: the %q role is required as the fallback for unknown roles", FallbackRole))
	}

	tr := p.TimeRestrictions
	if len(tr.AllowedHours) != 0 {
		if len(tr.AllowedHours) != 2 || tr.AllowedHours[0] >= tr.AllowedHours[1] {
			errs = append(errs, fmt.Errorf("time_restrictions.allowed_hours: want [start, end) with start < end, got %v", tr.AllowedHours))
		}
	}
	if _, err := tr.Location(); err != nil {
		errs = append(errs, fmt.Errorf("time_restrictions.timezone: %w", err))
	}

	return errors.Join(errs...)
}
