package validation

import (
	"fmt"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Michael--/modular-runtime/errors"
)

// Violation is one failed rule.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string { return v.Field + ": " + v.Message }

// Checker accumulates violations across chained rules. Rules on empty
// optional values pass.
type Checker struct {
	violations []Violation
}

// New returns an empty Checker.
func New() *Checker { return &Checker{} }

// Add records a violation unconditionally.
func (c *Checker) Add(field, format string, args ...any) *Checker {
	c.violations = append(c.violations, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	return c
}

// Check records msg for field when ok is false.
func (c *Checker) Check(ok bool, field, msg string) *Checker {
	if !ok {
		c.Add(field, "%s", msg)
	}
	return c
}

// Required rejects blank strings.
func (c *Checker) Required(field, value string) *Checker {
	return c.Check(strings.TrimSpace(value) != "", field, "is required")
}

// HostPort rejects values that are not host:port with a numeric port. The
// host may be empty so ":50053" means every interface.
func (c *Checker) HostPort(field, value string) *Checker {
	if value == "" {
		return c
	}
	_, port, err := net.SplitHostPort(value)
	if err != nil {
		return c.Add(field, "must be host:port")
	}
	n, err := strconv.Atoi(port)
	return c.Check(err == nil && n >= 0 && n <= 65535, field, "must have a port between 0 and 65535")
}

// Positive rejects zero and negative durations.
func (c *Checker) Positive(field string, d time.Duration) *Checker {
	return c.Check(d > 0, field, "must be greater than 0")
}

// Range rejects values outside [lo, hi].
func (c *Checker) Range(field string, value, lo, hi int) *Checker {
	if value < lo || value > hi {
		c.Add(field, "must be between %d and %d", lo, hi)
	}
	return c
}

// OneOf rejects values outside allowed.
func (c *Checker) OneOf(field, value string, allowed []string) *Checker {
	if value == "" || slices.Contains(allowed, value) {
		return c
	}
	return c.Add(field, "must be one of: %s", strings.Join(allowed, ", "))
}

// Violations returns what has been recorded so far.
func (c *Checker) Violations() []Violation { return c.violations }

// Err returns nil, or an INVALID_INPUT AppError covering every violation.
func (c *Checker) Err() error {
	if len(c.violations) == 0 {
		return nil
	}
	return failure(c.violations)
}

func failure(vs []Violation) *errors.AppError {
	msgs := make([]string, len(vs))
	for i, v := range vs {
		msgs[i] = v.String()
	}
	appErr := errors.Validation(strings.Join(msgs, "; "))
	appErr.Details = map[string]any{"fields": vs}
	return appErr
}
