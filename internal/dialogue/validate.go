// internal/dialogue/validate.go
package dialogue

import (
	"fmt"
	"strconv"
	"strings"
)

// Validator checks raw dialogue input. It returns ok=false with a
// user-facing reason when the input must be corrected. Validators are
// pure functions: no side effects, no I/O, and all failure is a
// rejection reason rather than an error.
type Validator func(raw string) (ok bool, reason string)

// allOf composes validators, short-circuiting on the first rejection.
func allOf(checks ...Validator) Validator {
	return func(raw string) (bool, string) {
		for _, check := range checks {
			if ok, reason := check(raw); !ok {
				return false, reason
			}
		}
		return true, ""
	}
}

func nameLength(min, max int) Validator {
	return func(raw string) (bool, string) {
		if len(raw) < min || len(raw) > max {
			return false, fmt.Sprintf("Player name must be between %d-%d characters. Please try again:", min, max)
		}
		return true, ""
	}
}

func nameCharset() Validator {
	return func(raw string) (bool, string) {
		for _, r := range raw {
			if r == ' ' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				continue
			}
			return false, "Player name can only contain letters and spaces. Please try again:"
		}
		return true, ""
	}
}

// statDistribution validates a whitespace-separated list of stat
// points: exactly arity numbers, each at least 1, summing to budget.
// Each failure mode has its own corrective message.
func statDistribution(arity, budget int) Validator {
	return func(raw string) (bool, string) {
		parts := strings.Fields(raw)
		if len(parts) != arity {
			return false, fmt.Sprintf("Please enter exactly %d numbers separated by spaces: `Str Int Dex Con`", arity)
		}
		total := 0
		for _, part := range parts {
			n, err := strconv.Atoi(part)
			if err != nil || n < 1 {
				return false, "All stats must be positive numbers (at least 1). Please try again:"
			}
			total += n
		}
		if total != budget {
			return false, fmt.Sprintf("Total must equal %d (you entered %d). Please try again:", budget, total)
		}
		return true, ""
	}
}
