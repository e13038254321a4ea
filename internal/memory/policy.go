package memory

import "github.com/shahincodev/Sofware-AI-English/pkg/models"

// Policy decides whether a recorded outcome is promoted to long-term memory.
type Policy func(models.Outcome) bool

// DefaultPolicy promotes successful outcomes only.
func DefaultPolicy(o models.Outcome) bool {
	return o.Succeeded()
}

// Never promotes nothing; outcomes stay in short-term memory until they expire.
func Never(models.Outcome) bool { return false }

// ModesPolicy holds for outcomes whose mode is one of modes. With no modes it always holds.
func ModesPolicy(modes ...models.Mode) Policy {
	if len(modes) == 0 {
		return func(models.Outcome) bool { return true }
	}
	set := make(map[models.Mode]struct{}, len(modes))
	for _, m := range modes {
		set[m] = struct{}{}
	}
	return func(o models.Outcome) bool {
		_, ok := set[o.Mode]
		return ok
	}
}

// AllOf holds when every policy holds.
func AllOf(policies ...Policy) Policy {
	return func(o models.Outcome) bool {
		for _, p := range policies {
			if !p(o) {
				return false
			}
		}
		return true
	}
}
