package quiz

import (
	"fmt"
	"time"
)

// RevealPolicy decides when a student who asks for correct answers gets
// them. The default is always; after_close holds keys back while the quiz
// is still open.
type RevealPolicy string

const (
	RevealAlways     RevealPolicy = "always"
	RevealAfterClose RevealPolicy = "after_close"
	RevealNever      RevealPolicy = "never"
)

func ParseRevealPolicy(s string) (RevealPolicy, error) {
	switch p := RevealPolicy(s); p {
	case RevealAlways, RevealAfterClose, RevealNever:
		return p, nil
	case "":
		return RevealAlways, nil
	}
	return "", fmt.Errorf("unknown reveal policy %q", s)
}

// Allows reports whether a student may see the answers of q at now.
// A quiz without a close time is treated as closed for after_close.
func (p RevealPolicy) Allows(q Quiz, now time.Time) bool {
	switch p {
	case RevealAlways:
		return true
	case RevealNever:
		return false
	default:
		return q.ClosesAt() == nil || q.HasClosed(now)
	}
}
