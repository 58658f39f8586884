package domain

import (
	"fmt"
	"strings"
)

// ValidateXPAmount rejects grants outside [MinXPAmount, MaxXPAmount].
func ValidateXPAmount(amount int64) error {
	if amount < MinXPAmount || amount > MaxXPAmount {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidAmount, amount, MinXPAmount, MaxXPAmount)
	}
	return nil
}

// NormalizeSource maps s onto the whitelist. Unknown sources become
// SourceManual; ok is false when that coercion happened.
func NormalizeSource(s string) (src XPSource, ok bool) {
	v := XPSource(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range XPSources {
		if v == known {
			return v, true
		}
	}
	return SourceManual, false
}
