package mockprovider

import (
	"fmt"
	"strings"
)

// UnfulfilledError reports registered interactions that no recorded request
// satisfied by the time the example finished.
type UnfulfilledError struct {
	Descriptions []string
}

func (e *UnfulfilledError) Error() string {
	return fmt.Sprintf("unfulfilled interactions: %s", strings.Join(e.Descriptions, ", "))
}

// AmbiguousRegistrationError reports two registered interactions that one
// and the same request would satisfy.
type AmbiguousRegistrationError struct {
	First  string
	Second string
}

func (e *AmbiguousRegistrationError) Error() string {
	return fmt.Sprintf("ambiguous registration: %q and %q accept the same request", e.First, e.Second)
}
