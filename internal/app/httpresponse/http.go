package httpresponse

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Diagnostic is the JSON body the mock provider returns when a request cannot
// be served: no interaction matched, several matched at once, or the request
// itself could not be read.
type Diagnostic struct {
	ErrorMessage string   `json:"error_message"`
	Candidate    string   `json:"candidate,omitempty"`
	Mismatches   []string `json:"mismatches,omitempty"`
}

func Error(message string) *Diagnostic {
	log.Error(message)
	return &Diagnostic{
		ErrorMessage: message,
	}
}

func Errorf(format string, a ...interface{}) *Diagnostic {
	return Error(fmt.Sprintf(format, a...))
}

// WithCandidate names the nearest-miss interaction and its mismatch lines so
// a failing test can show why the closest registration was rejected.
func (d *Diagnostic) WithCandidate(title string, mismatches []string) *Diagnostic {
	d.Candidate = title
	d.Mismatches = mismatches
	return d
}
