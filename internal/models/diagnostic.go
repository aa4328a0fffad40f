package models

import "strings"

// Severity classifies a diagnostic
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the string representation of Severity
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "E"
	case SeverityWarning:
		return "W"
	case SeverityInfo:
		return "I"
	default:
		return "?"
	}
}

// Diagnostic is one finding produced by a check for one package.
// Message is the stable identifier that exception rules match against.
type Diagnostic struct {
	Check    string
	Message  string
	Severity Severity
	Package  string
	Args     []string
}

// ArgString joins the diagnostic arguments for rendering and for
// matching against exception argument patterns.
func (d Diagnostic) ArgString() string {
	return strings.Join(d.Args, " ")
}
