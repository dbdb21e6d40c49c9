package logging

import "strings"

// Level is the minimum severity a logger emits.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

func (l Level) String() string {
	if l < DebugLevel || l > ErrorLevel {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// LookupLevel resolves a level name in any case, with surrounding space
// ignored. "warning" is accepted as WARN.
func LookupLevel(s string) (Level, bool) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "WARNING" {
		return WarnLevel, true
	}
	for l, n := range levelNames {
		if n == name {
			return Level(l), true
		}
	}
	return InfoLevel, false
}

// ParseLevel is LookupLevel falling back to InfoLevel.
func ParseLevel(s string) Level {
	l, _ := LookupLevel(s)
	return l
}
