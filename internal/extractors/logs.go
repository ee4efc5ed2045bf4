package extractors

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultExceptionType is reported when a log names no exception.
const DefaultExceptionType = "RuntimeError"

// LogFacts are the fields recovered from a raw failure log.
type LogFacts struct {
	ExceptionType  string
	FirstErrorLine string
	File           string
	Line           int
}

// HasLocation reports whether a file:line pair was found.
func (f LogFacts) HasLocation() bool {
	return f.File != "" && f.Line > 0
}

var (
	exceptionPattern  = regexp.MustCompile(`\b([A-Za-z_][\w.]*(?:Error|Exception))\b`)
	panicPattern      = regexp.MustCompile(`(?m)^panic: `)
	pyFramePattern    = regexp.MustCompile(`File "([^"]+)", line (\d+)`)
	sourceLinePattern = regexp.MustCompile(`([\w./\\-]+\.(?:go|py|js|ts|rb|sh|java|rs|kt|c|cc|cpp)):(\d+)`)
	errorWordPattern  = regexp.MustCompile(`(?i)\b(error|exception|fail(ed|ure)?|panic|fatal|traceback)\b`)
)

// LogsExtractor pulls exception, location, and headline facts out of failure logs.
type LogsExtractor struct{}

// NewLogsExtractor constructs a log fact extractor.
func NewLogsExtractor() *LogsExtractor {
	return &LogsExtractor{}
}

// Extract scans log once for every fact. Missing facts stay zero except the
// exception type, which falls back to DefaultExceptionType.
func (e *LogsExtractor) Extract(log string) LogFacts {
	facts := LogFacts{
		ExceptionType:  exceptionType(log),
		FirstErrorLine: firstErrorLine(log),
	}
	facts.File, facts.Line = lastLocation(log)
	return facts
}

// exceptionType prefers the last named *Error/*Exception; Go panics without one map to "panic".
func exceptionType(log string) string {
	if matches := exceptionPattern.FindAllStringSubmatch(log, -1); len(matches) > 0 {
		name := matches[len(matches)-1][1]
		if idx := strings.LastIndex(name, "."); idx >= 0 && idx < len(name)-1 {
			name = name[idx+1:]
		}
		return name
	}
	if panicPattern.MatchString(log) {
		return "panic"
	}
	return DefaultExceptionType
}

// lastLocation returns the innermost frame: the last Python frame, else the last file:line.
func lastLocation(log string) (string, int) {
	if frames := pyFramePattern.FindAllStringSubmatch(log, -1); len(frames) > 0 {
		last := frames[len(frames)-1]
		if n, err := strconv.Atoi(last[2]); err == nil {
			return last[1], n
		}
	}
	if refs := sourceLinePattern.FindAllStringSubmatch(log, -1); len(refs) > 0 {
		last := refs[len(refs)-1]
		if n, err := strconv.Atoi(last[2]); err == nil {
			return last[1], n
		}
	}
	return "", 0
}

func firstErrorLine(log string) string {
	first := ""
	for _, raw := range strings.Split(log, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if first == "" {
			first = line
		}
		if errorWordPattern.MatchString(line) {
			return line
		}
	}
	return first
}
