package payload

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/miradorstack/mirador-relay/internal/models"
)

// Deployment environments.
const (
	EnvLocal      = "local-development"
	EnvProduction = "production"
	EnvStaging    = "staging"
)

const (
	// MaxLogChars bounds the log embedded in a ticket description.
	MaxLogChars = 2000
	// TruncationMarker follows a log cut at MaxLogChars.
	TruncationMarker = "... [TRUNCATED]"
	// MaxSummaryDetail bounds the error text in a ticket summary.
	MaxSummaryDetail = 120
	// SummaryVerb opens every ticket summary.
	SummaryVerb = "Fix"
)

// DetectEnvironment maps CI signals to a deployment environment name.
func DetectEnvironment(ci models.CISignals) string {
	if ci.DeployEnv != "" {
		return ci.DeployEnv
	}
	if !ci.CI {
		return EnvLocal
	}
	switch ref := strings.TrimPrefix(ci.Ref, "refs/heads/"); ref {
	case "main", "master":
		return EnvProduction
	case "staging":
		return EnvStaging
	case "":
		return "ci-unknown"
	default:
		return "ci-" + ref
	}
}

// ExecutionModel names where the failure ran.
func ExecutionModel(ci models.CISignals) string {
	if !ci.CI {
		return "Local"
	}
	if ci.Provider != "" {
		return "CI (" + ci.Provider + ")"
	}
	return "CI"
}

// TruncateLog keeps the first MaxLogChars characters and appends TruncationMarker on
// its own line when anything was cut.
func TruncateLog(log string) string {
	if utf8.RuneCountInString(log) <= MaxLogChars {
		return log
	}
	return string([]rune(log)[:MaxLogChars]) + "\n" + TruncationMarker
}

// sourceTag keeps brackets in a source name from closing the summary tag early.
var sourceTag = strings.NewReplacer("[", "(", "]", ")")

// Summary renders "Fix [<source>] <detail>" with detail cut to MaxSummaryDetail characters.
func Summary(source, detail string) string {
	detail = strings.Join(strings.Fields(detail), " ")
	if detail == "" {
		detail = "Unrecognised failure"
	}
	if utf8.RuneCountInString(detail) > MaxSummaryDetail {
		detail = string([]rune(detail)[:MaxSummaryDetail])
	}
	source = sourceTag.Replace(strings.Join(strings.Fields(source), "-"))
	if source == "" {
		source = "unknown"
	}
	return SummaryVerb + " [" + source + "] " + detail
}

// ReproCommand derives a shell command that reproduces the failure. The file's extension
// picks the interpreter; without a file the phase command or the last commit is shown.
func ReproCommand(file, command, commit string) string {
	var cmd string
	switch {
	case file != "":
		cmd = commandForFile(file)
	case command != "":
		cmd = command
	default:
		cmd = "git log -1"
	}
	if commit != "" {
		return "git checkout " + commit + " && " + cmd
	}
	return cmd
}

func commandForFile(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".py":
		return "python3 " + file
	case ".sh":
		return "bash " + file
	case ".js":
		return "node " + file
	case ".ts":
		return "npx ts-node " + file
	case ".rb":
		return "ruby " + file
	case ".go":
		if strings.HasSuffix(file, "_test.go") {
			return "go test " + packagePath(file)
		}
		return "go run " + file
	default:
		return "cat " + file
	}
}

func packagePath(file string) string {
	dir := filepath.ToSlash(filepath.Dir(file))
	if filepath.IsAbs(file) || strings.HasPrefix(dir, ".") {
		return dir
	}
	return "./" + dir
}
