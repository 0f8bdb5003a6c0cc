// Package diagnostics turns raw compiler and test runner output into short
// error lines and classifies them.
package diagnostics

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mpataki/foundry/internal/models"
)

type Kind string

const (
	KindSyntax             Kind = "syntax"
	KindBuild              Kind = "build"
	KindRuntime            Kind = "runtime"
	KindLogic              Kind = "logic"
	KindMissingCredentials Kind = "missing_credentials"
	KindTimeout            Kind = "timeout"
)

var (
	pySyntax       = regexp.MustCompile(`(SyntaxError|IndentationError|TabError): (.+?)(?: \((.+?), line (\d+)\))?$`)
	pyFileLine     = regexp.MustCompile(`File "([^"]+)", line (\d+)`)
	pyCompileFile  = regexp.MustCompile(`\*\*\* Error compiling '([^']+)'`)
	pyModuleErr    = regexp.MustCompile(`ModuleNotFoundError: No module named '([^']+)'`)
	pyImportErr    = regexp.MustCompile(`ImportError: (.+)`)
	pyNameErr      = regexp.MustCompile(`NameError: name '([^']+)' is not defined`)
	pytestFailed   = regexp.MustCompile(`^(FAILED|ERROR) ([^\s:]+)(?:::(\S+))?(?: - (.+))?$`)
	javacErr       = regexp.MustCompile(`([\w/\\.-]+\.(?:java|kt)):\[?(\d+)(?:,(\d+))?\]?:? (?:error: )?(.+)$`)
	mavenErrPrefix = regexp.MustCompile(`^\[ERROR\]\s*`)
	javaPackageErr = regexp.MustCompile(`package (\S+) does not exist`)
	surefireFailed = regexp.MustCompile(`^\[ERROR\]\s+(\S+\.\S+):(\d+) (.+)$`)

	missingCreds = regexp.MustCompile(`(?i)api[_\s]?key|unauthorized|authentication failed|missing credentials`)
	runtimeHints = regexp.MustCompile(`(?i)nameerror|typeerror|valueerror|attributeerror|keyerror|classnotfoundexception|nosuchmethoderror|nullpointerexception|connection refused`)

	filePathRe = regexp.MustCompile(`([\w./-]+\.(?:py|java|kt|kts|xml|txt|toml|ya?ml))`)
)

// Maximum number of lines Extract returns.
const maxLines = 50

// Extract returns the error lines of a build or test log, most relevant
// first. An empty result means nothing recognizable was found.
func Extract(log string, lang models.Language) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] || len(out) >= maxLines {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	lines := strings.Split(log, "\n")
	switch lang {
	case models.LanguagePython:
		lastFile, lastLine := "", ""
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if m := pyFileLine.FindStringSubmatch(trimmed); m != nil {
				lastFile, lastLine = m[1], m[2]
				continue
			}
			if m := pyCompileFile.FindStringSubmatch(trimmed); m != nil {
				lastFile, lastLine = m[1], ""
				continue
			}
			if m := pySyntax.FindStringSubmatch(trimmed); m != nil {
				file, lineNo := lastFile, lastLine
				if m[3] != "" {
					file, lineNo = m[3], m[4]
				}
				add(located(file, lineNo, fmt.Sprintf("%s: %s", m[1], m[2])))
				continue
			}
			if m := pytestFailed.FindStringSubmatch(trimmed); m != nil {
				msg := fmt.Sprintf("%s %s", m[1], m[2])
				if m[3] != "" {
					msg += "::" + m[3]
				}
				if m[4] != "" {
					msg += " - " + m[4]
				}
				add(msg)
				continue
			}
			if pyModuleErr.MatchString(trimmed) || pyImportErr.MatchString(trimmed) || pyNameErr.MatchString(trimmed) {
				add(located(lastFile, lastLine, trimmed))
			}
		}

	case models.LanguageJava, models.LanguageKotlin:
		for _, line := range lines {
			trimmed := mavenErrPrefix.ReplaceAllString(strings.TrimSpace(line), "")
			if m := javacErr.FindStringSubmatch(trimmed); m != nil {
				add(fmt.Sprintf("%s:%s: error: %s", m[1], m[2], strings.TrimPrefix(m[4], "error: ")))
				continue
			}
			if javaPackageErr.MatchString(trimmed) {
				add(trimmed)
				continue
			}
			if m := surefireFailed.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
				add(fmt.Sprintf("FAILED %s:%s %s", m[1], m[2], m[3]))
			}
		}
	}
	return out
}

func located(file, line, msg string) string {
	file = strings.TrimPrefix(file, "./")
	switch {
	case file != "" && line != "":
		return fmt.Sprintf("%s:%s: %s", file, line, msg)
	case file != "":
		return fmt.Sprintf("%s: %s", file, msg)
	}
	return msg
}

// Classify assigns an error kind to a single error message.
func Classify(msg string, lang models.Language) Kind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		return KindTimeout
	case missingCreds.MatchString(msg):
		return KindMissingCredentials
	}

	switch lang {
	case models.LanguagePython:
		switch {
		case strings.Contains(lower, "syntaxerror"), strings.Contains(lower, "indentationerror"), strings.Contains(lower, "taberror"):
			return KindSyntax
		case strings.Contains(lower, "modulenotfounderror"), strings.Contains(lower, "importerror"):
			return KindBuild
		case strings.HasPrefix(msg, "FAILED ") || strings.Contains(lower, "assertionerror"):
			return KindLogic
		}
	case models.LanguageJava, models.LanguageKotlin:
		switch {
		case strings.Contains(lower, "package ") && strings.Contains(lower, "does not exist"):
			return KindBuild
		case strings.Contains(lower, "could not resolve dependencies"):
			return KindBuild
		case strings.Contains(lower, "error:") || strings.Contains(lower, "cannot find symbol"):
			return KindSyntax
		case strings.HasPrefix(msg, "FAILED "):
			return KindLogic
		}
	}
	if runtimeHints.MatchString(msg) {
		return KindRuntime
	}
	return KindLogic
}

// FilePath returns the first project-looking file path mentioned in msg.
func FilePath(msg string) string {
	if m := pyFileLine.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	if m := filePathRe.FindStringSubmatch(msg); m != nil {
		return strings.TrimPrefix(m[1], "./")
	}
	return ""
}
