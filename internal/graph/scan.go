package graph

import (
	"regexp"
	"strings"
)

// ImportRef is one import statement found by the lexical scan.
type ImportRef struct {
	Token string
	Line  int
	// Names holds the imported names of a python from-import.
	Names  []string
	Static bool
}

// Malformed is an import statement whose syntax could not be understood.
type Malformed struct {
	Statement string
	Line      int
}

type fileScan struct {
	imports   []ImportRef
	malformed []Malformed
	pkg       string
	hasPkg    bool
}

var (
	pyImportRe     = regexp.MustCompile(`^\s*import(\s+(.*))?$`)
	pyFromRe       = regexp.MustCompile(`^\s*from\s+(\S+)\s+import\b\s*(.*)$`)
	pyFromPrefixRe = regexp.MustCompile(`^\s*from\s`)
	pyModuleRe     = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
	pyFromModRe    = regexp.MustCompile(`^\.*([A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*)?$`)
	pyNameRe       = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*|\*)$`)

	jvmPackageRe  = regexp.MustCompile(`^\s*package\s+(.*?)\s*(;)?\s*$`)
	jvmImportRe   = regexp.MustCompile(`^\s*import(\s+(static\s+)?(.*?))?\s*(;)?\s*$`)
	jvmQualRe     = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*$`)
	jvmImportOK   = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*(\.[A-Za-z_$][A-Za-z0-9_$]*)*(\.\*)?$`)
	kotlinAliasRe = regexp.MustCompile(`\s+as\s+[A-Za-z_][A-Za-z0-9_]*$`)
)

// scanPython extracts import statements. Docstrings and comments are
// skipped; anything else that fails to parse is tolerated.
func scanPython(content string) fileScan {
	var out fileScan
	lines := strings.Split(content, "\n")
	open := ""
	for i := 0; i < len(lines); i++ {
		var line string
		line, open = pythonCode(lines[i], open)
		lineNo := i + 1
		if strings.TrimSpace(line) == "" {
			continue
		}

		// Parenthesized from-imports may span lines.
		if pyFromPrefixRe.MatchString(line) && strings.Contains(line, "(") && !strings.Contains(line, ")") {
			for open == "" && i+1 < len(lines) {
				i++
				var next string
				next, open = pythonCode(lines[i], open)
				line += " " + strings.TrimSpace(next)
				if strings.Contains(next, ")") {
					break
				}
			}
		}
		for open == "" && strings.HasSuffix(strings.TrimRight(line, " \t"), "\\") && i+1 < len(lines) {
			i++
			var next string
			next, open = pythonCode(lines[i], open)
			line = strings.TrimSuffix(strings.TrimRight(line, " \t"), "\\") + " " + strings.TrimSpace(next)
		}

		stmt := strings.TrimSpace(line)
		switch {
		case pyFromPrefixRe.MatchString(line):
			m := pyFromRe.FindStringSubmatch(line)
			if m == nil || !pyFromModRe.MatchString(m[1]) {
				out.malformed = append(out.malformed, Malformed{Statement: stmt, Line: lineNo})
				continue
			}
			names, ok := parseFromNames(m[2])
			if !ok {
				out.malformed = append(out.malformed, Malformed{Statement: stmt, Line: lineNo})
				continue
			}
			out.imports = append(out.imports, ImportRef{Token: m[1], Line: lineNo, Names: names})

		case pyImportRe.MatchString(line):
			m := pyImportRe.FindStringSubmatch(line)
			body := strings.TrimSpace(m[2])
			if body == "" {
				out.malformed = append(out.malformed, Malformed{Statement: stmt, Line: lineNo})
				continue
			}
			for _, part := range strings.Split(strings.TrimSuffix(body, ";"), ",") {
				fields := strings.Fields(part)
				valid := len(fields) == 1 || (len(fields) == 3 && fields[1] == "as")
				if !valid || !pyModuleRe.MatchString(fields[0]) {
					out.malformed = append(out.malformed, Malformed{Statement: stmt, Line: lineNo})
					continue
				}
				out.imports = append(out.imports, ImportRef{Token: fields[0], Line: lineNo})
			}
		}
	}
	return out
}

func parseFromNames(raw string) ([]string, bool) {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), ";"))
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(raw, "("), ")"))
	if raw == "" {
		return nil, false
	}
	var names []string
	for _, part := range strings.Split(raw, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			// trailing comma inside parentheses
			continue
		}
		if !(len(fields) == 1 || (len(fields) == 3 && fields[1] == "as")) || !pyNameRe.MatchString(fields[0]) {
			return nil, false
		}
		names = append(names, fields[0])
	}
	return names, len(names) > 0
}

// pythonCode returns the part of line outside comments and triple-quoted
// strings. open is the triple quote left open by earlier lines; the one
// still open at the end of line is returned with the code. Single-line
// literals are kept whole.
func pythonCode(line, open string) (string, string) {
	var code strings.Builder
	for i := 0; i < len(line); {
		if open != "" {
			end := strings.Index(line[i:], open)
			if end < 0 {
				return code.String(), open
			}
			i += end + len(open)
			open = ""
			continue
		}

		c := line[i]
		switch {
		case c == '#':
			return code.String(), ""
		case strings.HasPrefix(line[i:], `"""`), strings.HasPrefix(line[i:], `'''`):
			open = line[i : i+3]
			i += 3
		case c == '"' || c == '\'':
			j := i + 1
			for j < len(line) && line[j] != c {
				if line[j] == '\\' {
					j++
				}
				j++
			}
			end := min(j+1, len(line))
			code.WriteString(line[i:end])
			i = end
		default:
			code.WriteByte(c)
			i++
		}
	}
	return code.String(), open
}

// scanJVM handles java and kotlin sources. Java requires terminating
// semicolons, kotlin does not.
func scanJVM(content string, requireSemicolon bool) fileScan {
	var out fileScan
	inComment := false
	for i, line := range strings.Split(content, "\n") {
		lineNo := i + 1
		if inComment {
			end := strings.Index(line, "*/")
			if end < 0 {
				continue
			}
			inComment = false
			line = line[end+2:]
		}
		if start := strings.Index(line, "/*"); start >= 0 {
			rest := line[start+2:]
			if end := strings.Index(rest, "*/"); end >= 0 {
				line = line[:start] + rest[end+2:]
			} else {
				line = line[:start]
				inComment = true
			}
		}
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "package ") || trimmed == "package":
			if out.hasPkg {
				continue
			}
			m := jvmPackageRe.FindStringSubmatch(line)
			if m == nil || !jvmQualRe.MatchString(m[1]) || (requireSemicolon && m[2] == "") {
				out.malformed = append(out.malformed, Malformed{Statement: trimmed, Line: lineNo})
				continue
			}
			out.pkg = m[1]
			out.hasPkg = true

		case strings.HasPrefix(trimmed, "import ") || trimmed == "import":
			m := jvmImportRe.FindStringSubmatch(line)
			if m == nil {
				out.malformed = append(out.malformed, Malformed{Statement: trimmed, Line: lineNo})
				continue
			}
			token := strings.TrimSpace(m[3])
			if !requireSemicolon {
				token = kotlinAliasRe.ReplaceAllString(token, "")
			}
			if token == "" || !jvmImportOK.MatchString(token) || (requireSemicolon && m[4] == "") {
				out.malformed = append(out.malformed, Malformed{Statement: trimmed, Line: lineNo})
				continue
			}
			out.imports = append(out.imports, ImportRef{Token: token, Line: lineNo, Static: m[2] != ""})
		}
	}
	return out
}
