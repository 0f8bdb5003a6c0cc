// Package manifest reads declared dependencies from project manifests.
package manifest

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/mpataki/foundry/internal/models"
)

const (
	Requirements = "requirements.txt"
	Pom          = "pom.xml"
)

// Dependencies returns the dependencies declared by the manifests in files,
// in declaration order. A manifest that cannot be parsed is an error.
func Dependencies(files models.FileSet, lang models.Language) ([]string, error) {
	switch lang {
	case models.LanguagePython:
		f, ok := files.Get(Requirements)
		if !ok {
			return nil, nil
		}
		return ParseRequirements(f.Content), nil
	case models.LanguageJava, models.LanguageKotlin:
		f, ok := files.Get(Pom)
		if !ok {
			return nil, nil
		}
		return ParsePom(f.Content)
	}
	return nil, nil
}

// ParseRequirements returns requirement specifiers from a pip requirements
// file. Options such as -r and --index-url are skipped.
func ParseRequirements(content string) []string {
	var deps []string
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		line := sc.Text()
		if idx := strings.Index(line, " #"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		deps = append(deps, line)
	}
	return deps
}

type pomProject struct {
	Dependencies []pomDependency `xml:"dependencies>dependency"`
}

type pomDependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Scope      string `xml:"scope"`
}

// ParsePom returns group:artifact[:version] coordinates of the project's
// direct dependencies.
func ParsePom(content string) ([]string, error) {
	var p pomProject
	if err := xml.Unmarshal([]byte(content), &p); err != nil {
		return nil, fmt.Errorf("parse %s: %w", Pom, err)
	}
	deps := make([]string, 0, len(p.Dependencies))
	for _, d := range p.Dependencies {
		coord := strings.TrimSpace(d.GroupID) + ":" + strings.TrimSpace(d.ArtifactID)
		if v := strings.TrimSpace(d.Version); v != "" {
			coord += ":" + v
		}
		deps = append(deps, coord)
	}
	return deps, nil
}
