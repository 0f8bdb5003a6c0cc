package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mpataki/foundry/internal/models"
)

var errNoJSON = errors.New("response contains no JSON object")

type filesPayload struct {
	Files json.RawMessage `json:"files"`
}

type filePayload struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// DecodeFiles parses a model reply into a file set. The reply may wrap the
// JSON in a markdown fence or surrounding prose. "files" may be a list of
// {path, content} objects or a path to content map.
func DecodeFiles(reply string) (models.FileSet, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}

	var payload filesPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if len(payload.Files) == 0 {
		return nil, fmt.Errorf("reply has no \"files\" field")
	}

	files := models.FileSet{}
	var list []filePayload
	if err := json.Unmarshal(payload.Files, &list); err == nil {
		for _, f := range list {
			if err := files.AddNew(f.Path, f.Content); err != nil {
				return nil, err
			}
		}
		return files, nil
	}

	var byPath map[string]string
	if err := json.Unmarshal(payload.Files, &byPath); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}
	for p, content := range byPath {
		if err := files.AddNew(p, content); err != nil {
			return nil, err
		}
	}
	return files, nil
}

func extractJSON(reply string) (string, error) {
	s := strings.TrimSpace(reply)
	if idx := strings.Index(s, "```"); idx >= 0 {
		body := s[idx+3:]
		if nl := strings.Index(body, "\n"); nl >= 0 {
			body = body[nl+1:]
		}
		if end := strings.LastIndex(body, "```"); end >= 0 {
			body = body[:end]
		}
		s = strings.TrimSpace(body)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", errNoJSON
	}
	return s[start : end+1], nil
}
