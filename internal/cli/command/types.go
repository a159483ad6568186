package command

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// FieldType describes how a parameter is turned into a request value.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldStringList
	// FieldInputs is either a JSON array of strings or one raw string.
	FieldInputs
	FieldJSON
)

// Field defines a CLI input field. FileAlias names a parameter whose value
// is a path to read the field from.
type Field struct {
	Name      string
	Aliases   []string
	FileAlias string
	Prompt    string
	Type      FieldType
	Required  bool
	InQuery   bool
}

// Command binds "<group> <action>" to one API route.
type Command struct {
	Group        string
	Action       string
	Summary      string
	Method       string
	PathTemplate string
	Fields       []Field
}

// Key is the registry key of cmd.
func (c Command) Key() string {
	return c.Group + " " + c.Action
}

// RequestSpec is the built HTTP request.
type RequestSpec struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
}

// Params holds parsed key=value input. Keys are case-insensitive.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

// Canonicalize folds aliases into field names and loads file-backed fields.
func (p Params) Canonicalize(fields []Field) error {
	for _, field := range fields {
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			if value, ok := p[aliasKey]; ok {
				p.Set(field.Name, value)
				delete(p, aliasKey)
			}
		}
		if field.FileAlias == "" || p.Get(field.Name) != "" {
			continue
		}
		if path := p.Get(field.FileAlias); path != "" {
			data, err := ReadFile(path)
			if err != nil {
				return err
			}
			p.Set(field.Name, data)
		}
	}
	return nil
}

func ParseInt(value string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
	return int(n), err
}

func ParseStringList(value string) []string {
	raw := strings.Split(value, ",")
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

// ParseInputs reads a JSON string array, falling back to a single input.
func ParseInputs(value string) []string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "[") {
		var list []string
		if err := json.Unmarshal([]byte(trimmed), &list); err == nil {
			return list
		}
	}
	return []string{value}
}

func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file failed: %w", err)
	}
	return string(data), nil
}

func ParseJSON(value string) (json.RawMessage, error) {
	raw := strings.TrimSpace(value)
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("invalid json content")
	}
	return json.RawMessage(raw), nil
}
