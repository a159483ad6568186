package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var sourceFields = []Field{
	{Name: "source_code", Aliases: []string{"code"}, FileAlias: "source_file", Prompt: "source_code", Type: FieldString, Required: true},
	{Name: "language_id", Aliases: []string{"lang", "language"}, Prompt: "language_id", Type: FieldString, Required: true},
	{Name: "stdin", FileAlias: "stdin_file", Prompt: "stdin", Type: FieldInputs},
	{Name: "top_code", FileAlias: "top_file", Prompt: "top_code", Type: FieldString},
	{Name: "bottom_code", FileAlias: "bottom_file", Prompt: "bottom_code", Type: FieldString},
}

// Registry returns all CLI commands keyed by "group action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Group:        "exec",
			Action:       "run",
			Summary:      "dispatch source once per stdin entry",
			Method:       "POST",
			PathTemplate: "/api/v1/executions",
			Fields:       sourceFields,
		},
		{
			Group:        "exec",
			Action:       "result",
			Summary:      "fetch one judge result",
			Method:       "GET",
			PathTemplate: "/api/v1/executions/:token",
			Fields: []Field{
				{Name: "token", Prompt: "token", Type: FieldString, Required: true},
			},
		},
		{
			Group:        "exec",
			Action:       "results",
			Summary:      "fetch judge results in token order",
			Method:       "POST",
			PathTemplate: "/api/v1/executions/results",
			Fields: []Field{
				{Name: "tokens", Prompt: "tokens (comma-separated)", Type: FieldStringList, Required: true},
			},
		},
		{
			Group:        "exec",
			Action:       "languages",
			Summary:      "list supported languages",
			Method:       "GET",
			PathTemplate: "/api/v1/languages",
		},
		{
			Group:        "submit",
			Action:       "create",
			Summary:      "dispatch and record a pending submission",
			Method:       "POST",
			PathTemplate: "/api/v1/submissions",
			Fields: append([]Field{
				{Name: "problem_id", Aliases: []string{"problem"}, Prompt: "problem_id", Type: FieldString, Required: true},
				{Name: "expected_outputs", Aliases: []string{"expected"}, FileAlias: "expected_file", Prompt: "expected_outputs", Type: FieldInputs},
				{Name: "idempotency_key", Prompt: "idempotency_key", Type: FieldString},
			}, sourceFields...),
		},
		{
			Group:        "submit",
			Action:       "finalize",
			Summary:      "grade a submission from collected results",
			Method:       "POST",
			PathTemplate: "/api/v1/submissions/:id/finalize",
			Fields: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldString, Required: true},
				{Name: "results", FileAlias: "results_file", Prompt: "results (json array)", Type: FieldJSON, Required: true},
				{Name: "expected_outputs", Aliases: []string{"expected"}, FileAlias: "expected_file", Prompt: "expected_outputs", Type: FieldInputs, Required: true},
			},
		},
		{
			Group:        "submit",
			Action:       "refresh",
			Summary:      "poll the judge and finalize when done",
			Method:       "POST",
			PathTemplate: "/api/v1/submissions/:id/refresh",
			Fields: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Group:        "submit",
			Action:       "get",
			Summary:      "show one submission",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id",
			Fields: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Group:        "submit",
			Action:       "list",
			Summary:      "list recent submissions",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions",
			Fields: []Field{
				{Name: "problem_id", Aliases: []string{"problem"}, Type: FieldString, InQuery: true},
				{Name: "limit", Type: FieldInt, InQuery: true},
			},
		},
		{
			Group:        "submit",
			Action:       "batch",
			Summary:      "record already graded submissions",
			Method:       "POST",
			PathTemplate: "/api/v1/submissions/batch",
			Fields: []Field{
				{Name: "submissions", FileAlias: "submissions_file", Prompt: "submissions (json array)", Type: FieldJSON, Required: true},
			},
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// SortedKeys lists registry keys alphabetically.
func SortedKeys(commands map[string]Command) []string {
	keys := make([]string, 0, len(commands))
	for key := range commands {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// BuildRequest creates the HTTP request for cmd from params.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	if err := params.Canonicalize(cmd.Fields); err != nil {
		return RequestSpec{}, err
	}
	for _, field := range cmd.Fields {
		if field.Required && strings.TrimSpace(params.Get(field.Name)) == "" {
			return RequestSpec{}, fmt.Errorf("%s is required", field.Name)
		}
	}
	path, err := buildPath(cmd, params)
	if err != nil {
		return RequestSpec{}, err
	}

	headers := map[string]string{}
	if key := params.Get("idempotency_key"); key != "" {
		headers["Idempotency-Key"] = key
	}

	var body []byte
	if cmd.Method != "GET" && cmd.Method != "DELETE" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		body, err = json.Marshal(payload)
		if err != nil {
			return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: headers,
		Body:    body,
	}, nil
}

func buildPath(cmd Command, params Params) (string, error) {
	path := cmd.PathTemplate
	for _, key := range []string{"id", "token"} {
		placeholder := ":" + key
		if strings.Contains(path, placeholder) {
			value := params.Get(key)
			if value == "" {
				return "", fmt.Errorf("missing path parameter: %s", key)
			}
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(value))
		}
	}

	query := url.Values{}
	for _, field := range cmd.Fields {
		if !field.InQuery || params.Get(field.Name) == "" {
			continue
		}
		if field.Type == FieldInt {
			if _, err := ParseInt(params.Get(field.Name)); err != nil {
				return "", fmt.Errorf("invalid %s: %w", field.Name, err)
			}
		}
		query.Set(field.Name, params.Get(field.Name))
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (map[string]interface{}, error) {
	payload := map[string]interface{}{}
	for _, field := range cmd.Fields {
		if field.InQuery || field.Name == "id" || field.Name == "token" || field.Name == "idempotency_key" {
			continue
		}
		raw := params.Get(field.Name)
		if raw == "" && !field.Required {
			continue
		}
		switch field.Type {
		case FieldString:
			payload[field.Name] = raw
		case FieldInt:
			n, err := ParseInt(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
			}
			payload[field.Name] = n
		case FieldStringList:
			payload[field.Name] = ParseStringList(raw)
		case FieldInputs:
			payload[field.Name] = ParseInputs(raw)
		case FieldJSON:
			value, err := ParseJSON(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %w", field.Name, err)
			}
			payload[field.Name] = value
		}
	}
	return payload, nil
}
