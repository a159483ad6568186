package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// LanguageRef accepts a language as either a JSON string ("python", "71")
// or a JSON number (71).
type LanguageRef string

func (l *LanguageRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = LanguageRef(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("language_id must be a string or number")
	}
	*l = LanguageRef(n.String())
	return nil
}

// Inputs accepts stdin as a single string or an array of strings.
type Inputs []string

func (in *Inputs) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*in = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*in = Inputs{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("stdin must be a string or an array of strings")
	}
	*in = list
	return nil
}
