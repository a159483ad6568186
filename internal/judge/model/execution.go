package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// JobRequest is the body of an asynchronous judge submission.
type JobRequest struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin"`
}

// JobStatus is the judge's verdict for one job.
type JobStatus struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// JudgeResult is one job's result as reported by the judge. It is passed
// through to callers unchanged.
type JudgeResult struct {
	Token         string      `json:"token,omitempty"`
	Status        JobStatus   `json:"status"`
	Stdout        *string     `json:"stdout"`
	Stderr        *string     `json:"stderr"`
	CompileOutput *string     `json:"compile_output"`
	Message       *string     `json:"message"`
	Time          NumericText `json:"time"`
	WallTime      NumericText `json:"wall_time"`
	Memory        NumericText `json:"memory"`
	ExitCode      *int        `json:"exit_code,omitempty"`
	ExitSignal    *int        `json:"exit_signal,omitempty"`
}

// StdoutText returns stdout, treating a missing value as empty.
func (r JudgeResult) StdoutText() string {
	if r.Stdout == nil {
		return ""
	}
	return *r.Stdout
}

// Finished reports whether the judge has stopped working on the job.
func (r JudgeResult) Finished() bool {
	return IsFinished(r.Status.ID)
}

// NumericText holds a judge metric that may arrive as a JSON string ("0.012"),
// a number, or null. The raw text and its JSON form are kept so the value is
// written back the way the judge sent it.
type NumericText struct {
	Raw    string
	Valid  bool
	Quoted bool
}

// NumericFrom builds a NumericText from a float, mainly for tests and batch input.
func NumericFrom(v float64) NumericText {
	return NumericText{Raw: strconv.FormatFloat(v, 'f', -1, 64), Valid: true}
}

// Float returns the parsed value; missing or non-numeric text yields 0.
func (n NumericText) Float() float64 {
	if !n.Valid {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(n.Raw), 64)
	if err != nil {
		return 0
	}
	return v
}

func (n *NumericText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = NumericText{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = NumericText{Raw: s, Valid: true, Quoted: true}
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*n = NumericText{Raw: num.String(), Valid: true}
	return nil
}

func (n NumericText) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	if n.Quoted {
		return json.Marshal(n.Raw)
	}
	if _, err := strconv.ParseFloat(n.Raw, 64); err == nil {
		return []byte(n.Raw), nil
	}
	return json.Marshal(n.Raw)
}
