package model

import (
	"sort"
	"strconv"
	"strings"

	appErr "codegrader/pkg/errors"
)

// Language is an internal language tag mapped to the judge's numeric id.
type Language struct {
	Tag     string `json:"tag"`
	JudgeID int    `json:"judge_id"`
	Name    string `json:"name"`
}

var languages = []Language{
	{Tag: "c", JudgeID: 50, Name: "C (GCC 9.2.0)"},
	{Tag: "csharp", JudgeID: 51, Name: "C# (Mono 6.6.0.161)"},
	{Tag: "cpp", JudgeID: 54, Name: "C++ (GCC 9.2.0)"},
	{Tag: "go", JudgeID: 60, Name: "Go (1.13.5)"},
	{Tag: "java", JudgeID: 62, Name: "Java (OpenJDK 13.0.1)"},
	{Tag: "javascript", JudgeID: 63, Name: "JavaScript (Node.js 12.14.0)"},
	{Tag: "php", JudgeID: 68, Name: "PHP (7.4.1)"},
	{Tag: "python", JudgeID: 71, Name: "Python (3.8.1)"},
	{Tag: "ruby", JudgeID: 72, Name: "Ruby (2.7.0)"},
	{Tag: "rust", JudgeID: 73, Name: "Rust (1.40.0)"},
	{Tag: "typescript", JudgeID: 74, Name: "TypeScript (3.7.4)"},
	{Tag: "kotlin", JudgeID: 78, Name: "Kotlin (1.3.70)"},
	{Tag: "swift", JudgeID: 83, Name: "Swift (5.2.3)"},
}

var languageAliases = map[string]string{
	"c++":     "cpp",
	"cplus":   "cpp",
	"cs":      "csharp",
	"c#":      "csharp",
	"golang":  "go",
	"js":      "javascript",
	"node":    "javascript",
	"nodejs":  "javascript",
	"py":      "python",
	"python3": "python",
	"ts":      "typescript",
	"kt":      "kotlin",
	"rb":      "ruby",
}

var (
	languagesByTag = map[string]Language{}
	languagesByID  = map[int]Language{}
)

func init() {
	for _, l := range languages {
		languagesByTag[l.Tag] = l
		languagesByID[l.JudgeID] = l
	}
}

// ResolveLanguage accepts a tag, an alias, or a numeric judge id.
// Anything else is LanguageNotSupported.
func ResolveLanguage(raw string) (Language, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return Language{}, appErr.ValidationError("language_id", "required")
	}
	if id, err := strconv.Atoi(key); err == nil {
		if l, ok := languagesByID[id]; ok {
			return l, nil
		}
		return Language{}, unsupported(raw)
	}
	if tag, ok := languageAliases[key]; ok {
		key = tag
	}
	if l, ok := languagesByTag[key]; ok {
		return l, nil
	}
	return Language{}, unsupported(raw)
}

func unsupported(raw string) error {
	return appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", raw).
		WithDetail("field", "language_id")
}

// Languages lists the supported languages ordered by tag.
func Languages() []Language {
	out := append([]Language(nil), languages...)
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}
