package config

import (
	"bytes"
	"os"
	"text/template"
)

// ExpandEnv expands environment variables in scenario YAML using Go
// templates with {{.VAR_NAME}} syntax. Plain $ characters pass through
// untouched, so queries containing dollar amounts ("$3000 budget") survive
// expansion.
//
// Missing variables expand to an empty string; malformed templates return
// the input unchanged so the YAML parser can produce its own error.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("scenario").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		if idx := bytes.IndexByte([]byte(env), '='); idx > 0 {
			envMap[env[:idx]] = env[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}
	return buf.Bytes()
}
