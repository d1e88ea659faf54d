// ABOUTME: Applies a .env file to the process environment before pipeline commands inherit it.
// ABOUTME: Existing variables always win; the file only fills gaps (no clobber).
package main

import (
	"os"
	"strings"
)

// loadDotEnv applies a .env file so pipeline commands inherit credentials and
// endpoints without the caller exporting them. Missing files are silently
// ignored; variables already in the environment are never overwritten.
func loadDotEnv(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	for _, raw := range strings.Split(string(data), "\n") {
		key, value, ok := parseEnvLine(raw)
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}

// parseEnvLine parses one line of a .env file. It accepts KEY=VALUE with an
// optional "export " prefix and single or double quotes around the value;
// blank lines and # comments yield ok=false.
func parseEnvLine(raw string) (key, value string, ok bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")

	// Values can contain '=' so only the first one splits.
	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return "", "", false
	}

	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if first == last && (first == '"' || first == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return key, value, true
}
