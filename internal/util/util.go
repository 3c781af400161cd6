package util

import (
	"os"
	"strings"
)

// EnvValue returns the trimmed value of the first set environment variable
// among the given keys. It accepts both uppercase and lowercase variants for
// compatibility with existing conventions.
func EnvValue(keys ...string) string {
	for _, key := range keys {
		for _, variant := range []string{key, strings.ToLower(key)} {
			if value, ok := os.LookupEnv(variant); ok {
				trimmed := strings.TrimSpace(value)
				if trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return ""
}

// HideAPIKey obscures an API key for logging purposes, showing only the first and last few characters.
func HideAPIKey(apiKey string) string {
	if len(apiKey) > 8 {
		return apiKey[:4] + "..." + apiKey[len(apiKey)-4:]
	} else if len(apiKey) > 4 {
		return apiKey[:2] + "..." + apiKey[len(apiKey)-2:]
	} else if len(apiKey) > 2 {
		return apiKey[:1] + "..." + apiKey[len(apiKey)-1:]
	}
	return apiKey
}
