package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultTokenEnvVar is checked when no token is supplied on the
// command line or in a token file.
const DefaultTokenEnvVar = "CHUNKUPLOAD_ENDPOINT_TOKEN"

// ResolveEndpointToken returns a bearer token for authenticating chunk
// uploads, checking sources in priority order: the explicit flag
// value, a token file, then the environment variable. This module has
// no per-user service profile to check, so the lookup chain ends
// there.
func ResolveEndpointToken(flagValue, tokenFilePath string) string {
	if flagValue != "" {
		return flagValue
	}
	if tokenFilePath != "" {
		if token, err := readTokenFile(tokenFilePath); err == nil && token != "" {
			return token
		}
	}
	return os.Getenv(DefaultTokenEnvVar)
}

// DefaultTokenPath returns ~/.config/chunkupload/token (or the
// Windows equivalent under %USERPROFILE%).
func DefaultTokenPath() string {
	configPath, err := DefaultConfigPath()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(configPath), "token")
}

func readTokenFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
