package config

import (
	"fmt"

	"github.com/google/uuid"
)

const tokenKey = "auth.token"

// APIToken returns the bearer token shared by the server and the CLI,
// generating and persisting one on first use.
func APIToken() (string, error) {
	return apiToken(newFileBackend())
}

func apiToken(b Backend) (string, error) {
	token, ok, err := b.GetString(tokenKey)
	if err != nil {
		return "", fmt.Errorf("reading API token: %w", err)
	}
	if ok && token != "" {
		return token, nil
	}

	token = uuid.New().String()
	if err := b.SetString(tokenKey, token); err != nil {
		return "", fmt.Errorf("persisting API token: %w", err)
	}
	return token, nil
}
