package config

import (
	"fmt"
	"os"
)

const (
	portEnvVar    = "PORT"
	appNameVar    = "APP_NAME"
	domainEnvVar  = "DOMAIN"
	apiURLEnvVar  = "API_URL"
	databaseVar   = "DATABASE_URL"
	defaultDomain = "http://localhost:4567"
	defaultAPIURL = "http://api.pco.test"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "4567")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "PCO OAuth Bridge")
}

// GetDomain returns the externally visible base URL of this service.
// It is used to build the OAuth redirect URI.
func (EnvVars) GetDomain() string {
	return GetEnv(domainEnvVar, defaultDomain)
}

func (EnvVars) GetAPIURL() string {
	return GetEnv(apiURLEnvVar, defaultAPIURL)
}

// GetDatabaseURL returns the Postgres connection string. When empty the
// service falls back to an in-memory credential store (local dev only).
func (EnvVars) GetDatabaseURL() string {
	return GetEnv(databaseVar, "")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
