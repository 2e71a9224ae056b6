package config

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SessionConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDomain() string
	GetAPIURL() string
	GetDatabaseURL() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Session
}

func New() Config {
	return mainConfig{}
}
