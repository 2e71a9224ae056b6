package config

import "strings"

type Cors struct{}

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

// defaultOrigins are the upstream platform's own web surfaces. These are the
// only origins allowed to call the server-to-server endpoints from a browser.
var defaultOrigins = AllowedOrigins{
	"http://api.pco.test":                       nullValue{},
	"https://api-staging.planningcenteronline.com": nullValue{},
	"https://api.planningcenteronline.com":         nullValue{},
}

// GetAllowedOrigins returns the exact-match origin allow-list. Overridable
// via ALLOWED_ORIGINS (comma separated); a wildcard is never honoured.
func (Cors) GetAllowedOrigins() AllowedOrigins {
	raw := GetEnv("ALLOWED_ORIGINS", "")
	if raw == "" {
		return defaultOrigins
	}
	origins := AllowedOrigins{}
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimSpace(o)
		if o == "" || o == "*" {
			continue
		}
		origins[o] = nullValue{}
	}
	return origins
}

func (Cors) GetAllowedMethods() string {
	return "POST"
}
