package querier

import "strings"

// Config provides environment-based configuration for the core client.
type Config struct {
	// ConnectionURI holds one or more core base URLs, semicolon-separated.
	// Hosts are tried in the order given.
	ConnectionURI string `env:"AUTH_CORE_CONNECTION_URI,required"`

	// APIKey authenticates the SDK against the core. Empty means the core
	// runs without API-key auth (typical for local development).
	APIKey string `env:"AUTH_CORE_API_KEY" envDefault:""`
}

// parseHosts splits the connection URI list and normalizes each entry.
// Empty entries are filtered out; trailing slashes are stripped so paths
// can always be joined with a leading slash.
func (c Config) parseHosts() []string {
	parts := strings.Split(c.ConnectionURI, ";")
	hosts := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.TrimRight(p, "/")
		if p != "" {
			hosts = append(hosts, p)
		}
	}

	return hosts
}
