package config

import "time"

// Config holds runtime settings for the vaultkeeper CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the backend gRPC endpoint.
//   - CallTimeout: deadline applied to every request.
//   - ClientLabel: description sent with logins and shown in session lists.
//   - OnlineCheckInterval: how often the server is pinged for the
//     online/offline indicator.
type Config struct {
	ServerEndpointAddr  string
	CallTimeout         time.Duration
	ClientLabel         string
	OnlineCheckInterval time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.CallTimeout = 10 * time.Second
	c.ClientLabel = "vaultkeeper-cli"
	c.OnlineCheckInterval = 10 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	return cfg, nil
}
