package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/vaultkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   address and port of the backend server
//	-t int      request timeout in seconds
//	-l string   client label
//
// Only the flags above are considered; see flagx.FilterArgs.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-t", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	timeout := fs.Int("t", int(cfg.CallTimeout.Seconds()), "request timeout (in seconds)")
	fs.StringVar(&cfg.ClientLabel, "l", cfg.ClientLabel, "client label shown in session lists")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.CallTimeout = time.Duration(*timeout) * time.Second
	return nil
}
