package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/vaultkeeper/internal/flagx"
)

var knownFlags = []string{
	"-a", "-d", "-r", "-s", "-l",
	"-min-password", "-max-attempts", "-lockout", "-session-lifetime", "-history",
	"-kdf",
}

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string                 gRPC bind address (e.g., ":50051")
//	-d string                 PostgreSQL DSN
//	-r string                 Redis address for pending challenges
//	-s string                 challenge token HMAC secret
//	-l string                 log level (debug, info, warn, error)
//	-min-password int         minimum password length
//	-max-attempts int         failed logins before lockout
//	-lockout duration         lockout period (e.g., "30m")
//	-session-lifetime duration
//	-history int              retained password history depth
//	-kdf string               argon2id or pbkdf2-sha256
//
// args are filtered with flagx.FilterArgs first so flags owned by other
// components (such as -c) do not cause errors.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.ChallengeSecret, "s", config.ChallengeSecret, "challenge token secret")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	fs.IntVar(&config.MinPasswordLength, "min-password", config.MinPasswordLength, "minimum password length")
	fs.IntVar(&config.MaxFailedAttempts, "max-attempts", config.MaxFailedAttempts, "failed logins before lockout")
	fs.DurationVar(&config.LockoutDuration, "lockout", config.LockoutDuration, "lockout duration")
	fs.DurationVar(&config.SessionLifetime, "session-lifetime", config.SessionLifetime, "session lifetime")
	fs.IntVar(&config.PasswordHistoryDepth, "history", config.PasswordHistoryDepth, "password history depth")
	fs.StringVar(&config.KDFAlgorithm, "kdf", config.KDFAlgorithm, "key derivation algorithm")

	return fs.Parse(args)
}
