package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/vaultkeeper/internal/flagx"
	"github.com/dmitrijs2005/vaultkeeper/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk form of Config. Durations use timex.Duration so
// both "30m" and integer nanoseconds are accepted. Keys missing from the file
// keep their current value.
type FileConfig struct {
	EndpointAddrGRPC string `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	DatabaseDSN      string `json:"database_dsn" yaml:"database_dsn"`
	RedisAddr        string `json:"redis_addr" yaml:"redis_addr"`
	ChallengeSecret  string `json:"challenge_secret" yaml:"challenge_secret"`
	LogLevel         string `json:"log_level" yaml:"log_level"`

	MinPasswordLength    int            `json:"min_password_length" yaml:"min_password_length"`
	MaxFailedAttempts    int            `json:"max_failed_attempts" yaml:"max_failed_attempts"`
	LockoutDuration      timex.Duration `json:"lockout_duration" yaml:"lockout_duration"`
	SessionLifetime      timex.Duration `json:"session_lifetime" yaml:"session_lifetime"`
	PasswordHistoryDepth int            `json:"password_history_depth" yaml:"password_history_depth"`

	ChallengeLifetime    timex.Duration `json:"challenge_lifetime" yaml:"challenge_lifetime"`
	ChallengeMaxAttempts int            `json:"challenge_max_attempts" yaml:"challenge_max_attempts"`
	TOTPIssuer           string         `json:"totp_issuer" yaml:"totp_issuer"`
	BackupCodeCount      int            `json:"backup_code_count" yaml:"backup_code_count"`

	KDFAlgorithm     string `json:"kdf_algorithm" yaml:"kdf_algorithm"`
	KDFTime          uint32 `json:"kdf_time" yaml:"kdf_time"`
	KDFMemoryKiB     uint32 `json:"kdf_memory_kib" yaml:"kdf_memory_kib"`
	KDFParallelism   uint8  `json:"kdf_parallelism" yaml:"kdf_parallelism"`
	KeyLength        uint32 `json:"key_length" yaml:"key_length"`
	PBKDF2Iterations int    `json:"pbkdf2_iterations" yaml:"pbkdf2_iterations"`
	SaltLength       int    `json:"salt_length" yaml:"salt_length"`
	NonceLength      int    `json:"nonce_length" yaml:"nonce_length"`
	TagLength        int    `json:"tag_length" yaml:"tag_length"`
}

func toFile(c *Config) *FileConfig {
	return &FileConfig{
		EndpointAddrGRPC:     c.EndpointAddrGRPC,
		DatabaseDSN:          c.DatabaseDSN,
		RedisAddr:            c.RedisAddr,
		ChallengeSecret:      c.ChallengeSecret,
		LogLevel:             c.LogLevel,
		MinPasswordLength:    c.MinPasswordLength,
		MaxFailedAttempts:    c.MaxFailedAttempts,
		LockoutDuration:      timex.Duration{Duration: c.LockoutDuration},
		SessionLifetime:      timex.Duration{Duration: c.SessionLifetime},
		PasswordHistoryDepth: c.PasswordHistoryDepth,
		ChallengeLifetime:    timex.Duration{Duration: c.ChallengeLifetime},
		ChallengeMaxAttempts: c.ChallengeMaxAttempts,
		TOTPIssuer:           c.TOTPIssuer,
		BackupCodeCount:      c.BackupCodeCount,
		KDFAlgorithm:         c.KDFAlgorithm,
		KDFTime:              c.KDFTime,
		KDFMemoryKiB:         c.KDFMemoryKiB,
		KDFParallelism:       c.KDFParallelism,
		KeyLength:            c.KeyLength,
		PBKDF2Iterations:     c.PBKDF2Iterations,
		SaltLength:           c.SaltLength,
		NonceLength:          c.NonceLength,
		TagLength:            c.TagLength,
	}
}

func (f *FileConfig) apply(c *Config) {
	c.EndpointAddrGRPC = f.EndpointAddrGRPC
	c.DatabaseDSN = f.DatabaseDSN
	c.RedisAddr = f.RedisAddr
	c.ChallengeSecret = f.ChallengeSecret
	c.LogLevel = f.LogLevel
	c.MinPasswordLength = f.MinPasswordLength
	c.MaxFailedAttempts = f.MaxFailedAttempts
	c.LockoutDuration = f.LockoutDuration.Duration
	c.SessionLifetime = f.SessionLifetime.Duration
	c.PasswordHistoryDepth = f.PasswordHistoryDepth
	c.ChallengeLifetime = f.ChallengeLifetime.Duration
	c.ChallengeMaxAttempts = f.ChallengeMaxAttempts
	c.TOTPIssuer = f.TOTPIssuer
	c.BackupCodeCount = f.BackupCodeCount
	c.KDFAlgorithm = f.KDFAlgorithm
	c.KDFTime = f.KDFTime
	c.KDFMemoryKiB = f.KDFMemoryKiB
	c.KDFParallelism = f.KDFParallelism
	c.KeyLength = f.KeyLength
	c.PBKDF2Iterations = f.PBKDF2Iterations
	c.SaltLength = f.SaltLength
	c.NonceLength = f.NonceLength
	c.TagLength = f.TagLength
}

// parseFile overlays the config file named by -c/-config (or the
// VAULTKEEPER_CONFIG variable) onto config. ".yaml" and ".yml" files are
// decoded as YAML, anything else as JSON. No file is not an error.
func parseFile(config *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	fc := toFile(config)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	fc.apply(config)
	return nil
}
