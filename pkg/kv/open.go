package kv

import (
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendS3     = "s3"
)

// Config selects and configures a backend.
type Config struct {
	Backend       string
	Path          string
	Passphrase    string
	RedisAddr     string
	RedisPassword string
	RedisPrefix   string
	Object        ObjectConfig
}

// Open builds the store named by cfg.Backend. An empty backend means file.
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendFile:
		return NewFileStore(cfg.Path, cfg.Passphrase)
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		return NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisPrefix)
	case BackendS3:
		return NewObjectStore(cfg.Object)
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", cfg.Backend)
	}
}
