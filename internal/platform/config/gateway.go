package config

import (
	"fmt"
	"os"
	"time"
)

// GatewayConfig tunes the realtime gateway.
type GatewayConfig struct {
	// HeartbeatInterval is the liveness sweep period. A connection that
	// misses two consecutive sweeps is reaped.
	HeartbeatInterval time.Duration

	// WriteTimeout bounds a single frame write to one client.
	WriteTimeout time.Duration

	// MaxFrameBytes caps inbound frame size.
	MaxFrameBytes int64
}

func LoadGatewayConfigFromEnv() (GatewayConfig, error) {
	cfg := GatewayConfig{
		HeartbeatInterval: 30 * time.Second,
		WriteTimeout:      10 * time.Second,
		MaxFrameBytes:     64 * 1024,
	}

	if v := os.Getenv("GATEWAY_HEARTBEAT_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return GatewayConfig{}, fmt.Errorf("GATEWAY_HEARTBEAT_INTERVAL must be a duration (e.g. 30s): %w", err)
		}
		cfg.HeartbeatInterval = d
	}
	if v := os.Getenv("GATEWAY_WRITE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return GatewayConfig{}, fmt.Errorf("GATEWAY_WRITE_TIMEOUT must be a duration (e.g. 10s): %w", err)
		}
		cfg.WriteTimeout = d
	}

	return cfg, nil
}
