package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/docrouter/internal/config"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "disabled skips validation",
			mutate: func(c *Config) { c.Enabled = false; c.Endpoint = "" },
		},
		{
			name:   "defaults with enabled",
			mutate: func(c *Config) { c.Enabled = true },
		},
		{
			name:    "enabled without endpoint",
			mutate:  func(c *Config) { c.Enabled = true; c.Endpoint = "" },
			wantErr: true,
		},
		{
			name: "insecure remote endpoint",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Endpoint = "collector.example.com:4317"
				c.Insecure = true
			},
			wantErr: true,
		},
		{
			name: "secure remote endpoint",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Endpoint = "collector.example.com:4317"
				c.Insecure = false
			},
		},
		{
			name: "insecure bracketed ipv6 loopback",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Endpoint = "[::1]:4317"
				c.Insecure = true
			},
		},
		{
			name:    "sampling rate above one",
			mutate:  func(c *Config) { c.Enabled = true; c.Sampling.Rate = 1.5 },
			wantErr: true,
		},
		{
			name:    "unknown protocol",
			mutate:  func(c *Config) { c.Enabled = true; c.Protocol = "thrift" },
			wantErr: true,
		},
		{
			name: "zero shutdown timeout",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Shutdown.Timeout = config.Duration(0)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_Disabled(t *testing.T) {
	cfg := NewDefaultConfig()
	tel, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, tel)

	assert.False(t, tel.Degraded())
	assert.NotNil(t, tel.Tracer("docrouter.test"))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestTestTelemetry_RecordsSpans(t *testing.T) {
	tel := NewTestTelemetry()

	_, span := tel.Tracer("docrouter.test").Start(context.Background(), "classify_attachment")
	span.End()

	tel.AssertSpanExists(t, "classify_attachment")
	assert.Nil(t, tel.SpanByName("missing"))
}

func TestShutdown_UsesConfiguredTimeout(t *testing.T) {
	tel := NewTestTelemetry()
	tel.config.Shutdown.Timeout = config.Duration(time.Second)

	assert.NoError(t, tel.Shutdown(context.Background()))
}
