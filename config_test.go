package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("INSTANCE_ID", "node-a")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTP.Addr)
	assert.Equal(t, TransportRedis, cfg.Channel.Transport)
	assert.Equal(t, DefaultWaitDeadline, cfg.Wait.Waiter.Deadline)
	assert.Equal(t, DefaultDisplayDelay, cfg.Wait.Waiter.DisplayDelay)
	assert.Equal(t, DefaultMaxReconnects, cfg.Wait.Waiter.MaxReconnects)
	assert.Equal(t, 10*time.Minute, cfg.Wait.Retention)
	assert.Equal(t, "@every 1m", cfg.Worker.SweepSpec)
	assert.Equal(t, "paywait-node-a", cfg.Worker.InstanceQueue())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("INSTANCE_ID", "node-b")
	t.Setenv("CHANNEL_TRANSPORT", "PubNub")
	t.Setenv("PN_PUBLISH_KEY", "pub-c-1")
	t.Setenv("PN_SUBSCRIBE_KEY", "sub-c-1")
	t.Setenv("PAYMENT_WAIT_DEADLINE", "90s")
	t.Setenv("SESSION_RETENTION", "2m")
	t.Setenv("CHANNEL_MAX_RECONNECTS", "0")
	t.Setenv("CHANNEL_CONNECT_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, TransportPubNub, cfg.Channel.Transport)
	assert.Equal(t, 90*time.Second, cfg.Wait.Waiter.Deadline)
	assert.Zero(t, cfg.Wait.Waiter.MaxReconnects)
	assert.Equal(t, 3*time.Second, cfg.PubNub.ConnectTimeout)
	assert.Equal(t, "sub-c-1", cfg.PubNub.SubscribeKey)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad duration", map[string]string{"PAYMENT_WAIT_DEADLINE": "soon"}},
		{"bad reconnects", map[string]string{"CHANNEL_MAX_RECONNECTS": "many"}},
		{"negative reconnects", map[string]string{"CHANNEL_MAX_RECONNECTS": "-1"}},
		{"unknown transport", map[string]string{"CHANNEL_TRANSPORT": "carrier-pigeon"}},
		{"pubnub without keys", map[string]string{"CHANNEL_TRANSPORT": "pubnub"}},
		{"retention below deadline", map[string]string{"SESSION_RETENTION": "1m"}},
		{"zero concurrency", map[string]string{"WORKER_CONCURRENCY": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("INSTANCE_ID", "node-a")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLogLevel("DEBUG").String())
	assert.Equal(t, "warn", parseLogLevel("warning").String())
	assert.Equal(t, "info", parseLogLevel("verbose").String())
}
