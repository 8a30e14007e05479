package config

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ownerHex = "0x00000000000000000000000000000000000000a1"

func TestDefaults(t *testing.T) {
	v := viper.New()
	v.Set("owner", ownerHex)

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, ModeAPI, cfg.Mode)
	assert.Equal(t, ClockSystem, cfg.Clock)
	assert.Equal(t, common.HexToAddress(ownerHex), cfg.Owner)
	assert.Equal(t, common.Address{}, cfg.Engine.Address)
	assert.Equal(t, uint64(2*24*60*60), cfg.Engine.DefaultDuration)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, 3*time.Second, cfg.Chain.PollInterval)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("AUCTION_OWNER", ownerHex)
	t.Setenv("AUCTION_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("AUCTION_MODE", "Indexer")
	t.Setenv("AUCTION_ENGINE_ADDRESS", "0x00000000000000000000000000000000000000e1")
	t.Setenv("AUCTION_CHAIN_POLL_INTERVAL", "500ms")
	t.Setenv("AUCTION_CHAIN_START_BLOCK", "1200")

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, ModeIndexer, cfg.Mode)
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000e1"), cfg.Engine.Address)
	assert.Equal(t, 500*time.Millisecond, cfg.Chain.PollInterval)
	assert.Equal(t, uint64(1200), cfg.Chain.StartBlock)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		set  map[string]interface{}
	}{
		{"missing owner", map[string]interface{}{}},
		{"bad owner", map[string]interface{}{"owner": "alice"}},
		{"unknown mode", map[string]interface{}{"owner": ownerHex, "mode": "batch"}},
		{"unknown clock", map[string]interface{}{"owner": ownerHex, "clock": "ntp"}},
		{"indexer without address", map[string]interface{}{"owner": ownerHex, "mode": ModeIndexer}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := FromViper(v)
			assert.Error(t, err)
		})
	}
}

func TestSetupLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.GetLevel())
	defer logrus.SetFormatter(logrus.StandardLogger().Formatter)

	cfg := &Config{}
	cfg.Log.Level = "debug"
	cfg.Log.JSON = true
	require.NoError(t, cfg.SetupLogging())
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	cfg.Log.Level = "loud"
	assert.Error(t, cfg.SetupLogging())
}
