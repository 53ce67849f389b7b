package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, 10, cfg.Escrow.CodeAttempts)
	assert.Equal(t, 5*time.Second, cfg.Escrow.LockTimeout)
	assert.Equal(t, "ETH", cfg.Escrow.NativeSymbol)
	assert.Equal(t, int32(18), cfg.Escrow.NativeDecimals)
	assert.True(t, cfg.Escrow.Faucet().IsZero())
	assert.Equal(t, ":9102", cfg.Metrics.Addr)
}

func TestLoadFileAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	dir := t.TempDir()
	yaml := `
bot:
  token: from-file
escrow:
  address: "0x00000000000000000000000000000000000e5c40"
  faucet_amount: "2.5"
  allowed_tokens:
    - address: "0x00000000000000000000000000000000000005d0"
      symbol: USD
      decimals: 6
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("ESCROW_LOCK_TIMEOUT", "250ms")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Bot.Token)
	assert.Equal(t, 250*time.Millisecond, cfg.Escrow.LockTimeout)
	require.Len(t, cfg.Escrow.AllowedTokens, 1)
	assert.Equal(t, "USD", cfg.Escrow.AllowedTokens[0].Symbol)
	assert.Equal(t, int32(6), cfg.Escrow.AllowedTokens[0].Decimals)
	assert.Equal(t, "2.5", cfg.Escrow.Faucet().String())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Escrow: EscrowConfig{
			Address:      "0x00000000000000000000000000000000000e5c40",
			CodeAttempts: 10,
			LockTimeout:  time.Second,
		}}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad escrow address", func(c *Config) { c.Escrow.Address = "nope" }},
		{"zero escrow address", func(c *Config) { c.Escrow.Address = "0x0000000000000000000000000000000000000000" }},
		{"no code attempts", func(c *Config) { c.Escrow.CodeAttempts = 0 }},
		{"no lock timeout", func(c *Config) { c.Escrow.LockTimeout = 0 }},
		{"negative faucet", func(c *Config) { c.Escrow.FaucetAmount = "-1" }},
		{"token without symbol", func(c *Config) {
			c.Escrow.AllowedTokens = []TokenConfig{{Address: "0x00000000000000000000000000000000000005d0"}}
		}},
		{"native token entry", func(c *Config) {
			c.Escrow.AllowedTokens = []TokenConfig{{Address: "0x0000000000000000000000000000000000000000", Symbol: "X"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestAccessLists(t *testing.T) {
	cfg := &Config{Admin: AdminConfig{IDs: []int64{7}}}
	assert.True(t, cfg.IsAdmin(7))
	assert.False(t, cfg.IsAdmin(8))
	assert.True(t, cfg.IsChatAllowed(123), "empty whitelist allows every chat")

	cfg.Whitelist.Chats = []int64{-100}
	assert.True(t, cfg.IsChatAllowed(-100))
	assert.False(t, cfg.IsChatAllowed(123))
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
