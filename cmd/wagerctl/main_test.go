package main

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wager-bot/internal/service"
)

func TestParseOwner(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	got, err := parseOwner(addr.Hex())
	require.NoError(t, err)
	assert.Equal(t, addr, got)

	got, err = parseOwner("12345")
	require.NoError(t, err)
	assert.Equal(t, service.IdentityFor(12345), got)

	_, err = parseOwner("alice")
	assert.Error(t, err)
}

func TestParseToken(t *testing.T) {
	ref, err := parseToken("0x00000000000000000000000000000000000000bb")
	require.NoError(t, err)
	assert.False(t, ref.IsNative())

	_, err = parseToken("0x0000000000000000000000000000000000000000")
	assert.Error(t, err)

	_, err = parseToken("USDC")
	assert.Error(t, err)
}

func TestRootCommandTree(t *testing.T) {
	root := rootCmd()
	for _, path := range [][]string{
		{"migrate"},
		{"asset", "allow"},
		{"asset", "revoke"},
		{"asset", "list"},
		{"wallet", "mint"},
		{"wallet", "show"},
		{"game", "list"},
		{"game", "show"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
