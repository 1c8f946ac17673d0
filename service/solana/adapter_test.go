package solana

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEndpointLabel(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://api.mainnet-beta.solana.com", "mainnet"},
		{"https://api.devnet.solana.com", "devnet"},
		{"https://api.testnet.solana.com", "testnet"},
		{"https://mainnet.helius-rpc.com/?api-key=secret", "helius"},
		{"https://example.solana-mainnet.quiknode.pro/secret/", "quiknode"},
		{"https://solana-mainnet.g.alchemy.com/v2/secret", "alchemy"},
		{"http://localhost:8899", "localhost"},
		{"not a url", "unknown"},
		{"", "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got := EndpointLabel(tt.url)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "secret")
		})
	}
}

func TestNewRPCClient(t *testing.T) {
	client := NewRPCClient("http://localhost:8899")
	assert.NotNil(t, client)
}
