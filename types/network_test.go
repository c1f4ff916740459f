package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNetworkFamily(t *testing.T) {
	tests := []struct {
		network Network
		family  Family
		testnet bool
	}{
		{NetworkBase, FamilyEVM, false},
		{NetworkBaseSepolia, FamilyEVM, true},
		{NetworkPolygon, FamilyEVM, false},
		{NetworkPolygonAmoy, FamilyEVM, true},
		{NetworkSolanaMainnet, FamilySVM, false},
		{NetworkSolanaDevnet, FamilySVM, true},
		{Network("cosmoshub"), FamilyUnknown, false},
		{Network(""), FamilyUnknown, false},
		{Network("BASE-SEPOLIA"), FamilyUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.network.String(), func(t *testing.T) {
			assert.Equal(t, tt.family, tt.network.Family())
			assert.Equal(t, tt.family == FamilyEVM, tt.network.IsEVM())
			assert.Equal(t, tt.family == FamilySVM, tt.network.IsSVM())
			assert.Equal(t, tt.testnet, tt.network.IsTestnet())
		})
	}
}

func TestEVMChainIDs(t *testing.T) {
	assert.Equal(t, int64(84532), EVMChainIDs[NetworkBaseSepolia])
	assert.Equal(t, int64(8453), EVMChainIDs[NetworkBase])

	for network := range EVMChainIDs {
		assert.True(t, network.IsEVM(), "chain id listed for non-EVM network %s", network)
	}
}
