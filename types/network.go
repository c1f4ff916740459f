package types

// Network identifies a blockchain network by its x402 name.
type Network string

const (
	// EVM networks
	NetworkBase        Network = "base"
	NetworkBaseSepolia Network = "base-sepolia" // testnet
	NetworkPolygon     Network = "polygon"
	NetworkPolygonAmoy Network = "polygon-amoy" // testnet

	// SVM networks
	NetworkSolanaMainnet Network = "solana-mainnet"
	NetworkSolanaDevnet  Network = "solana-devnet" // testnet
)

// Family groups networks that share verification and settlement semantics.
type Family string

const (
	FamilyEVM     Family = "evm"
	FamilySVM     Family = "svm"
	FamilyUnknown Family = ""
)

// EVMChainIDs maps EVM network names to their chain IDs.
var EVMChainIDs = map[Network]int64{
	NetworkBase:        8453,
	NetworkBaseSepolia: 84532,
	NetworkPolygon:     137,
	NetworkPolygonAmoy: 80002,
}

func (n Network) IsEVM() bool {
	switch n {
	case NetworkBase, NetworkBaseSepolia, NetworkPolygon, NetworkPolygonAmoy:
		return true
	}
	return false
}

func (n Network) IsSVM() bool {
	return n == NetworkSolanaMainnet || n == NetworkSolanaDevnet
}

func (n Network) IsTestnet() bool {
	return n == NetworkBaseSepolia || n == NetworkPolygonAmoy || n == NetworkSolanaDevnet
}

// Family classifies the network. Unsupported networks map to
// FamilyUnknown; callers must fail fast rather than defaulting
// to either family.
func (n Network) Family() Family {
	switch {
	case n.IsEVM():
		return FamilyEVM
	case n.IsSVM():
		return FamilySVM
	default:
		return FamilyUnknown
	}
}

func (n Network) String() string {
	return string(n)
}
