package descriptors

import (
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
)

// CoinType returns the BIP44 coin type an Output's network maps to: 0 on
// mainnet, 1 on every test network.
func CoinType(params *chaincfg.Params) uint32 {
	if params.Net == wire.MainNet {
		return 0
	}
	return 1
}

// Network returns the chain parameters this Output was constructed with.
func (o *Output) Network() *chaincfg.Params { return o.network }
