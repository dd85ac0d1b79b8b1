package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftauction/core"
)

// Identities used by SeedDemo.
const (
	DemoAssetContract core.Identity = "demo-nft"
	DemoPaymentToken  core.Identity = "demo-usd"
	DemoSeller        core.Identity = "seller"
	DemoAssetCount                  = 5
)

// DemoBidders each receive DemoBalance payment tokens.
var DemoBidders = []core.Identity{"alice", "bob", "carol"}

// DemoBalance is the opening balance of every demo bidder.
var DemoBalance = decimal.NewFromInt(1_000_000)

// SeedDemo mints DemoAssetCount assets to the demo seller and funds the demo
// bidders. The custodian is authorized for everything, so every demo
// identity can list and bid right away.
func SeedDemo(assets *Assets, tokens *Tokens, custodian core.Identity) error {
	for id := uint64(1); id <= DemoAssetCount; id++ {
		if err := assets.Mint(DemoAssetContract, id, DemoSeller); err != nil {
			return fmt.Errorf("failed to mint demo asset %d: %w", id, err)
		}
	}
	assets.SetApprovalForAll(DemoSeller, custodian, true)

	for _, bidder := range DemoBidders {
		if err := tokens.Mint(DemoPaymentToken, bidder, DemoBalance); err != nil {
			return fmt.Errorf("failed to fund %s: %w", bidder, err)
		}
		if err := tokens.Approve(DemoPaymentToken, bidder, custodian, DemoBalance); err != nil {
			return fmt.Errorf("failed to approve custodian for %s: %w", bidder, err)
		}
	}
	return nil
}
