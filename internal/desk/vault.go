package desk

import (
	"fmt"
	"math/big"
	"sync"
)

// Asset identifies one of the three balances the desk moves.
type Asset uint8

const (
	AssetToken Asset = iota
	AssetStable
	AssetNative
)

func (a Asset) String() string {
	switch a {
	case AssetToken:
		return "token"
	case AssetStable:
		return "stable"
	case AssetNative:
		return "native"
	default:
		return "unknown"
	}
}

// DeskAccount is the escrow account all offer funds flow through.
const DeskAccount = "desk"

// Vault is the asset-transfer primitive the desk settles against. It is an
// external collaborator: the desk only assumes transfers are atomic and fail
// without partial effect.
type Vault interface {
	Transfer(asset Asset, from, to string, amount *big.Int) error
	Balance(asset Asset, account string) *big.Int
}

// MemoryVault is an in-process Vault. It backs tests and the embedded
// single-node deployment; on-chain deployments settle through the ledger's
// own transfer primitives instead.
type MemoryVault struct {
	mu       sync.Mutex
	balances map[Asset]map[string]*big.Int
}

// NewMemoryVault creates an empty vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{balances: map[Asset]map[string]*big.Int{
		AssetToken:  {},
		AssetStable: {},
		AssetNative: {},
	}}
}

// Mint credits an account out of thin air. Test and bootstrap helper.
func (v *MemoryVault) Mint(asset Asset, account string, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.credit(asset, account, amount)
}

// Transfer moves amount between accounts, failing without effect when the
// source balance is insufficient.
func (v *MemoryVault) Transfer(asset Asset, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("invalid transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	fromBal := v.balance(asset, from)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient %s balance: have %s, need %s", asset, fromBal, amount)
	}

	fromBal.Sub(fromBal, amount)
	v.credit(asset, to, amount)
	return nil
}

// Balance returns a copy of the account balance.
func (v *MemoryVault) Balance(asset Asset, account string) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return new(big.Int).Set(v.balance(asset, account))
}

func (v *MemoryVault) balance(asset Asset, account string) *big.Int {
	accounts := v.balances[asset]
	bal, ok := accounts[account]
	if !ok {
		bal = new(big.Int)
		accounts[account] = bal
	}
	return bal
}

func (v *MemoryVault) credit(asset Asset, account string, amount *big.Int) {
	v.balance(asset, account).Add(v.balance(asset, account), amount)
}
