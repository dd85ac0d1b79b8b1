package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftauction/core"
)

var (
	// ErrInsufficientBalance indicates a transfer exceeding the sender's balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrInsufficientAllowance indicates a pull exceeding the spender's allowance.
	ErrInsufficientAllowance = errors.New("ledger: insufficient allowance")

	// ErrFrozen indicates a transfer touching a frozen account.
	ErrFrozen = errors.New("ledger: account frozen")

	// ErrInvalidAmount indicates a negative transfer amount.
	ErrInvalidAmount = errors.New("ledger: invalid amount")
)

type allowanceKey struct {
	token   core.Identity
	owner   core.Identity
	spender core.Identity
}

type balanceKey struct {
	token   core.Identity
	account core.Identity
}

// Tokens is a fungible-token ledger spanning any number of tokens, with
// ERC-20 balances and allowances. Frozen accounts can neither send nor
// receive, mirroring issuer blocklists.
type Tokens struct {
	mu         sync.RWMutex
	balances   map[balanceKey]decimal.Decimal
	allowances map[allowanceKey]decimal.Decimal
	frozen     map[balanceKey]bool
}

// NewTokens creates an empty token ledger.
func NewTokens() *Tokens {
	return &Tokens{
		balances:   make(map[balanceKey]decimal.Decimal),
		allowances: make(map[allowanceKey]decimal.Decimal),
		frozen:     make(map[balanceKey]bool),
	}
}

// Mint credits amount of token to account.
func (t *Tokens) Mint(token, to core.Identity, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := balanceKey{token: token, account: to}
	t.balances[key] = t.balances[key].Add(amount)
	return nil
}

// BalanceOf returns the balance of account in token.
func (t *Tokens) BalanceOf(token, account core.Identity) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.balances[balanceKey{token: token, account: account}]
}

// Approve sets the amount spender may pull from owner.
func (t *Tokens) Approve(token, owner, spender core.Identity, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.allowances[allowanceKey{token: token, owner: owner, spender: spender}] = amount
	return nil
}

// Allowance returns the amount spender may still pull from owner.
func (t *Tokens) Allowance(token, owner, spender core.Identity) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.allowances[allowanceKey{token: token, owner: owner, spender: spender}]
}

// SetFrozen freezes or unfreezes an account for one token.
func (t *Tokens) SetFrozen(token, account core.Identity, frozen bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := balanceKey{token: token, account: account}
	if frozen {
		t.frozen[key] = true
	} else {
		delete(t.frozen, key)
	}
}

// Transfer moves amount from from to to.
func (t *Tokens) Transfer(token, from, to core.Identity, amount decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.moveLocked(token, from, to, amount)
}

// TransferFrom moves amount from from to to on behalf of spender, consuming allowance.
func (t *Tokens) TransferFrom(token, spender, from, to core.Identity, amount decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := allowanceKey{token: token, owner: from, spender: spender}
	allowance := t.allowances[key]
	if spender != from && allowance.LessThan(amount) {
		return fmt.Errorf("%w: %s may pull %s of %s from %s, requested %s",
			ErrInsufficientAllowance, spender, allowance, token, from, amount)
	}
	if err := t.moveLocked(token, from, to, amount); err != nil {
		return err
	}
	if spender != from {
		t.allowances[key] = allowance.Sub(amount)
	}
	return nil
}

func (t *Tokens) moveLocked(token, from, to core.Identity, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	fromKey := balanceKey{token: token, account: from}
	toKey := balanceKey{token: token, account: to}
	if t.frozen[fromKey] {
		return fmt.Errorf("%w: %s", ErrFrozen, from)
	}
	if t.frozen[toKey] {
		return fmt.Errorf("%w: %s", ErrFrozen, to)
	}
	balance := t.balances[fromKey]
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, requested %s", ErrInsufficientBalance, from, balance, token, amount)
	}

	t.balances[fromKey] = balance.Sub(amount)
	t.balances[toKey] = t.balances[toKey].Add(amount)
	return nil
}

// As returns a view of the ledger acting as spender, satisfying core.TokenLedger.
func (t *Tokens) As(spender core.Identity) *TokenView {
	return &TokenView{tokens: t, spender: spender}
}

// TokenView performs token operations on behalf of a fixed spender.
type TokenView struct {
	tokens  *Tokens
	spender core.Identity
}

var _ core.TokenLedger = (*TokenView)(nil)

func (v *TokenView) TransferFrom(_ context.Context, token, from, to core.Identity, amount decimal.Decimal) error {
	return v.tokens.TransferFrom(token, v.spender, from, to, amount)
}

func (v *TokenView) Transfer(_ context.Context, token, to core.Identity, amount decimal.Decimal) error {
	return v.tokens.Transfer(token, v.spender, to, amount)
}
