package client

import (
	"fmt"

	"DiceVault/internal/dice"
	"DiceVault/internal/ident"
	"DiceVault/internal/instruction"
	"DiceVault/internal/ledger"
	"DiceVault/internal/pool"
)

// OpenAccount opens an account of the given mint. A zero owner makes the
// wallet the owner; vaults name their pool authority instead.
func (w *Wallet) OpenAccount(c *Client, mint, owner ident.Hash) (ledger.Account, error) {
	args := instruction.EncodeOpenAccountArgs(mint, owner)

	var resp struct {
		Account ledger.Account `json:"account"`
	}

	if err := c.submitTx(w.build(instruction.FnOpenAccount, args), &resp); err != nil {
		return ledger.Account{}, fmt.Errorf("submit open_account:\n%w", err)
	}

	return resp.Account, nil
}

// Transfer moves amount from an account the wallet owns.
func (w *Wallet) Transfer(c *Client, from, to ident.Hash, amount uint64) error {
	args := instruction.EncodeTransferArgs(amount)

	if err := c.submitTx(w.build(instruction.FnTransfer, args, from, to), nil); err != nil {
		return fmt.Errorf("submit transfer:\n%w", err)
	}

	return nil
}

// Initialize binds a pool to its mint and vault. The pool id must be the
// wallet's own public key.
func (w *Wallet) Initialize(c *Client, poolID, mint, vault ident.Hash, nonce uint8) (pool.Pool, error) {
	args := instruction.EncodeInitializeArgs(nonce)

	var resp struct {
		Pool pool.Pool `json:"pool"`
	}

	if err := c.submitTx(w.build(instruction.FnInitialize, args, poolID, mint, vault), &resp); err != nil {
		return pool.Pool{}, fmt.Errorf("submit initialize:\n%w", err)
	}

	return resp.Pool, nil
}

// Roll stakes amount from source on side.
func (w *Wallet) Roll(c *Client, poolID, source, vault, authority ident.Hash, amount uint64, side uint8) (*dice.Settlement, error) {
	args := instruction.EncodeRollArgs(amount, side)

	var resp struct {
		Settlement *dice.Settlement `json:"settlement"`
	}

	if err := c.submitTx(w.build(instruction.FnRoll, args, poolID, source, vault, authority), &resp); err != nil {
		return nil, fmt.Errorf("submit roll:\n%w", err)
	}

	return resp.Settlement, nil
}

// build signs an instruction with the wallet key.
func (w *Wallet) build(function string, args []byte, accounts ...ident.Hash) []byte {
	return instruction.Build(w.privKey, function, args, accounts)
}
