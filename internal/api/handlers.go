package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"DiceVault/internal/authority"
	"DiceVault/internal/dice"
	"DiceVault/internal/ident"
	"DiceVault/internal/instruction"
	"DiceVault/internal/ledger"
	"DiceVault/internal/replay"
)

// handleSubmitTx handles POST /tx requests.
// The body is a signed Instruction; the sender is the authenticated caller.
func (s *Server) handleSubmitTx(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return fmt.Errorf("%w: empty instruction", errBadRequest)
	}

	ins, err := instruction.Decode(body)
	if err != nil {
		return err
	}

	s.log.Debugw("instruction received",
		"hash", ins.Hash.Short(),
		"function", ins.Function,
		"sender", ins.Sender.Short(),
	)

	switch ins.Function {
	case instruction.FnInitialize:
		return s.execInitialize(c, ins)
	case instruction.FnRoll:
		return s.execRoll(c, ins)
	case instruction.FnOpenAccount:
		return s.execOpenAccount(c, ins)
	case instruction.FnTransfer:
		return s.execTransfer(c, ins)
	default:
		return fmt.Errorf("%w: %q", errUnknownFunction, ins.Function)
	}
}

// execInitialize runs initialize(nonce). Accounts: pool, mint, vault.
func (s *Server) execInitialize(c *fiber.Ctx, ins instruction.Instruction) error {
	if err := wantAccounts(ins, 3); err != nil {
		return err
	}

	nonce, err := instruction.DecodeInitializeArgs(ins.Args)
	if err != nil {
		return err
	}

	p, err := s.engine.Initialize(c.UserContext(), dice.InitializeRequest{
		Pool:    ins.Accounts[0],
		Creator: ins.Sender,
		Nonce:   nonce,
		Mint:    ins.Accounts[1],
		Vault:   ins.Accounts[2],
		Ticket:  ticketOf(ins),
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"hash": ins.Hash, "pool": p})
}

// execRoll runs roll(amount, side). Accounts: pool, source, vault, authority.
func (s *Server) execRoll(c *fiber.Ctx, ins instruction.Instruction) error {
	if err := wantAccounts(ins, 4); err != nil {
		return err
	}

	amount, side, err := instruction.DecodeRollArgs(ins.Args)
	if err != nil {
		return err
	}

	settlement, err := s.engine.Roll(c.UserContext(), dice.RollRequest{
		Pool:      ins.Accounts[0],
		Player:    ins.Sender,
		Source:    ins.Accounts[1],
		Vault:     ins.Accounts[2],
		Authority: ins.Accounts[3],
		Amount:    amount,
		Side:      side,
		Ticket:    ticketOf(ins),
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"hash": ins.Hash, "settlement": settlement})
}

// execOpenAccount runs open_account(mint[, owner]). The sender owns the new
// account unless another owner is named, as for a vault held by a pool
// authority. Opening an account moves no funds.
func (s *Server) execOpenAccount(c *fiber.Ctx, ins instruction.Instruction) error {
	if err := wantAccounts(ins, 0); err != nil {
		return err
	}

	mint, owner, err := instruction.DecodeOpenAccountArgs(ins.Args)
	if err != nil {
		return err
	}

	if owner.IsZero() {
		owner = ins.Sender
	}

	var acct ledger.Account

	err = s.ledger.Update(func(tx ledger.Tx) error {
		if err := ticketOf(ins).Claim(tx, s.engine.Now()); err != nil {
			return err
		}

		var err error
		acct, err = tx.CreateAccount(ledger.NewAccountID(owner, mint), owner, mint)
		return err
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"hash": ins.Hash, "account": acct})
}

// execTransfer runs transfer(amount) signed by the sender. Accounts: from, to.
func (s *Server) execTransfer(c *fiber.Ctx, ins instruction.Instruction) error {
	if err := wantAccounts(ins, 2); err != nil {
		return err
	}

	amount, err := instruction.DecodeTransferArgs(ins.Args)
	if err != nil {
		return err
	}

	from, to := ins.Accounts[0], ins.Accounts[1]

	err = s.ledger.Update(func(tx ledger.Tx) error {
		if err := ticketOf(ins).Claim(tx, s.engine.Now()); err != nil {
			return err
		}

		return tx.Transfer(from, to, amount, ledger.Signed(ins.Sender))
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"hash": ins.Hash, "from": from, "to": to, "amount": amount})
}

// handleFaucet handles POST /faucet requests: {"account": hex, "amount": n}.
func (s *Server) handleFaucet(c *fiber.Ctx) error {
	var req struct {
		Account ident.Hash `json:"account"`
		Amount  uint64     `json:"amount"`
	}

	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	if req.Amount == 0 {
		return fmt.Errorf("%w: amount must be positive", errBadRequest)
	}

	if err := s.ledger.Mint(req.Account, req.Amount); err != nil {
		return err
	}

	acct, err := s.ledger.Account(req.Account)
	if err != nil {
		return err
	}

	s.log.Infow("faucet mint", "account", req.Account.Short(), "amount", req.Amount)

	return c.JSON(acct)
}

// handlePool handles GET /pools/:id requests.
func (s *Server) handlePool(c *fiber.Ctx) error {
	id, err := paramHash(c, "id")
	if err != nil {
		return err
	}

	p, err := s.engine.Pool(id)
	if err != nil {
		return err
	}

	if p.IsZero() {
		return fmt.Errorf("%w: %s", dice.ErrPoolNotFound, id.Short())
	}

	return c.JSON(p)
}

// handleAccount handles GET /accounts/:id requests.
func (s *Server) handleAccount(c *fiber.Ctx) error {
	id, err := paramHash(c, "id")
	if err != nil {
		return err
	}

	acct, err := s.ledger.Account(id)
	if err != nil {
		return err
	}

	return c.JSON(acct)
}

// handleAuthority handles GET /authority/:pool requests with the canonical
// authority and nonce for a pool.
func (s *Server) handleAuthority(c *fiber.Ctx) error {
	pool, err := paramHash(c, "pool")
	if err != nil {
		return err
	}

	auth, nonce, err := authority.Find(pool)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"pool": pool, "authority": auth, "nonce": nonce})
}

// handleSettlements handles GET /settlements?pool=&limit= requests.
func (s *Server) handleSettlements(c *fiber.Ctx) error {
	var pool ident.Hash

	if raw := c.Query("pool"); raw != "" {
		var err error
		if pool, err = ident.Parse(raw); err != nil {
			return fmt.Errorf("%w: pool:\n%w", errBadRequest, err)
		}
	}

	receipts, err := s.engine.Settlements(c.UserContext(), pool, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}

	if receipts == nil {
		return c.JSON([]any{})
	}

	return c.JSON(receipts)
}

// ticketOf returns the replay ticket of a signed instruction. Each instruction
// hash is claimed in the same ledger unit as its effect.
func ticketOf(ins instruction.Instruction) replay.Ticket {
	return replay.Ticket{Hash: ins.Hash, ExpiresAt: ins.ExpiresAt}
}

// wantAccounts checks the instruction references exactly n accounts.
func wantAccounts(ins instruction.Instruction, n int) error {
	if len(ins.Accounts) != n {
		return fmt.Errorf("%w: %s wants %d, got %d", errAccounts, ins.Function, n, len(ins.Accounts))
	}

	return nil
}

// paramHash parses a hex route parameter.
func paramHash(c *fiber.Ctx, name string) (ident.Hash, error) {
	h, err := ident.Parse(c.Params(name))
	if err != nil {
		return ident.Hash{}, fmt.Errorf("%w: %s:\n%w", errBadRequest, name, err)
	}

	return h, nil
}
