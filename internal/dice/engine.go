package dice

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"DiceVault/internal/authority"
	"DiceVault/internal/ident"
	"DiceVault/internal/journal"
	"DiceVault/internal/ledger"
	"DiceVault/internal/logger"
	"DiceVault/internal/metrics"
	"DiceVault/internal/oracle"
	"DiceVault/internal/pool"
)

// Ledger runs units of work against token accounts and pool records.
type Ledger interface {
	Update(fn func(tx ledger.Tx) error) error
}

// Config holds the engine's collaborators.
type Config struct {
	Ledger  Ledger           // Ledger holds accounts and pool records
	Oracle  oracle.Oracle    // Oracle supplies the outcome time
	Journal journal.Journal  // Journal receives receipts after commit (optional)
	Metrics *metrics.Metrics // Metrics counts outcomes (optional)
}

// Engine initializes pools and settles wagers.
type Engine struct {
	ledger  Ledger
	oracle  oracle.Oracle
	journal journal.Journal
	metrics *metrics.Metrics
}

// New creates an engine.
func New(cfg Config) *Engine {
	j := cfg.Journal
	if j == nil {
		j = journal.Nop{}
	}

	return &Engine{
		ledger:  cfg.Ledger,
		oracle:  cfg.Oracle,
		journal: j,
		metrics: cfg.Metrics,
	}
}

// Now reads the engine's clock. Callers outside the engine claim replay
// tickets against the same clock.
func (e *Engine) Now() int64 {
	return e.oracle.Now()
}

// Pool returns a pool record, zeroed if the pool was never initialized.
func (e *Engine) Pool(id ident.Hash) (pool.Pool, error) {
	var p pool.Pool

	err := e.ledger.Update(func(tx ledger.Tx) error {
		var err error
		p, err = pool.Load(tx, id)
		return err
	})

	return p, err
}

// Initialize writes a pool record binding the pool to its mint and vault.
// The vault must already exist, hold the given mint and be owned by
// Derive(pool, nonce). The pool key itself must sign the initialization,
// and a pool can be initialized once.
func (e *Engine) Initialize(ctx context.Context, req InitializeRequest) (pool.Pool, error) {
	if err := ctx.Err(); err != nil {
		return pool.Pool{}, err
	}

	if req.Creator != req.Pool {
		err := fmt.Errorf("%w: signed by %s, pool %s", ErrPoolSigner, req.Creator.Short(), req.Pool.Short())
		logger.Warn("initialize rejected", "pool", req.Pool.Short(), "kind", Kind(err))
		return pool.Pool{}, err
	}

	var p pool.Pool

	err := e.ledger.Update(func(tx ledger.Tx) error {
		if !req.Ticket.IsZero() {
			if err := req.Ticket.Claim(tx, e.oracle.Now()); err != nil {
				return err
			}
		}

		existing, err := pool.Load(tx, req.Pool)
		if err != nil {
			return err
		}

		if !existing.IsZero() {
			return fmt.Errorf("%w: %s", ErrPoolInitialized, req.Pool.Short())
		}

		auth, err := authority.Derive(req.Pool, req.Nonce)
		if err != nil {
			return fmt.Errorf("%w: nonce %d:\n%w", ErrAuthorityMismatch, req.Nonce, err)
		}

		vault, err := tx.Account(req.Vault)
		if err != nil {
			return fmt.Errorf("%w: load vault:\n%w", ErrOwnershipMismatch, err)
		}

		if vault.Mint != req.Mint {
			return fmt.Errorf("%w: vault mint %s, want %s", ErrOwnershipMismatch, vault.Mint.Short(), req.Mint.Short())
		}

		if vault.Owner != auth {
			return fmt.Errorf("%w: vault owner %s, want %s", ErrOwnershipMismatch, vault.Owner.Short(), auth.Short())
		}

		p = pool.Pool{
			PayoutPercent: PayoutPercent,
			TokenMint:     req.Mint,
			Vault:         req.Vault,
			Nonce:         req.Nonce,
		}

		return pool.Save(tx, req.Pool, p)
	})
	if err != nil {
		logger.Warn("initialize rejected", "pool", req.Pool.Short(), "kind", Kind(err))
		return pool.Pool{}, err
	}

	e.metrics.ObserveInitialize()
	logger.Info("pool initialized",
		"pool", req.Pool.Short(),
		"vault", req.Vault.Short(),
		"mint", req.Mint.Short(),
		"nonce", req.Nonce,
	)

	return p, nil
}

// Roll settles one wager: escrow the stake, resolve the outcome, pay out.
// Every leg runs in a single ledger unit, so either all of them commit or
// the call fails with no effect.
func (e *Engine) Roll(ctx context.Context, req RollRequest) (*Settlement, error) {
	start := time.Now()

	s, err := e.roll(ctx, req)
	if err != nil {
		e.metrics.ObserveFailure(Kind(err))
		logger.Debug("roll rejected", "pool", req.Pool.Short(), "kind", Kind(err), "error", err)
		return nil, err
	}

	e.metrics.ObserveSettlement(s.Outcome.String(), s.Stake, s.Payout)
	e.record(ctx, req, s)

	logger.Info("roll settled",
		"pool", req.Pool.Short(),
		"player", req.Player.Short(),
		"side", req.Side,
		"stake", s.Stake,
		"won", s.Outcome.Won(),
		"outcome", s.Outcome.String(),
		"payout", s.Payout,
		logger.Timed(start),
	)

	return s, nil
}

func (e *Engine) roll(ctx context.Context, req RollRequest) (*Settlement, error) {
	if req.Side > MaxSide {
		return nil, fmt.Errorf("%w: %d > %d", ErrInvalidSide, req.Side, MaxSide)
	}

	if req.Amount == 0 {
		return nil, ErrZeroAmount
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var s *Settlement

	err := e.ledger.Update(func(tx ledger.Tx) error {
		t := e.oracle.Now()

		if !req.Ticket.IsZero() {
			if err := req.Ticket.Claim(tx, t); err != nil {
				return err
			}
		}

		p, err := e.checkAccounts(tx, req)
		if err != nil {
			return err
		}

		pre, err := tx.Account(req.Vault)
		if err != nil {
			return fmt.Errorf("load vault:\n%w", err)
		}

		if err := tx.Transfer(req.Source, req.Vault, req.Amount, ledger.Signed(req.Player)); err != nil {
			return fmt.Errorf("%w: escrow:\n%w", ErrTransferFailed, err)
		}

		s = &Settlement{
			ID:        uuid.New(),
			Pool:      req.Pool,
			Outcome:   OutcomeLost,
			Stake:     req.Amount,
			Side:      req.Side,
			Timestamp: t,
		}

		if Wins(t, req.Side) {
			if err := e.payout(tx, req, p, pre.Balance, s); err != nil {
				return err
			}
		}

		vault, err := tx.Account(req.Vault)
		if err != nil {
			return fmt.Errorf("reload vault:\n%w", err)
		}

		s.VaultBalance = vault.Balance
		s.Notice = s.Outcome.notice()

		return nil
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

// checkAccounts loads the pool and verifies the supplied vault and authority
// against it.
func (e *Engine) checkAccounts(tx ledger.Tx, req RollRequest) (pool.Pool, error) {
	p, err := pool.Load(tx, req.Pool)
	if err != nil {
		return pool.Pool{}, err
	}

	if p.IsZero() {
		return pool.Pool{}, fmt.Errorf("%w: %s", ErrPoolNotFound, req.Pool.Short())
	}

	if req.Vault != p.Vault {
		return pool.Pool{}, fmt.Errorf("%w: vault %s, pool holds %s", ErrOwnershipMismatch, req.Vault.Short(), p.Vault.Short())
	}

	expected, err := authority.Derive(req.Pool, p.Nonce)
	if err != nil {
		return pool.Pool{}, fmt.Errorf("%w:\n%w", ErrAuthorityMismatch, err)
	}

	if req.Authority != expected {
		return pool.Pool{}, fmt.Errorf("%w: got %s, derived %s", ErrAuthorityMismatch, req.Authority.Short(), expected.Short())
	}

	vault, err := tx.Account(req.Vault)
	if err != nil {
		return pool.Pool{}, fmt.Errorf("%w: load vault:\n%w", ErrOwnershipMismatch, err)
	}

	if vault.Owner != expected || vault.Mint != p.TokenMint {
		return pool.Pool{}, fmt.Errorf("%w: vault not held by pool authority", ErrOwnershipMismatch)
	}

	return p, nil
}

// payout pays the winner the formula amount. A vault that held less than
// that before the stake was escrowed pays its whole pre-escrow balance
// instead; the escrowed stake stays in the vault.
func (e *Engine) payout(tx ledger.Tx, req RollRequest, p pool.Pool, pre uint64, s *Settlement) error {
	amount := Payout(req.Amount, p.PayoutPercent)
	s.Outcome = OutcomePaid

	if pre < amount {
		amount = pre
		s.Outcome = OutcomePaidDegraded
	}

	seeds := authority.Seeds{Pool: req.Pool, Nonce: p.Nonce}
	if err := tx.Transfer(req.Vault, req.Source, amount, ledger.Derived(seeds)); err != nil {
		return fmt.Errorf("%w: payout:\n%w", ErrTransferFailed, err)
	}

	s.Payout = amount

	return nil
}

// record writes the receipt. Failures are logged; the settlement stands.
func (e *Engine) record(ctx context.Context, req RollRequest, s *Settlement) {
	r := journal.Receipt{
		ID:           s.ID,
		Pool:         req.Pool,
		Player:       req.Player,
		Source:       req.Source,
		Amount:       s.Stake,
		Side:         s.Side,
		Timestamp:    s.Timestamp,
		Outcome:      s.Outcome.String(),
		Payout:       s.Payout,
		VaultBalance: s.VaultBalance,
		CreatedAt:    time.Now(),
	}

	if err := e.journal.Record(ctx, r); err != nil {
		logger.Error("journal write failed", "settlement", s.ID.String(), "error", err)
	}
}

// Settlements lists journaled receipts, newest first.
func (e *Engine) Settlements(ctx context.Context, poolID ident.Hash, limit int) ([]journal.Receipt, error) {
	return e.journal.List(ctx, poolID, limit)
}
