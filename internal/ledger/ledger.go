package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"DiceVault/internal/ident"
	"DiceVault/internal/storage"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrAccountExists     = errors.New("account already exists")
	ErrMintMismatch      = errors.New("mint mismatch")
	ErrUnauthorized      = errors.New("authorizer does not own the source account")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOverflow          = errors.New("balance overflow")
	ErrReservedKey       = errors.New("key is reserved for accounts")
)

// Tx is the view of the ledger inside one unit of work.
// Reads observe the writes already staged in the same unit.
type Tx interface {
	// Account loads an account by id.
	Account(id ident.Hash) (Account, error)
	// CreateAccount creates an empty account with a caller-chosen id.
	CreateAccount(id, owner, mint ident.Hash) (Account, error)
	// Mint credits new supply to an account.
	Mint(id ident.Hash, amount uint64) error
	// Transfer moves amount between two accounts of the same mint.
	Transfer(from, to ident.Hash, amount uint64, auth Authorizer) error

	// Get reads a record stored next to the accounts. Returns nil if absent.
	Get(key []byte) ([]byte, error)
	// Set stages a record write. Keys of account id length are refused.
	Set(key, value []byte) error
}

// Ledger holds token accounts in storage.
// Every mutation runs inside Update, which holds the ledger's write lock for
// the whole unit of work: conflicting balance mutations are serialized and a
// unit either commits every write or none.
type Ledger struct {
	db *storage.Storage
	mu sync.Mutex
}

// New creates a ledger backed by the given storage.
func New(db *storage.Storage) *Ledger {
	return &Ledger{db: db}
}

// Update runs fn in a unit of work. When fn returns nil the staged writes are
// committed atomically; otherwise they are dropped and fn's error returned.
func (l *Ledger) Update(fn func(tx Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	batch := l.db.NewBatch()
	defer batch.Close()

	if err := fn(&txn{batch: batch}); err != nil {
		return err
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit ledger batch:\n%w", err)
	}

	return nil
}

// Account loads a committed account.
func (l *Ledger) Account(id ident.Hash) (Account, error) {
	return loadAccount(l.db.Get, id)
}

// Balance returns a committed account's balance.
func (l *Ledger) Balance(id ident.Hash) (uint64, error) {
	acct, err := l.Account(id)
	if err != nil {
		return 0, err
	}

	return acct.Balance, nil
}

// OpenAccount creates an account with a fresh id for owner and mint.
func (l *Ledger) OpenAccount(owner, mint ident.Hash) (Account, error) {
	return l.CreateAccount(NewAccountID(owner, mint), owner, mint)
}

// NewAccountID returns a fresh account id: blake3(owner || mint || random salt).
func NewAccountID(owner, mint ident.Hash) ident.Hash {
	salt := uuid.New()

	hasher := blake3.New()
	hasher.Write(owner[:])
	hasher.Write(mint[:])
	hasher.Write(salt[:])

	var id ident.Hash
	hasher.Sum(id[:0])

	return id
}

// CreateAccount creates an empty account with a caller-chosen id.
func (l *Ledger) CreateAccount(id, owner, mint ident.Hash) (Account, error) {
	var acct Account

	err := l.Update(func(tx Tx) error {
		var err error
		acct, err = tx.CreateAccount(id, owner, mint)
		return err
	})

	return acct, err
}

// Mint credits new supply to an account.
func (l *Ledger) Mint(id ident.Hash, amount uint64) error {
	return l.Update(func(tx Tx) error {
		return tx.Mint(id, amount)
	})
}

// Transfer runs a single transfer as its own unit of work.
func (l *Ledger) Transfer(from, to ident.Hash, amount uint64, auth Authorizer) error {
	return l.Update(func(tx Tx) error {
		return tx.Transfer(from, to, amount, auth)
	})
}

// Accounts returns every committed account in key order.
func (l *Ledger) Accounts() ([]Account, error) {
	var accounts []Account

	err := l.db.Iterate(func(key, value []byte) error {
		if len(key) != ident.Size {
			return nil
		}

		acct, err := decodeAccount(value)
		if err != nil {
			return fmt.Errorf("decode account %x:\n%w", key[:8], err)
		}

		accounts = append(accounts, acct)

		return nil
	})

	return accounts, err
}

// txn is a Tx over an indexed storage batch.
type txn struct {
	batch *storage.Batch
}

func (t *txn) Account(id ident.Hash) (Account, error) {
	return loadAccount(t.batch.Get, id)
}

func (t *txn) CreateAccount(id, owner, mint ident.Hash) (Account, error) {
	existing, err := t.batch.Get(id[:])
	if err != nil {
		return Account{}, err
	}

	if existing != nil {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountExists, id.Short())
	}

	acct := Account{ID: id, Owner: owner, Mint: mint}
	if err := t.put(acct); err != nil {
		return Account{}, err
	}

	return acct, nil
}

func (t *txn) Mint(id ident.Hash, amount uint64) error {
	acct, err := t.Account(id)
	if err != nil {
		return err
	}

	if err := credit(&acct, amount); err != nil {
		return err
	}

	return t.put(acct)
}

// Transfer checks, in order: both accounts exist, the mints match, the
// authorizer owns the source, the source covers the amount and the
// destination does not overflow.
func (t *txn) Transfer(from, to ident.Hash, amount uint64, auth Authorizer) error {
	src, err := t.Account(from)
	if err != nil {
		return fmt.Errorf("load source:\n%w", err)
	}

	dst, err := t.Account(to)
	if err != nil {
		return fmt.Errorf("load destination:\n%w", err)
	}

	if src.Mint != dst.Mint {
		return fmt.Errorf("%w: %s -> %s", ErrMintMismatch, src.Mint.Short(), dst.Mint.Short())
	}

	signer, err := auth.Identity()
	if err != nil {
		return fmt.Errorf("%w:\n%w", ErrUnauthorized, err)
	}

	if signer != src.Owner {
		return fmt.Errorf("%w: %s is not %s", ErrUnauthorized, auth, src.Owner.Short())
	}

	if src.Balance < amount {
		return fmt.Errorf("%w: balance=%d amount=%d", ErrInsufficientFunds, src.Balance, amount)
	}

	if from == to || amount == 0 {
		return nil
	}

	if err := credit(&dst, amount); err != nil {
		return err
	}

	src.Balance -= amount
	src.Version++

	if err := t.put(src); err != nil {
		return err
	}

	return t.put(dst)
}

func (t *txn) Get(key []byte) ([]byte, error) {
	return t.batch.Get(key)
}

func (t *txn) Set(key, value []byte) error {
	if len(key) == ident.Size {
		return fmt.Errorf("%w: %x", ErrReservedKey, key)
	}

	return t.batch.Set(key, value)
}

// put stages an account write.
func (t *txn) put(acct Account) error {
	return t.batch.Set(acct.ID[:], encodeAccount(acct))
}

// credit adds amount to an account's balance, refusing to wrap.
func credit(acct *Account, amount uint64) error {
	if amount == 0 {
		return nil
	}

	newBalance := acct.Balance + amount
	if newBalance < acct.Balance {
		return fmt.Errorf("%w: balance=%d + amount=%d wraps", ErrOverflow, acct.Balance, amount)
	}

	acct.Balance = newBalance
	acct.Version++

	return nil
}

// loadAccount reads and decodes an account through the given getter.
func loadAccount(get func(key []byte) ([]byte, error), id ident.Hash) (Account, error) {
	data, err := get(id[:])
	if err != nil {
		return Account{}, err
	}

	if data == nil {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id.Short())
	}

	return decodeAccount(data)
}
