package client

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"DiceVault/internal/ident"
	"DiceVault/internal/journal"
	"DiceVault/internal/ledger"
	"DiceVault/internal/pool"
)

// Client connects to a dice node via HTTP.
type Client struct {
	nodeAddr string       // nodeAddr is the HTTP address (e.g. "127.0.0.1:8080")
	http     *http.Client // http carries requests
}

// Wallet holds an Ed25519 keypair used to sign instructions.
type Wallet struct {
	privKey ed25519.PrivateKey // privKey is the Ed25519 private key
	pubKey  ed25519.PublicKey  // pubKey is the Ed25519 public key
}

// NewClient creates a client and checks the node answers /health.
func NewClient(nodeAddr string) (*Client, error) {
	c := &Client{
		nodeAddr: nodeAddr,
		http:     &http.Client{Timeout: 10 * time.Second},
	}

	var health struct {
		Status string `json:"status"`
	}

	if err := c.httpGet("/health", &health); err != nil {
		return nil, fmt.Errorf("get health:\n%w", err)
	}

	if health.Status != "ok" {
		return nil, fmt.Errorf("node unhealthy: %q", health.Status)
	}

	return c, nil
}

func (c *Client) url(path string) string {
	return "http://" + c.nodeAddr + path
}

// NewWallet creates a new wallet with a random Ed25519 keypair.
func NewWallet() *Wallet {
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)

	return &Wallet{privKey: priv, pubKey: pub}
}

// WalletFromSeed rebuilds a wallet from a 32-byte Ed25519 seed.
func WalletFromSeed(seed []byte) (*Wallet, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed size: got %d, want %d", len(seed), ed25519.SeedSize)
	}

	priv := ed25519.NewKeyFromSeed(seed)

	return &Wallet{privKey: priv, pubKey: priv.Public().(ed25519.PublicKey)}, nil
}

// LoadWallet reads a hex-encoded seed file written by Save.
func LoadWallet(path string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read wallet:\n%w", err)
	}

	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode wallet:\n%w", err)
	}

	return WalletFromSeed(seed)
}

// Save writes the wallet seed as hex, readable only by the owner.
func (w *Wallet) Save(path string) error {
	seed := hex.EncodeToString(w.privKey.Seed())

	return os.WriteFile(path, []byte(seed+"\n"), 0o600)
}

// Pubkey returns the wallet's public key.
func (w *Wallet) Pubkey() ident.Hash {
	return ident.Hash(w.pubKey)
}

// Faucet mints amount into an account. Only served when the node enables it.
func (c *Client) Faucet(account ident.Hash, amount uint64) (ledger.Account, error) {
	body := map[string]any{
		"account": account.String(),
		"amount":  amount,
	}

	var acct ledger.Account
	if err := c.httpPostJSON("/faucet", body, &acct); err != nil {
		return ledger.Account{}, fmt.Errorf("faucet:\n%w", err)
	}

	return acct, nil
}

// Authority returns the canonical authority and nonce for a pool.
func (c *Client) Authority(poolID ident.Hash) (ident.Hash, uint8, error) {
	var resp struct {
		Authority ident.Hash `json:"authority"`
		Nonce     uint8      `json:"nonce"`
	}

	if err := c.httpGet("/authority/"+poolID.String(), &resp); err != nil {
		return ident.Hash{}, 0, fmt.Errorf("get authority:\n%w", err)
	}

	return resp.Authority, resp.Nonce, nil
}

// Pool returns an initialized pool record.
func (c *Client) Pool(id ident.Hash) (pool.Pool, error) {
	var p pool.Pool
	if err := c.httpGet("/pools/"+id.String(), &p); err != nil {
		return pool.Pool{}, fmt.Errorf("get pool:\n%w", err)
	}

	return p, nil
}

// Account returns a ledger account.
func (c *Client) Account(id ident.Hash) (ledger.Account, error) {
	var acct ledger.Account
	if err := c.httpGet("/accounts/"+id.String(), &acct); err != nil {
		return ledger.Account{}, fmt.Errorf("get account:\n%w", err)
	}

	return acct, nil
}

// Settlements lists receipts, newest first. A zero pool lists every pool.
func (c *Client) Settlements(poolID ident.Hash, limit int) ([]journal.Receipt, error) {
	q := url.Values{}
	if !poolID.IsZero() {
		q.Set("pool", poolID.String())
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	path := "/settlements"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var receipts []journal.Receipt
	if err := c.httpGet(path, &receipts); err != nil {
		return nil, fmt.Errorf("get settlements:\n%w", err)
	}

	return receipts, nil
}
