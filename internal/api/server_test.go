package api

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"DiceVault/internal/authority"
	"DiceVault/internal/dice"
	"DiceVault/internal/ident"
	"DiceVault/internal/instruction"
	"DiceVault/internal/ledger"
	"DiceVault/internal/metrics"
	"DiceVault/internal/oracle"
	"DiceVault/internal/storage"
)

var testMint = ident.Hash{0x4D}

// testServer bundles a server with its ledger for assertions.
type testServer struct {
	*Server
	ledger *ledger.Ledger
}

// newTestServer creates a server over a temporary storage with a fixed clock.
func newTestServer(t *testing.T, now int64, faucet bool) *testServer {
	t.Helper()

	dir, err := os.MkdirTemp("", "api_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	db, err := storage.New(dir)
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("failed to create storage: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
		os.RemoveAll(dir)
	})

	l := ledger.New(db)
	m := metrics.New()
	engine := dice.New(dice.Config{Ledger: l, Oracle: oracle.Fixed(now), Metrics: m})

	return &testServer{
		Server: New(Config{Addr: "127.0.0.1:0", Engine: engine, Ledger: l, Metrics: m, Faucet: faucet}),
		ledger: l,
	}
}

// do sends a request through the router and decodes a JSON object response.
func (s *testServer) do(t *testing.T, method, path string, body []byte) (int, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if method == http.MethodPost && path == "/faucet" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var out map[string]any
	_ = json.Unmarshal(raw, &out)

	return resp.StatusCode, out
}

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	return priv
}

func pubOf(priv ed25519.PrivateKey) ident.Hash {
	return ident.Hash(priv.Public().(ed25519.PublicKey))
}

// openAccount opens an account through POST /tx and returns its id.
func (s *testServer) openAccount(t *testing.T, priv ed25519.PrivateKey, owner ident.Hash) ident.Hash {
	t.Helper()

	tx := instruction.Build(priv, instruction.FnOpenAccount, instruction.EncodeOpenAccountArgs(testMint, owner), nil)

	status, body := s.do(t, http.MethodPost, "/tx", tx)
	if status != http.StatusCreated {
		t.Fatalf("open_account status = %d: %v", status, body)
	}

	acct := body["account"].(map[string]any)
	id, err := ident.Parse(acct["id"].(string))
	if err != nil {
		t.Fatalf("parse account id: %v", err)
	}

	return id
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, 0, false)

	status, body := s.do(t, http.MethodGet, "/health", nil)
	if status != http.StatusOK {
		t.Errorf("expected status 200, got %d", status)
	}

	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
}

// TestRollFlow drives a pool from account creation to a winning settlement.
func TestRollFlow(t *testing.T) {
	s := newTestServer(t, 1_700_000_004, true)

	admin := newKey(t)
	player := newKey(t)
	pool := pubOf(admin)

	// Authority lookup
	status, body := s.do(t, http.MethodGet, "/authority/"+pool.String(), nil)
	if status != http.StatusOK {
		t.Fatalf("authority status = %d", status)
	}

	auth, _ := ident.Parse(body["authority"].(string))
	nonce := uint8(body["nonce"].(float64))

	wantAuth, wantNonce, _ := authority.Find(pool)
	if auth != wantAuth || nonce != wantNonce {
		t.Fatalf("authority = %s/%d, want %s/%d", auth, nonce, wantAuth, wantNonce)
	}

	vault := s.openAccount(t, admin, auth)
	source := s.openAccount(t, player, ident.Hash{})

	for id, amount := range map[ident.Hash]uint64{vault: 1000, source: 100} {
		req, _ := json.Marshal(map[string]any{"account": id.String(), "amount": amount})
		if status, body := s.do(t, http.MethodPost, "/faucet", req); status != http.StatusOK {
			t.Fatalf("faucet status = %d: %v", status, body)
		}
	}

	initTx := instruction.Build(admin, instruction.FnInitialize, instruction.EncodeInitializeArgs(nonce),
		[]ident.Hash{pool, testMint, vault})
	if status, body := s.do(t, http.MethodPost, "/tx", initTx); status != http.StatusOK {
		t.Fatalf("initialize status = %d: %v", status, body)
	}

	status, body = s.do(t, http.MethodGet, "/pools/"+pool.String(), nil)
	if status != http.StatusOK || body["payoutPercent"].(float64) != 90 {
		t.Fatalf("pool = %d %v", status, body)
	}

	// 1_700_000_004 % 6 == 2
	roll := instruction.Build(player, instruction.FnRoll, instruction.EncodeRollArgs(100, 2),
		[]ident.Hash{pool, source, vault, auth})

	status, body = s.do(t, http.MethodPost, "/tx", roll)
	if status != http.StatusOK {
		t.Fatalf("roll status = %d: %v", status, body)
	}

	settlement := body["settlement"].(map[string]any)
	if settlement["outcome"] != "paid" || settlement["payout"].(float64) != 190 {
		t.Errorf("settlement = %v", settlement)
	}

	if bal, _ := s.ledger.Balance(source); bal != 190 {
		t.Errorf("source balance = %d, want 190", bal)
	}

	// Resubmitting the roll settles nothing.
	if status, body := s.do(t, http.MethodPost, "/tx", roll); status != http.StatusConflict || body["kind"] != "replayed" {
		t.Errorf("replayed roll = %d %v", status, body)
	}

	if bal, _ := s.ledger.Balance(source); bal != 190 {
		t.Errorf("source balance after replay = %d, want 190", bal)
	}

	// A second, freshly signed initialize is refused.
	again := instruction.Build(admin, instruction.FnInitialize, instruction.EncodeInitializeArgs(nonce),
		[]ident.Hash{pool, testMint, vault})
	if status, body := s.do(t, http.MethodPost, "/tx", again); status != http.StatusConflict || body["kind"] != "pool_initialized" {
		t.Errorf("re-initialize = %d %v", status, body)
	}
}

// TestInitializeForeignPool verifies a sender cannot initialize a pool id
// other than its own key.
func TestInitializeForeignPool(t *testing.T) {
	s := newTestServer(t, 0, false)
	owner, mallory := newKey(t), newKey(t)
	pool := pubOf(owner)

	auth, nonce, _ := authority.Find(pool)
	vault, _ := s.ledger.OpenAccount(auth, testMint)

	refs := []ident.Hash{pool, testMint, vault.ID}

	hijack := instruction.Build(mallory, instruction.FnInitialize, instruction.EncodeInitializeArgs(nonce), refs)
	if status, body := s.do(t, http.MethodPost, "/tx", hijack); status != http.StatusForbidden || body["kind"] != "pool_signer" {
		t.Fatalf("foreign initialize = %d %v", status, body)
	}

	if status, _ := s.do(t, http.MethodGet, "/pools/"+pool.String(), nil); status != http.StatusNotFound {
		t.Errorf("pool status after foreign initialize = %d, want 404", status)
	}

	own := instruction.Build(owner, instruction.FnInitialize, instruction.EncodeInitializeArgs(nonce), refs)
	if status, body := s.do(t, http.MethodPost, "/tx", own); status != http.StatusOK {
		t.Errorf("owner initialize = %d %v", status, body)
	}
}

// TestRollErrorMapping verifies engine errors surface with their status and kind.
func TestRollErrorMapping(t *testing.T) {
	s := newTestServer(t, 0, false)
	player, admin := newKey(t), newKey(t)
	pool := pubOf(admin)

	auth, nonce, _ := authority.Find(pool)
	vault, _ := s.ledger.OpenAccount(auth, testMint)
	source, _ := s.ledger.OpenAccount(pubOf(player), testMint)
	_ = s.ledger.Mint(source.ID, 10)

	initTx := instruction.Build(admin, instruction.FnInitialize, instruction.EncodeInitializeArgs(nonce),
		[]ident.Hash{pool, testMint, vault.ID})
	if status, _ := s.do(t, http.MethodPost, "/tx", initTx); status != http.StatusOK {
		t.Fatalf("initialize status = %d", status)
	}

	tests := []struct {
		name   string
		args   []byte
		refs   []ident.Hash
		status int
		kind   string
	}{
		{"zero amount", instruction.EncodeRollArgs(0, 3), []ident.Hash{pool, source.ID, vault.ID, auth}, 400, "zero_amount"},
		{"invalid side", instruction.EncodeRollArgs(10, 7), []ident.Hash{pool, source.ID, vault.ID, auth}, 400, "invalid_side"},
		{"wrong authority", instruction.EncodeRollArgs(10, 1), []ident.Hash{pool, source.ID, vault.ID, pubOf(player)}, 403, "authority_mismatch"},
		{"insufficient", instruction.EncodeRollArgs(11, 1), []ident.Hash{pool, source.ID, vault.ID, auth}, 409, "transfer_failed"},
		{"unknown pool", instruction.EncodeRollArgs(1, 1), []ident.Hash{{0x51}, source.ID, vault.ID, auth}, 404, "pool_not_found"},
		{"missing accounts", instruction.EncodeRollArgs(1, 1), []ident.Hash{pool}, 400, "invalid_accounts"},
		{"short args", []byte{1}, []ident.Hash{pool, source.ID, vault.ID, auth}, 400, "invalid_arguments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := instruction.Build(player, instruction.FnRoll, tt.args, tt.refs)

			status, body := s.do(t, http.MethodPost, "/tx", tx)
			if status != tt.status || body["kind"] != tt.kind {
				t.Errorf("got %d %v, want %d %s", status, body, tt.status, tt.kind)
			}
		})
	}

	if bal, _ := s.ledger.Balance(source.ID); bal != 10 {
		t.Errorf("source balance = %d, want 10", bal)
	}
}

// TestTransferRequiresOwner verifies the signer must own the debited account.
func TestTransferRequiresOwner(t *testing.T) {
	s := newTestServer(t, 0, false)
	alice, mallory := newKey(t), newKey(t)

	from := s.openAccount(t, alice, ident.Hash{})
	to := s.openAccount(t, mallory, ident.Hash{})
	_ = s.ledger.Mint(from, 50)

	stolen := instruction.Build(mallory, instruction.FnTransfer, instruction.EncodeTransferArgs(50), []ident.Hash{from, to})
	if status, body := s.do(t, http.MethodPost, "/tx", stolen); status != http.StatusForbidden || body["kind"] != "unauthorized" {
		t.Errorf("foreign transfer = %d %v", status, body)
	}

	ok := instruction.Build(alice, instruction.FnTransfer, instruction.EncodeTransferArgs(20), []ident.Hash{from, to})
	if status, body := s.do(t, http.MethodPost, "/tx", ok); status != http.StatusOK {
		t.Errorf("owner transfer = %d %v", status, body)
	}

	if bal, _ := s.ledger.Balance(to); bal != 20 {
		t.Errorf("destination balance = %d, want 20", bal)
	}
}

// TestReplayedTransfer verifies the same signed transfer moves funds once.
func TestReplayedTransfer(t *testing.T) {
	s := newTestServer(t, 0, false)
	alice, bob := newKey(t), newKey(t)

	from := s.openAccount(t, alice, ident.Hash{})
	to := s.openAccount(t, bob, ident.Hash{})
	_ = s.ledger.Mint(from, 300)

	tx := instruction.Build(alice, instruction.FnTransfer, instruction.EncodeTransferArgs(100), []ident.Hash{from, to})

	if status, body := s.do(t, http.MethodPost, "/tx", tx); status != http.StatusOK {
		t.Fatalf("transfer = %d %v", status, body)
	}

	for i := 0; i < 2; i++ {
		if status, body := s.do(t, http.MethodPost, "/tx", tx); status != http.StatusConflict || body["kind"] != "replayed" {
			t.Errorf("replay %d = %d %v, want 409 replayed", i, status, body)
		}
	}

	if bal, _ := s.ledger.Balance(from); bal != 200 {
		t.Errorf("source balance = %d, want 200", bal)
	}

	if bal, _ := s.ledger.Balance(to); bal != 100 {
		t.Errorf("destination balance = %d, want 100", bal)
	}

	// The same transfer signed again is a new instruction.
	fresh := instruction.Build(alice, instruction.FnTransfer, instruction.EncodeTransferArgs(100), []ident.Hash{from, to})
	if status, body := s.do(t, http.MethodPost, "/tx", fresh); status != http.StatusOK {
		t.Errorf("fresh transfer = %d %v", status, body)
	}
}

// TestReplayedOpenAccount verifies an open_account instruction creates one account.
func TestReplayedOpenAccount(t *testing.T) {
	s := newTestServer(t, 0, false)
	priv := newKey(t)

	tx := instruction.Build(priv, instruction.FnOpenAccount, instruction.EncodeOpenAccountArgs(testMint, ident.Hash{}), nil)

	if status, body := s.do(t, http.MethodPost, "/tx", tx); status != http.StatusCreated {
		t.Fatalf("open_account = %d %v", status, body)
	}

	if status, body := s.do(t, http.MethodPost, "/tx", tx); status != http.StatusConflict || body["kind"] != "replayed" {
		t.Errorf("replayed open_account = %d %v", status, body)
	}

	accounts, err := s.ledger.Accounts()
	if err != nil {
		t.Fatalf("Accounts failed: %v", err)
	}

	if len(accounts) != 1 {
		t.Errorf("accounts = %d, want 1", len(accounts))
	}
}

// TestExpiredInstruction verifies an instruction past its expiry is refused.
func TestExpiredInstruction(t *testing.T) {
	s := newTestServer(t, 1_700_000_000, false)
	alice := newKey(t)

	from := s.openAccount(t, alice, ident.Hash{})
	_ = s.ledger.Mint(from, 10)

	hdr := instruction.Header{Nonce: 1, ExpiresAt: 1_699_999_999}
	tx := instruction.BuildWith(alice, hdr, instruction.FnTransfer, instruction.EncodeTransferArgs(5), []ident.Hash{from, {0x01}})

	if status, body := s.do(t, http.MethodPost, "/tx", tx); status != http.StatusBadRequest || body["kind"] != "expired" {
		t.Errorf("expired transfer = %d %v", status, body)
	}

	if bal, _ := s.ledger.Balance(from); bal != 10 {
		t.Errorf("balance = %d, want 10", bal)
	}
}

func TestSubmitTxRejections(t *testing.T) {
	s := newTestServer(t, 0, false)
	priv := newKey(t)

	tests := []struct {
		name string
		body []byte
	}{
		{"empty", nil},
		{"garbage", []byte("invalid")},
		{"unknown function", instruction.Build(priv, "withdraw_all", nil, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if status, body := s.do(t, http.MethodPost, "/tx", tt.body); status != http.StatusBadRequest {
				t.Errorf("status = %d %v, want 400", status, body)
			}
		})
	}
}

func TestFaucetDisabled(t *testing.T) {
	s := newTestServer(t, 0, false)

	req := []byte(`{"account":"` + strings.Repeat("00", 32) + `","amount":1}`)
	if status, _ := s.do(t, http.MethodPost, "/faucet", req); status != http.StatusNotFound && status != http.StatusMethodNotAllowed {
		t.Errorf("faucet status = %d, want 404 or 405", status)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestServer(t, 0, false)
	missing := ident.Hash{0x99}.String()

	for _, path := range []string{"/accounts/" + missing, "/pools/" + missing} {
		if status, _ := s.do(t, http.MethodGet, path, nil); status != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, status)
		}
	}

	if status, _ := s.do(t, http.MethodGet, "/accounts/zz", nil); status != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", status)
	}
}

func TestSettlementsEmpty(t *testing.T) {
	s := newTestServer(t, 0, false)

	req := httptest.NewRequest(http.MethodGet, "/settlements?limit=5", nil)
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(raw)) != "[]" {
		t.Errorf("settlements = %d %s", resp.StatusCode, raw)
	}
}

// TestMetricsEndpoint verifies counters are exposed after a request.
func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, 0, false)
	s.do(t, http.MethodGet, "/health", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `http_requests_total{method="GET",route="/health"} 1`) {
		t.Errorf("metrics missing health request:\n%s", raw)
	}
}

func TestStartStop(t *testing.T) {
	s := newTestServer(t, 0, false)

	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if strings.HasSuffix(s.Addr(), ":0") {
		t.Errorf("Addr = %s, want the bound port", s.Addr())
	}

	if err := s.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
