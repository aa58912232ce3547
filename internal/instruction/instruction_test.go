package instruction

import (
	"crypto/ed25519"
	"errors"
	"testing"

	"DiceVault/internal/ident"
	"DiceVault/internal/types"
)

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	return priv
}

// TestBuildDecode verifies a built instruction verifies and decodes intact.
func TestBuildDecode(t *testing.T) {
	priv := newKey(t)
	accounts := []ident.Hash{{1}, {2}, {3}, {4}}
	args := EncodeRollArgs(100, 3)

	ins, err := Decode(Build(priv, FnRoll, args, accounts))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if ins.Function != FnRoll {
		t.Errorf("Function = %q", ins.Function)
	}

	if ins.Sender != ident.Hash(priv.Public().(ed25519.PublicKey)) {
		t.Errorf("Sender = %s", ins.Sender)
	}

	if len(ins.Accounts) != 4 || ins.Accounts[2] != accounts[2] {
		t.Errorf("Accounts = %v", ins.Accounts)
	}

	amount, side, err := DecodeRollArgs(ins.Args)
	if err != nil || amount != 100 || side != 3 {
		t.Errorf("DecodeRollArgs = %d, %d, %v", amount, side, err)
	}
}

// TestHeaderMakesHashUnique verifies identical requests get distinct hashes
// unless they share a header.
func TestHeaderMakesHashUnique(t *testing.T) {
	priv := newKey(t)
	args := EncodeTransferArgs(100)
	accounts := []ident.Hash{{1}, {2}}

	first, err := Decode(Build(priv, FnTransfer, args, accounts))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	second, err := Decode(Build(priv, FnTransfer, args, accounts))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if first.Hash == second.Hash {
		t.Error("two builds of the same request share a hash")
	}

	if first.ExpiresAt <= 0 {
		t.Errorf("ExpiresAt = %d, want a future unix time", first.ExpiresAt)
	}

	hdr := Header{Nonce: 42, ExpiresAt: 1_700_000_000}
	a, _ := Decode(BuildWith(priv, hdr, FnTransfer, args, accounts))
	b, _ := Decode(BuildWith(priv, hdr, FnTransfer, args, accounts))

	if a.Hash != b.Hash || a.Nonce != 42 || a.ExpiresAt != 1_700_000_000 {
		t.Errorf("fixed header: hashes %s/%s nonce %d expiry %d", a.Hash.Short(), b.Hash.Short(), a.Nonce, a.ExpiresAt)
	}
}

// TestDecodeTampered verifies mutated fields break the hash or signature.
func TestDecodeTampered(t *testing.T) {
	priv := newKey(t)

	tests := []struct {
		name   string
		mutate func(*types.Instruction)
		want   error
	}{
		{"args", func(tx *types.Instruction) { tx.MutateArgs(0, 0xFF) }, ErrHashMismatch},
		{"accounts", func(tx *types.Instruction) { tx.MutateAccounts(0, 0xFF) }, ErrHashMismatch},
		{"hash", func(tx *types.Instruction) { tx.MutateHash(0, tx.Hash(0)^1) }, ErrHashMismatch},
		{"signature", func(tx *types.Instruction) { tx.MutateSignature(0, tx.Signature(0)^1) }, ErrSignature},
		{"nonce", func(tx *types.Instruction) { tx.MutateNonce(tx.Nonce() + 1) }, ErrHashMismatch},
		{"expiry", func(tx *types.Instruction) { tx.MutateExpiresAt(tx.ExpiresAt() + 3600) }, ErrHashMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := Build(priv, FnTransfer, EncodeTransferArgs(7), []ident.Hash{{1}, {2}})
			tt.mutate(types.GetRootAsInstruction(data, 0))

			if _, err := Decode(data); !errors.Is(err, tt.want) {
				t.Fatalf("Decode error = %v, want %v", err, tt.want)
			}
		})
	}
}

// TestDecodeForgedSender verifies swapping the sender invalidates the instruction.
func TestDecodeForgedSender(t *testing.T) {
	priv := newKey(t)
	other := newKey(t).Public().(ed25519.PublicKey)

	data := Build(priv, FnInitialize, EncodeInitializeArgs(1), nil)
	tx := types.GetRootAsInstruction(data, 0)

	for i, b := range other {
		tx.MutateSender(i, b)
	}

	if _, err := Decode(data); err == nil {
		t.Fatal("Decode accepted a forged sender")
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, data := range [][]byte{nil, {1, 2, 3}, make([]byte, 16), {0xFF, 0xFF, 0xFF, 0x7F, 0, 0, 0, 0, 0}} {
		if _, err := Decode(data); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%x) error = %v, want ErrMalformed", data, err)
		}
	}
}

func TestDecodeAccountRules(t *testing.T) {
	priv := newKey(t)

	dup := Build(priv, FnTransfer, EncodeTransferArgs(1), []ident.Hash{{1}, {1}})
	if _, err := Decode(dup); !errors.Is(err, ErrMalformed) {
		t.Errorf("duplicate accounts: error = %v, want ErrMalformed", err)
	}

	many := make([]ident.Hash, maxAccounts+1)
	for i := range many {
		many[i] = ident.Hash{byte(i + 1)}
	}

	if _, err := Decode(Build(priv, FnTransfer, nil, many)); !errors.Is(err, ErrMalformed) {
		t.Errorf("too many accounts: error = %v, want ErrMalformed", err)
	}
}

func TestArgsLayout(t *testing.T) {
	roll := EncodeRollArgs(0x0102030405060708, 6)
	want := []byte{8, 7, 6, 5, 4, 3, 2, 1, 6}

	if string(roll) != string(want) {
		t.Errorf("EncodeRollArgs = %x, want %x", roll, want)
	}

	if _, _, err := DecodeRollArgs(roll[:8]); !errors.Is(err, ErrArgs) {
		t.Errorf("short roll args: error = %v", err)
	}

	if n, err := DecodeInitializeArgs(EncodeInitializeArgs(254)); err != nil || n != 254 {
		t.Errorf("DecodeInitializeArgs = %d, %v", n, err)
	}

	if _, err := DecodeInitializeArgs(nil); !errors.Is(err, ErrArgs) {
		t.Errorf("empty initialize args: error = %v", err)
	}

	if v, err := DecodeTransferArgs(EncodeTransferArgs(42)); err != nil || v != 42 {
		t.Errorf("DecodeTransferArgs = %d, %v", v, err)
	}

	mint, owner := ident.Hash{0x4D}, ident.Hash{0x0A}
	if m, o, err := DecodeOpenAccountArgs(EncodeOpenAccountArgs(mint, ident.Hash{})); err != nil || m != mint || !o.IsZero() {
		t.Errorf("DecodeOpenAccountArgs = %s, %s, %v", m, o, err)
	}

	if m, o, err := DecodeOpenAccountArgs(EncodeOpenAccountArgs(mint, owner)); err != nil || m != mint || o != owner {
		t.Errorf("DecodeOpenAccountArgs with owner = %s, %s, %v", m, o, err)
	}

	if _, _, err := DecodeOpenAccountArgs([]byte{1}); !errors.Is(err, ErrArgs) {
		t.Errorf("short mint: error = %v", err)
	}
}
