package instruction

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/zeebo/blake3"

	"DiceVault/internal/ident"
	"DiceVault/internal/types"
)

// Function names accepted by POST /tx.
const (
	FnInitialize  = "initialize"
	FnRoll        = "roll"
	FnOpenAccount = "open_account"
	FnTransfer    = "transfer"
)

const (
	// signatureSize is the expected size of an Ed25519 signature.
	signatureSize = 64

	// maxAccounts is the maximum number of account references per instruction.
	maxAccounts = 8

	// DefaultTTL is how long an instruction built by Build stays acceptable.
	DefaultTTL = 5 * time.Minute
)

var (
	ErrMalformed    = errors.New("malformed instruction")
	ErrHashMismatch = errors.New("hash mismatch")
	ErrSignature    = errors.New("invalid signature")
)

// Instruction is a decoded and verified request.
type Instruction struct {
	Hash      ident.Hash   // Hash is blake3 of the unsigned instruction
	Sender    ident.Hash   // Sender is the signer's ed25519 public key
	Signature []byte       // Signature is ed25519(sender, hash)
	Function  string       // Function selects the operation
	Args      []byte       // Args are the Borsh-encoded arguments
	Accounts  []ident.Hash // Accounts are the referenced account ids, in order
	Nonce     uint64       // Nonce distinguishes otherwise identical requests
	ExpiresAt int64        // ExpiresAt is the last unix second the instruction is accepted
}

// Header carries the replay fields covered by the signature.
type Header struct {
	Nonce     uint64
	ExpiresAt int64
}

// NewHeader returns a random nonce and an expiry DefaultTTL from now.
func NewHeader() Header {
	var buf [8]byte
	_, _ = rand.Read(buf[:])

	return Header{
		Nonce:     binary.LittleEndian.Uint64(buf[:]),
		ExpiresAt: time.Now().Add(DefaultTTL).Unix(),
	}
}

// Build creates a signed instruction with a fresh header.
func Build(priv ed25519.PrivateKey, function string, args []byte, accounts []ident.Hash) []byte {
	return BuildWith(priv, NewHeader(), function, args, accounts)
}

// BuildWith creates a signed instruction with the given header.
func BuildWith(priv ed25519.PrivateKey, hdr Header, function string, args []byte, accounts []ident.Hash) []byte {
	pub := priv.Public().(ed25519.PublicKey)
	refs := joinAccounts(accounts)

	// Build unsigned instruction first to compute hash
	unsigned := buildUnsigned(pub, function, args, refs, hdr)
	hash := blake3.Sum256(unsigned)
	sig := ed25519.Sign(priv, hash[:])

	builder := flatbuffers.NewBuilder(512)

	hashVec := builder.CreateByteVector(hash[:])
	sigVec := builder.CreateByteVector(sig)
	argsVec := builder.CreateByteVector(args)
	senderVec := builder.CreateByteVector(pub)
	refsVec := builder.CreateByteVector(refs)
	fnOff := builder.CreateString(function)

	types.InstructionStart(builder)
	types.InstructionAddHash(builder, hashVec)
	types.InstructionAddSender(builder, senderVec)
	types.InstructionAddSignature(builder, sigVec)
	types.InstructionAddFunctionName(builder, fnOff)
	types.InstructionAddArgs(builder, argsVec)
	types.InstructionAddAccounts(builder, refsVec)
	types.InstructionAddNonce(builder, hdr.Nonce)
	types.InstructionAddExpiresAt(builder, hdr.ExpiresAt)
	off := types.InstructionEnd(builder)

	builder.Finish(off)

	return builder.FinishedBytes()
}

// buildUnsigned creates the instruction bytes without hash and signature.
// The server rebuilds the same bytes to verify the hash, so field order
// must not change.
func buildUnsigned(sender []byte, function string, args, refs []byte, hdr Header) []byte {
	builder := flatbuffers.NewBuilder(256)

	argsVec := builder.CreateByteVector(args)
	senderVec := builder.CreateByteVector(sender)
	refsVec := builder.CreateByteVector(refs)
	fnOff := builder.CreateString(function)

	types.InstructionStart(builder)
	types.InstructionAddSender(builder, senderVec)
	types.InstructionAddFunctionName(builder, fnOff)
	types.InstructionAddArgs(builder, argsVec)
	types.InstructionAddAccounts(builder, refsVec)
	types.InstructionAddNonce(builder, hdr.Nonce)
	types.InstructionAddExpiresAt(builder, hdr.ExpiresAt)
	off := types.InstructionEnd(builder)

	builder.Finish(off)

	return builder.FinishedBytes()
}

// Decode parses a raw instruction and verifies its hash and signature.
func Decode(data []byte) (ins Instruction, retErr error) {
	// FlatBuffers panics on malformed data, recover gracefully
	defer func() {
		if r := recover(); r != nil {
			ins = Instruction{}
			retErr = fmt.Errorf("%w: unreadable buffer", ErrMalformed)
		}
	}()

	if len(data) < 8 {
		return Instruction{}, fmt.Errorf("%w: too short", ErrMalformed)
	}

	tx := types.GetRootAsInstruction(data, 0)

	if err := validateFieldSizes(tx); err != nil {
		return Instruction{}, err
	}

	accounts, err := splitAccounts(tx.AccountsBytes())
	if err != nil {
		return Instruction{}, err
	}

	if err := validateHash(tx); err != nil {
		return Instruction{}, err
	}

	if !ed25519.Verify(tx.SenderBytes(), tx.HashBytes(), tx.SignatureBytes()) {
		return Instruction{}, ErrSignature
	}

	ins = Instruction{
		Signature: append([]byte(nil), tx.SignatureBytes()...),
		Function:  string(tx.FunctionName()),
		Args:      append([]byte(nil), tx.ArgsBytes()...),
		Accounts:  accounts,
		Nonce:     tx.Nonce(),
		ExpiresAt: tx.ExpiresAt(),
	}
	copy(ins.Hash[:], tx.HashBytes())
	copy(ins.Sender[:], tx.SenderBytes())

	return ins, nil
}

// validateFieldSizes checks that all fixed-size fields have the correct length.
func validateFieldSizes(tx *types.Instruction) error {
	if n := len(tx.HashBytes()); n != ident.Size {
		return fmt.Errorf("%w: hash size %d", ErrMalformed, n)
	}

	if n := len(tx.SenderBytes()); n != ed25519.PublicKeySize {
		return fmt.Errorf("%w: sender size %d", ErrMalformed, n)
	}

	if n := len(tx.SignatureBytes()); n != signatureSize {
		return fmt.Errorf("%w: signature size %d", ErrMalformed, n)
	}

	if len(tx.FunctionName()) == 0 {
		return fmt.Errorf("%w: empty function name", ErrMalformed)
	}

	return nil
}

// validateHash recomputes the instruction hash and compares it to the declared one.
func validateHash(tx *types.Instruction) error {
	hdr := Header{Nonce: tx.Nonce(), ExpiresAt: tx.ExpiresAt()}
	unsigned := buildUnsigned(tx.SenderBytes(), string(tx.FunctionName()), tx.ArgsBytes(), tx.AccountsBytes(), hdr)
	expected := blake3.Sum256(unsigned)

	if ident.Hash(expected) != ident.Hash(tx.HashBytes()) {
		return ErrHashMismatch
	}

	return nil
}

// joinAccounts concatenates account ids.
func joinAccounts(accounts []ident.Hash) []byte {
	refs := make([]byte, 0, len(accounts)*ident.Size)
	for _, a := range accounts {
		refs = append(refs, a[:]...)
	}

	return refs
}

// splitAccounts parses a concatenated id list, rejecting duplicates.
func splitAccounts(refs []byte) ([]ident.Hash, error) {
	if len(refs)%ident.Size != 0 {
		return nil, fmt.Errorf("%w: accounts length %d is not a multiple of %d", ErrMalformed, len(refs), ident.Size)
	}

	count := len(refs) / ident.Size
	if count > maxAccounts {
		return nil, fmt.Errorf("%w: too many accounts: %d (max %d)", ErrMalformed, count, maxAccounts)
	}

	accounts := make([]ident.Hash, count)
	seen := make(map[ident.Hash]bool, count)

	for i := range accounts {
		copy(accounts[i][:], refs[i*ident.Size:(i+1)*ident.Size])

		if seen[accounts[i]] {
			return nil, fmt.Errorf("%w: duplicate account %s", ErrMalformed, accounts[i].Short())
		}

		seen[accounts[i]] = true
	}

	return accounts, nil
}
