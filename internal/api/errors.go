package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"DiceVault/internal/dice"
	"DiceVault/internal/instruction"
	"DiceVault/internal/ledger"
	"DiceVault/internal/replay"
)

var (
	errUnknownFunction = errors.New("unknown function")
	errAccounts        = errors.New("wrong number of accounts")
	errBadRequest      = errors.New("bad request")
	errNotFound        = errors.New("not found")
)

// errorClass ties an error to its HTTP status and stable kind name.
type errorClass struct {
	err    error
	status int
	kind   string
}

// classes is checked in order. Engine sentinels come first because they wrap
// the ledger cause.
var classes = []errorClass{
	{dice.ErrInvalidSide, fiber.StatusBadRequest, ""},
	{dice.ErrZeroAmount, fiber.StatusBadRequest, ""},
	{dice.ErrOwnershipMismatch, fiber.StatusForbidden, ""},
	{dice.ErrAuthorityMismatch, fiber.StatusForbidden, ""},
	{dice.ErrTransferFailed, fiber.StatusConflict, ""},
	{dice.ErrPoolNotFound, fiber.StatusNotFound, ""},
	{dice.ErrPoolInitialized, fiber.StatusConflict, ""},
	{dice.ErrPoolSigner, fiber.StatusForbidden, ""},
	{replay.ErrReplayed, fiber.StatusConflict, ""},
	{replay.ErrExpired, fiber.StatusBadRequest, ""},
	{ledger.ErrAccountNotFound, fiber.StatusNotFound, "account_not_found"},
	{ledger.ErrAccountExists, fiber.StatusConflict, "account_exists"},
	{ledger.ErrUnauthorized, fiber.StatusForbidden, "unauthorized"},
	{ledger.ErrMintMismatch, fiber.StatusConflict, "mint_mismatch"},
	{ledger.ErrInsufficientFunds, fiber.StatusConflict, "insufficient_funds"},
	{ledger.ErrOverflow, fiber.StatusConflict, "overflow"},
	{instruction.ErrMalformed, fiber.StatusBadRequest, "malformed"},
	{instruction.ErrHashMismatch, fiber.StatusBadRequest, "hash_mismatch"},
	{instruction.ErrSignature, fiber.StatusBadRequest, "invalid_signature"},
	{instruction.ErrArgs, fiber.StatusBadRequest, "invalid_arguments"},
	{errUnknownFunction, fiber.StatusBadRequest, "unknown_function"},
	{errAccounts, fiber.StatusBadRequest, "invalid_accounts"},
	{errBadRequest, fiber.StatusBadRequest, "bad_request"},
	{errNotFound, fiber.StatusNotFound, "not_found"},
}

func classify(err error) (errorClass, bool) {
	for _, c := range classes {
		if errors.Is(err, c.err) {
			if c.kind == "" {
				c.kind = dice.Kind(c.err)
			}
			return c, true
		}
	}

	return errorClass{}, false
}

// statusOf maps an error to its HTTP status.
func statusOf(err error) int {
	if c, ok := classify(err); ok {
		return c.status
	}

	return fiber.StatusInternalServerError
}

// kindOf maps an error to its stable kind name.
func kindOf(err error) string {
	if c, ok := classify(err); ok {
		return c.kind
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return "http"
	}

	return "internal"
}
