package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Address identifies a party on the ledger: an end user, the router service,
// or a component admin. Addresses are opaque lowercase hex strings; the
// platform does not interpret them beyond equality.
type Address string

// ParseAddress validates and normalizes an address string.
func ParseAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("address is empty")
	}
	if _, err := hex.DecodeString(strings.TrimPrefix(s, "0x")); err != nil {
		return "", fmt.Errorf("address %q is not hex encoded", s)
	}
	return Address(s), nil
}

func (a Address) IsNil() bool { return a == "" }

func (a Address) String() string { return string(a) }

// OperationID is the 32-byte identifier allocated at operation start. It is
// never reused; the hex form doubles as the correlation id for event streams.
type OperationID [32]byte

// NewOperationID draws a fresh random identifier.
func NewOperationID() OperationID {
	var id OperationID
	if _, err := rand.Read(id[:]); err != nil {
		// crypto/rand never fails on supported platforms; if it does the
		// process cannot safely allocate identifiers at all.
		panic(fmt.Sprintf("operation id entropy unavailable: %v", err))
	}
	return id
}

// ParseOperationID decodes the hex form produced by String.
func ParseOperationID(s string) (OperationID, error) {
	var id OperationID
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
	if err != nil {
		return id, fmt.Errorf("operation id %q is not hex encoded", s)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("operation id must be %d bytes, got %d", len(id), len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

func (id OperationID) IsNil() bool { return id == OperationID{} }

func (id OperationID) String() string { return hex.EncodeToString(id[:]) }

// CorrelationID links events across components for one logical operation.
// It equals the operation id's hex form by construction.
func (id OperationID) CorrelationID() string { return id.String() }

// TxHash is a Bitcoin transaction hash, 32 bytes, supplied by the external
// observer. It is the dedup key for deposits.
type TxHash [32]byte

// ParseTxHash decodes a 64-character hex transaction hash.
func ParseTxHash(s string) (TxHash, error) {
	var h TxHash
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
	if err != nil {
		return h, fmt.Errorf("tx hash %q is not hex encoded", s)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("tx hash must be %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

func (h TxHash) IsNil() bool { return h == TxHash{} }

func (h TxHash) String() string { return hex.EncodeToString(h[:]) }

// WithdrawalID identifies a withdrawal request in the reserve manager.
type WithdrawalID uuid.UUID

// NewWithdrawalID allocates a fresh withdrawal request id.
func NewWithdrawalID() WithdrawalID { return WithdrawalID(uuid.New()) }

// ParseWithdrawalID parses the canonical UUID string form.
func ParseWithdrawalID(s string) (WithdrawalID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return WithdrawalID{}, fmt.Errorf("withdrawal id %q: %w", s, err)
	}
	return WithdrawalID(u), nil
}

func (w WithdrawalID) IsNil() bool { return uuid.UUID(w) == uuid.Nil }

func (w WithdrawalID) String() string { return uuid.UUID(w).String() }
