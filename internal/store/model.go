package store

import (
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Singleton contract names.
const (
	ContractEscrow   = "escrow"
	ContractRegistry = "registry"
	ContractFactory  = "factory"
	ContractBank     = "bank"
)

// Contract holds the settings of a singleton component: its own address,
// the administrator allowed to reconfigure it and, where it applies, the
// factory it trusts. Nonce counts addresses derived from Address.
type Contract struct {
	Name    string
	Address common.Address
	Owner   common.Address
	Factory common.Address
	Nonce   uint64
}

// Token is the metadata of an asset known to the bank.
type Token struct {
	Asset    common.Address
	Symbol   string
	Decimals uint8
}

// EscrowAccount is the custodial balance of one asset held for one will.
type EscrowAccount struct {
	Will   common.Address
	Asset  common.Address
	Owner  common.Address
	Amount *uint256.Int
}

// WillRecord is the persisted state of a will, without its heirs.
type WillRecord struct {
	Address     common.Address
	Testator    common.Address
	Factory     common.Address
	Escrow      common.Address
	Registry    common.Address
	DueDate     int64
	Initialized bool
	CreatedAt   time.Time
}

// HeirAllocation is what one heir receives from one will. Index is the
// position of the heir in insertion order and is maintained by the store.
type HeirAllocation struct {
	Wallet   common.Address
	Tokens   []common.Address
	Amounts  []*uint256.Int
	Executed bool
	Index    int
}

// Clone returns a deep copy; amounts are pointers and must not be shared.
func (h HeirAllocation) Clone() HeirAllocation {
	out := HeirAllocation{
		Wallet:   h.Wallet,
		Executed: h.Executed,
		Index:    h.Index,
		Tokens:   append([]common.Address(nil), h.Tokens...),
		Amounts:  make([]*uint256.Int, len(h.Amounts)),
	}
	for i, a := range h.Amounts {
		out.Amounts[i] = cloneAmount(a)
	}
	return out
}

// WhitelistEntry records whether an asset may be used for new allocations.
type WhitelistEntry struct {
	Asset    common.Address
	Allowed  bool
	Decimals uint8
}

// Event is an outbox record appended in the same transaction as the state
// change it describes.
type Event struct {
	ID        uuid.UUID
	Kind      string
	Source    common.Address
	Payload   json.RawMessage
	CreatedAt time.Time
}

func cloneAmount(a *uint256.Int) *uint256.Int {
	if a == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(a)
}
