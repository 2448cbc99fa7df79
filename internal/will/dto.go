package will

import (
	"time"

	"github.com/smartwill/lastwill/internal/asset"
	"github.com/smartwill/lastwill/internal/store"
)

// AddHeirRequest carries a new allocation. Amounts and value are base-10
// integers in each asset's smallest unit; value is the native amount the
// testator attaches and must match the allocation's native entry.
type AddHeirRequest struct {
	Wallet  string   `json:"wallet"`
	Tokens  []string `json:"tokens"`
	Amounts []string `json:"amounts"`
	Value   string   `json:"value"`
}

// DueDateRequest moves a will's due date, in unix seconds.
type DueDateRequest struct {
	DueDate int64 `json:"due_date"`
}

// WillResponse describes one will.
type WillResponse struct {
	Address     string `json:"address"`
	Testator    string `json:"testator"`
	DueDate     int64  `json:"due_date"`
	Initialized bool   `json:"initialized"`
	Factory     string `json:"factory"`
	Escrow      string `json:"escrow"`
	Registry    string `json:"registry"`
	CreatedAt   string `json:"created_at"`
}

// HeirResponse describes one heir's allocation.
type HeirResponse struct {
	Wallet   string   `json:"wallet"`
	Tokens   []string `json:"tokens"`
	Amounts  []string `json:"amounts"`
	Executed bool     `json:"executed"`
	Index    int      `json:"index"`
	DueDate  int64    `json:"due_date,omitempty"`
}

// TotalsResponse aggregates what a will holds in escrow.
type TotalsResponse struct {
	Tokens  []string `json:"tokens"`
	Amounts []string `json:"amounts"`
	Native  string   `json:"native"`
}

func toWillResponse(rec store.WillRecord) WillResponse {
	return WillResponse{
		Address:     rec.Address.Hex(),
		Testator:    rec.Testator.Hex(),
		DueDate:     rec.DueDate,
		Initialized: rec.Initialized,
		Factory:     rec.Factory.Hex(),
		Escrow:      rec.Escrow.Hex(),
		Registry:    rec.Registry.Hex(),
		CreatedAt:   rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toHeirResponse(h store.HeirAllocation) HeirResponse {
	return HeirResponse{
		Wallet:   h.Wallet.Hex(),
		Tokens:   asset.FormatAddresses(h.Tokens),
		Amounts:  asset.FormatAmounts(h.Amounts),
		Executed: h.Executed,
		Index:    h.Index,
	}
}
