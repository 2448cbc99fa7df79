package identity

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Challenge is a single-use sign-in message issued to a wallet.
type Challenge struct {
	Address   common.Address
	Nonce     string
	Message   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
