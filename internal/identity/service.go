// Package identity proves wallet ownership with signed, single-use sign-in
// challenges (EIP-191 personal messages).
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/smartwill/lastwill/internal/apperr"
	"github.com/smartwill/lastwill/internal/clock"
)

const defaultChallengeTTL = 5 * time.Minute

// Service issues and verifies sign-in challenges.
type Service struct {
	repo  Repository
	clock clock.Clock
	ttl   time.Duration
	app   string
}

// NewService creates an identity service. app names the service in the
// message the wallet signs.
func NewService(repo Repository, clk clock.Clock, app string, ttl time.Duration) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if ttl <= 0 {
		ttl = defaultChallengeTTL
	}
	return &Service{repo: repo, clock: clk, ttl: ttl, app: app}
}

// Issue creates a fresh challenge for address, replacing any outstanding one.
func (s *Service) Issue(ctx context.Context, address common.Address) (Challenge, error) {
	if address == (common.Address{}) {
		return Challenge{}, apperr.ErrInvalidAddress
	}
	now := s.clock.Now().UTC()
	ch := Challenge{
		Address:   address,
		Nonce:     uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	ch.Message = fmt.Sprintf("%s wants you to sign in with your wallet.\n\nAddress: %s\nNonce: %s\nIssued At: %s\nExpires At: %s",
		s.app, address.Hex(), ch.Nonce, now.Format(time.RFC3339), ch.ExpiresAt.Format(time.RFC3339))
	if err := s.repo.Save(ctx, ch, s.ttl); err != nil {
		return Challenge{}, err
	}
	return ch, nil
}

// Verify consumes the outstanding challenge of address and checks that
// signature, a 65-byte hex [R || S || V] signature over the challenge
// message, was produced by address. A challenge is spent even when the
// signature is wrong.
func (s *Service) Verify(ctx context.Context, address common.Address, signature string) error {
	ch, err := s.repo.Consume(ctx, address)
	if err != nil {
		return err
	}
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return ErrInvalidSignature
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(ch.Message)), sig)
	if err != nil {
		return ErrInvalidSignature
	}
	if crypto.PubkeyToAddress(*pub) != address {
		return ErrInvalidSignature
	}
	return nil
}
