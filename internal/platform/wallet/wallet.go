// Package wallet is the boundary to the key-holding wallet: signing,
// verification, key and address derivation, and balance checks.
package wallet

import (
	"context"
	"crypto/elliptic"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/bazaar-mp/project/internal/hashing"
	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
)

var (
	ErrUnknownWallet   = errors.New("unknown wallet")
	ErrUnknownAddress  = errors.New("address not held by wallet")
	ErrInvalidKey      = errors.New("invalid key")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrMalformedTicket = errors.New("malformed ticket")
)

// Ticket is the minimal object whose authenticity a signature proves.
type Ticket map[string]any

// AddressInfo describes an address held by a wallet.
type AddressInfo struct {
	Address   string `json:"address"`
	PublicKey string `json:"public_key"`
	IsMine    bool   `json:"is_mine"`
}

// Wallet is the narrow RPC surface the pipeline needs. Verify returns
// (false, nil) for a well-formed signature that does not match, and an error
// only when verification could not be performed.
type Wallet interface {
	Sign(ctx context.Context, wallet, address string, ticket Ticket) (string, error)
	Verify(ctx context.Context, address, signature string, ticket Ticket) (bool, error)
	AddressInfo(ctx context.Context, wallet, address string) (AddressInfo, error)
	Balance(ctx context.Context, wallet string) (int64, error)
	PublicKey(ctx context.Context, privateKeyWIF string) (string, error)
}

const signatureLen = 64

// ticketDigest is what the signer's ECDSA signature covers.
func ticketDigest(ticket Ticket) ([]byte, error) {
	canonical, err := hashing.CanonicalJSON(ticket)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTicket, err)
	}
	return canonical, nil
}

// signTicket returns base64(compressed public key || r || s).
func signTicket(priv *keys.PrivateKey, ticket Ticket) (string, error) {
	canonical, err := ticketDigest(ticket)
	if err != nil {
		return "", err
	}
	sig := priv.Sign(canonical)
	pub := priv.PublicKey().Bytes()
	out := make([]byte, 0, len(pub)+len(sig))
	out = append(out, pub...)
	out = append(out, sig...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// VerifyTicket checks a signature produced by signTicket without needing the
// signer's wallet.
func VerifyTicket(addr, signature string, ticket Ticket) (bool, error) {
	if _, err := address.StringToUint160(addr); err != nil {
		return false, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(raw) <= signatureLen {
		return false, nil
	}
	pubBytes, sig := raw[:len(raw)-signatureLen], raw[len(raw)-signatureLen:]
	pub, err := keys.NewPublicKeyFromBytes(pubBytes, elliptic.P256())
	if err != nil {
		return false, nil
	}
	if pub.Address() != addr {
		return false, nil
	}
	canonical, err := ticketDigest(ticket)
	if err != nil {
		return false, err
	}
	digest := hash.Sha256(canonical)
	return pub.Verify(sig, digest.BytesBE()), nil
}
