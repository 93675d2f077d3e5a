package wallet

import (
	"fmt"
	"strings"

	"github.com/bazaar-mp/project/internal/contracts"
	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
)

var ErrIdenticalMarketKeys = fmt.Errorf("%w: receive and publish keys must differ", ErrInvalidKey)

// MarketAddresses is the identity derived from a market's key material.
type MarketAddresses struct {
	ReceiveAddress string
	PublishAddress string
}

// AddressFromWIF returns the address controlled by a WIF private key.
func AddressFromWIF(wif string) (string, error) {
	priv, err := keys.NewPrivateKeyFromWIF(strings.TrimSpace(wif))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return priv.Address(), nil
}

// AddressFromPublicKey returns the address of a hex encoded public key.
func AddressFromPublicKey(pubHex string) (string, error) {
	pub, err := keys.NewPublicKeyFromString(strings.TrimSpace(pubHex))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return pub.Address(), nil
}

// PublicKeyFromWIF returns the compressed hex public key of a WIF private key.
func PublicKeyFromWIF(wif string) (string, error) {
	priv, err := keys.NewPrivateKeyFromWIF(strings.TrimSpace(wif))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return priv.PublicKey().StringCompressed(), nil
}

// DeriveMarketAddresses computes a market's receive and publish addresses
// from its keys. Every party recomputes this locally from the same inputs.
//
//	MARKETPLACE       receive and publish from the same private key
//	STOREFRONT        receive from a private key, publish from a public key
//	STOREFRONT_ADMIN  two distinct private keys
func DeriveMarketAddresses(marketType contracts.MarketType, receiveKey, publishKey string) (MarketAddresses, error) {
	receiveAddr, err := AddressFromWIF(receiveKey)
	if err != nil {
		return MarketAddresses{}, fmt.Errorf("receive key: %w", err)
	}
	switch marketType {
	case contracts.MarketTypeMarketplace:
		if publishKey != "" && strings.TrimSpace(publishKey) != strings.TrimSpace(receiveKey) {
			return MarketAddresses{}, fmt.Errorf("%w: marketplace publish key must equal receive key", ErrInvalidKey)
		}
		return MarketAddresses{ReceiveAddress: receiveAddr, PublishAddress: receiveAddr}, nil
	case contracts.MarketTypeStorefront:
		publishAddr, err := AddressFromPublicKey(publishKey)
		if err != nil {
			return MarketAddresses{}, fmt.Errorf("publish key: %w", err)
		}
		return MarketAddresses{ReceiveAddress: receiveAddr, PublishAddress: publishAddr}, nil
	case contracts.MarketTypeStorefrontAdmin:
		if strings.TrimSpace(publishKey) == strings.TrimSpace(receiveKey) {
			return MarketAddresses{}, ErrIdenticalMarketKeys
		}
		publishAddr, err := AddressFromWIF(publishKey)
		if err != nil {
			return MarketAddresses{}, fmt.Errorf("publish key: %w", err)
		}
		return MarketAddresses{ReceiveAddress: receiveAddr, PublishAddress: publishAddr}, nil
	default:
		return MarketAddresses{}, fmt.Errorf("%w: unknown market type %q", ErrInvalidKey, marketType)
	}
}
