package wallet

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/nspcc-dev/neo-go/pkg/crypto/keys"
	"gopkg.in/yaml.v3"
)

// KeystoreFile is the on-disk layout read by LoadKeystore.
type KeystoreFile struct {
	Wallets []WalletEntry `yaml:"wallets"`
}

type WalletEntry struct {
	Name    string   `yaml:"name"`
	Balance int64    `yaml:"balance"`
	Keys    []string `yaml:"keys"`
}

type walletKeys struct {
	balance int64
	keys    map[string]*keys.PrivateKey
}

// Keystore is a local Wallet backed by WIF keys grouped into named wallets.
type Keystore struct {
	mu      sync.RWMutex
	wallets map[string]*walletKeys
}

func NewKeystore() *Keystore {
	return &Keystore{wallets: map[string]*walletKeys{}}
}

// LoadKeystore reads a YAML keystore file.
func LoadKeystore(path string) (*Keystore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	var file KeystoreFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse keystore: %w", err)
	}
	ks := NewKeystore()
	for _, w := range file.Wallets {
		if strings.TrimSpace(w.Name) == "" {
			return nil, fmt.Errorf("parse keystore: wallet without name")
		}
		ks.SetBalance(w.Name, w.Balance)
		for _, wif := range w.Keys {
			if _, err := ks.ImportWIF(w.Name, wif); err != nil {
				return nil, fmt.Errorf("wallet %s: %w", w.Name, err)
			}
		}
	}
	return ks, nil
}

func (k *Keystore) entry(name string) *walletKeys {
	w, ok := k.wallets[name]
	if !ok {
		w = &walletKeys{keys: map[string]*keys.PrivateKey{}}
		k.wallets[name] = w
	}
	return w
}

// ImportWIF adds a private key to a wallet and returns its address.
func (k *Keystore) ImportWIF(walletName, wif string) (string, error) {
	priv, err := keys.NewPrivateKeyFromWIF(strings.TrimSpace(wif))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	addr := priv.Address()
	k.mu.Lock()
	k.entry(walletName).keys[addr] = priv
	k.mu.Unlock()
	return addr, nil
}

func (k *Keystore) SetBalance(walletName string, balance int64) {
	k.mu.Lock()
	k.entry(walletName).balance = balance
	k.mu.Unlock()
}

// Addresses lists every address held by any wallet.
func (k *Keystore) Addresses() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, 0)
	for _, w := range k.wallets {
		for addr := range w.keys {
			out = append(out, addr)
		}
	}
	return out
}

func (k *Keystore) key(walletName, addr string) (*keys.PrivateKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	w, ok := k.wallets[walletName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWallet, walletName)
	}
	priv, ok := w.keys[addr]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %q", ErrUnknownAddress, addr, walletName)
	}
	return priv, nil
}

func (k *Keystore) Sign(ctx context.Context, walletName, addr string, ticket Ticket) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	priv, err := k.key(walletName, addr)
	if err != nil {
		return "", err
	}
	return signTicket(priv, ticket)
}

func (k *Keystore) Verify(ctx context.Context, addr, signature string, ticket Ticket) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return VerifyTicket(addr, signature, ticket)
}

func (k *Keystore) AddressInfo(ctx context.Context, walletName, addr string) (AddressInfo, error) {
	if err := ctx.Err(); err != nil {
		return AddressInfo{}, err
	}
	priv, err := k.key(walletName, addr)
	if err != nil {
		return AddressInfo{Address: addr}, err
	}
	return AddressInfo{
		Address:   addr,
		PublicKey: priv.PublicKey().StringCompressed(),
		IsMine:    true,
	}, nil
}

func (k *Keystore) Balance(ctx context.Context, walletName string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	k.mu.RLock()
	defer k.mu.RUnlock()
	w, ok := k.wallets[walletName]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownWallet, walletName)
	}
	return w.balance, nil
}

func (k *Keystore) PublicKey(ctx context.Context, privateKeyWIF string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return PublicKeyFromWIF(privateKeyWIF)
}
