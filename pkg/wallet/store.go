// Package wallet holds custodial accounts in memory, one per user. Nothing is
// persisted: every account is lost on restart by design.
package wallet

import (
	"errors"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mantlegpt/mantlebot/pkg/logger"
	"github.com/mantlegpt/mantlebot/pkg/vault"
)

// ErrInvalidKey is returned when supplied key material is malformed.
var ErrInvalidKey = errors.New("invalid private key")

// Account is a custodial blockchain identity held on behalf of a user. The
// private key exists in plaintext only inside Create/Connect and at signing
// time; at rest it is always vault-encrypted.
type Account struct {
	UserID  int64
	Address common.Address
	Key     vault.EncryptedKey
}

// Store is the sole owner of the userID -> Account map.
type Store struct {
	mu       sync.RWMutex
	vault    *vault.Vault
	accounts map[int64]Account
}

func NewStore(v *vault.Vault) *Store {
	return &Store{
		vault:    v,
		accounts: make(map[int64]Account),
	}
}

// Create generates a fresh key pair for the user, overwriting any prior
// account without warning (last write wins), and returns the new address.
func (s *Store) Create(userID int64) (common.Address, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return common.Address{}, err
	}

	address := crypto.PubkeyToAddress(key.PublicKey)
	encrypted, err := s.vault.Encrypt(crypto.FromECDSA(key))
	if err != nil {
		return common.Address{}, err
	}

	s.put(Account{UserID: userID, Address: address, Key: encrypted})

	logger.InfoCF("wallet", "Wallet created", map[string]any{
		"user_id": userID,
		"address": address.Hex(),
	})

	return address, nil
}

// Connect imports externally supplied key material, overwriting any prior
// account exactly as Create does.
func (s *Store) Connect(userID int64, rawKey string) (common.Address, error) {
	cleaned := strings.TrimSpace(rawKey)
	cleaned = strings.TrimPrefix(cleaned, "0x")

	key, err := crypto.HexToECDSA(cleaned)
	if err != nil {
		return common.Address{}, ErrInvalidKey
	}

	address := crypto.PubkeyToAddress(key.PublicKey)
	encrypted, err := s.vault.Encrypt(crypto.FromECDSA(key))
	if err != nil {
		return common.Address{}, err
	}

	s.put(Account{UserID: userID, Address: address, Key: encrypted})

	logger.InfoCF("wallet", "Wallet connected", map[string]any{
		"user_id": userID,
		"address": address.Hex(),
	})

	return address, nil
}

// Get returns the user's account, if any.
func (s *Store) Get(userID int64) (Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[userID]
	return acct, ok
}

func (s *Store) put(acct Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acct.UserID] = acct
}
