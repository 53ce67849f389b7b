// Package service provides business logic implementations.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"

	"wager-bot/internal/asset"
	"wager-bot/internal/model"
	"wager-bot/internal/repository"
)

// Common errors for account operations.
var (
	ErrUserNotFound = errors.New("user not found")
)

// UserStore persists the Telegram account to identity mapping.
type UserStore interface {
	GetOrCreate(ctx context.Context, telegramID int64, username string, address common.Address) (*model.User, bool, error)
	GetByID(ctx context.Context, telegramID int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByAddress(ctx context.Context, address common.Address) (*model.User, error)
	UpdateUsername(ctx context.Context, telegramID int64, username string) error
}

// Wallets is the house ledger the chat surface funds and reads.
type Wallets interface {
	Credit(ctx context.Context, ref asset.Ref, who common.Address, amount *big.Int) (*big.Int, error)
	BalanceOf(ctx context.Context, ref asset.Ref, who common.Address) (*big.Int, error)
}

// Approver is implemented by ledgers that need an explicit token allowance
// before the escrow may pull.
type Approver interface {
	Approve(ctx context.Context, ref asset.Ref, owner common.Address, amount *big.Int) error
	// Release takes back an approval the escrow did not use.
	Release(ctx context.Context, ref asset.Ref, owner common.Address, amount *big.Int) error
}

// IdentityFor derives the engine identity of a Telegram account: the last 20
// bytes of keccak256("telegram:<id>").
func IdentityFor(telegramID int64) common.Address {
	hash := crypto.Keccak256([]byte("telegram:" + strconv.FormatInt(telegramID, 10)))
	return common.BytesToAddress(hash[12:])
}

// AccountService handles user account operations.
type AccountService struct {
	users   UserStore
	wallets Wallets
	faucet  *big.Int
}

// NewAccountService creates a new AccountService instance. faucet, in
// smallest native units, is credited to every new user; nil or zero disables it.
func NewAccountService(users UserStore, wallets Wallets, faucet *big.Int) *AccountService {
	return &AccountService{
		users:   users,
		wallets: wallets,
		faucet:  faucet,
	}
}

// EnsureUser ensures a user exists, creating one if necessary.
// Returns the user and whether it was newly created.
func (s *AccountService) EnsureUser(ctx context.Context, telegramID int64, username string) (*model.User, bool, error) {
	user, created, err := s.users.GetOrCreate(ctx, telegramID, username, IdentityFor(telegramID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to ensure user: %w", err)
	}

	if !created && user.Username != username && username != "" {
		if err := s.users.UpdateUsername(ctx, telegramID, username); err != nil {
			log.Warn().Err(err).Int64("user_id", telegramID).Msg("Failed to update username")
		}
		user.Username = username
	}

	if created && s.faucet != nil && s.faucet.Sign() > 0 {
		if _, err := s.wallets.Credit(ctx, asset.Native(), user.Address, s.faucet); err != nil {
			log.Error().Err(err).Int64("user_id", telegramID).Msg("Failed to credit faucet")
		}
	}

	return user, created, nil
}

// GetUser retrieves a user by their Telegram ID.
func (s *AccountService) GetUser(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := s.users.GetByID(ctx, telegramID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// Resolve maps "@name", a bare name or a hex address onto an identity.
// Names only resolve for users who have talked to the bot.
func (s *AccountService) Resolve(ctx context.Context, ref string) (common.Address, error) {
	ref = strings.TrimSpace(ref)
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	name := strings.TrimPrefix(ref, "@")
	if name == "" {
		return common.Address{}, ErrUserNotFound
	}
	user, err := s.users.GetByUsername(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return common.Address{}, fmt.Errorf("%w: @%s", ErrUserNotFound, name)
		}
		return common.Address{}, err
	}
	return user.Address, nil
}

// DisplayName renders an identity as "@name" when it belongs to a known user.
func (s *AccountService) DisplayName(ctx context.Context, address common.Address) string {
	user, err := s.users.GetByAddress(ctx, address)
	if err != nil || user.Username == "" {
		return shortAddress(address)
	}
	return "@" + user.Username
}

// Balance returns who's house-ledger balance of ref.
func (s *AccountService) Balance(ctx context.Context, ref asset.Ref, who common.Address) (*big.Int, error) {
	return s.wallets.BalanceOf(ctx, ref, who)
}

// Mint credits amount of ref to who.
func (s *AccountService) Mint(ctx context.Context, ref asset.Ref, who common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.wallets.Credit(ctx, ref, who, amount)
}

func shortAddress(a common.Address) string {
	hex := a.Hex()
	return hex[:6] + "…" + hex[len(hex)-4:]
}

// MemoryUsers is a process-local UserStore for running without a database.
type MemoryUsers struct {
	mu    sync.RWMutex
	users map[int64]*model.User
}

// NewMemoryUsers creates an empty MemoryUsers.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[int64]*model.User)}
}

// GetOrCreate implements UserStore.
func (m *MemoryUsers) GetOrCreate(_ context.Context, telegramID int64, username string, address common.Address) (*model.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[telegramID]; ok {
		cp := *u
		return &cp, false, nil
	}
	now := time.Now()
	u := &model.User{TelegramID: telegramID, Username: username, Address: address, CreatedAt: now, UpdatedAt: now}
	m.users[telegramID] = u
	cp := *u
	return &cp, true, nil
}

// GetByID implements UserStore.
func (m *MemoryUsers) GetByID(_ context.Context, telegramID int64) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[telegramID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// GetByUsername implements UserStore.
func (m *MemoryUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return strings.EqualFold(u.Username, username) })
}

// GetByAddress implements UserStore.
func (m *MemoryUsers) GetByAddress(_ context.Context, address common.Address) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Address == address })
}

// UpdateUsername implements UserStore.
func (m *MemoryUsers) UpdateUsername(_ context.Context, telegramID int64, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[telegramID]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.Username = username
	u.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryUsers) find(match func(*model.User) bool) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// VaultWallets adapts an in-memory asset.Vault to Wallets and Approver.
type VaultWallets struct {
	Vault *asset.Vault
}

// Credit implements Wallets.
func (w VaultWallets) Credit(_ context.Context, ref asset.Ref, who common.Address, amount *big.Int) (*big.Int, error) {
	w.Vault.Mint(ref, who, amount)
	return w.Vault.BalanceOf(ref, who), nil
}

// BalanceOf implements Wallets.
func (w VaultWallets) BalanceOf(_ context.Context, ref asset.Ref, who common.Address) (*big.Int, error) {
	return w.Vault.BalanceOf(ref, who), nil
}

// Approve implements Approver.
func (w VaultWallets) Approve(_ context.Context, ref asset.Ref, owner common.Address, amount *big.Int) error {
	w.Vault.IncreaseAllowance(ref, owner, amount)
	return nil
}

// Release implements Approver.
func (w VaultWallets) Release(_ context.Context, ref asset.Ref, owner common.Address, amount *big.Int) error {
	w.Vault.DecreaseAllowance(ref, owner, amount)
	return nil
}
