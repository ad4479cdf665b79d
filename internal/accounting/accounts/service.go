package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgersur/ledgersur/internal/accounting/shared"
	internalShared "github.com/ledgersur/ledgersur/internal/shared"
)

const chartCacheTTL = 5 * time.Minute

// Service exposes chart-of-accounts operations with a Redis read-through
// cache. The posting path resolves account codes on every entry, so the
// per-empresa chart is cached between writes.
type Service struct {
	repo  Repository
	cache *redis.Client
}

func NewService(repo Repository, cache *redis.Client) *Service {
	return &Service{repo: repo, cache: cache}
}

func chartCacheKey(empresaID int64) string {
	return fmt.Sprintf("coa:%d", empresaID)
}

// List returns the chart of accounts for an empresa, cache-first.
func (s *Service) List(ctx context.Context, empresaID int64) ([]Account, error) {
	if empresaID == 0 {
		return nil, internalShared.ErrEmpresaRequired
	}
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, chartCacheKey(empresaID)).Bytes()
		if err == nil {
			var cached []Account
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				return cached, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			// Cache trouble never blocks reads; fall through to the database.
		}
	}
	list, err := s.repo.List(ctx, empresaID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if raw, err := json.Marshal(list); err == nil {
			_ = s.cache.Set(ctx, chartCacheKey(empresaID), raw, chartCacheTTL).Err()
		}
	}
	return list, nil
}

// Create inserts a new account and invalidates the cached chart.
func (s *Service) Create(ctx context.Context, account Account) (Account, error) {
	if account.EmpresaID == 0 {
		return Account{}, internalShared.ErrEmpresaRequired
	}
	account.Code = strings.TrimSpace(account.Code)
	if account.Code == "" {
		return Account{}, errors.New("accounts: code required")
	}
	if strings.TrimSpace(account.Name) == "" {
		return Account{}, errors.New("accounts: name required")
	}
	switch account.Type {
	case AccountTypeActivo, AccountTypePasivo, AccountTypePatrimonio, AccountTypeIngreso, AccountTypeGasto:
	default:
		return Account{}, fmt.Errorf("accounts: unknown type %q", account.Type)
	}
	if account.Level == 0 {
		account.Level = strings.Count(account.Code, ".") + 1
	}
	created, err := s.repo.Create(ctx, account)
	if err != nil {
		return Account{}, err
	}
	if s.cache != nil {
		_ = s.cache.Del(ctx, chartCacheKey(account.EmpresaID)).Err()
	}
	return created, nil
}

// Resolve maps account codes to accounts for the empresa. Unknown codes are
// a hard failure; the caller never posts against a pseudo-id.
func (s *Service) Resolve(ctx context.Context, empresaID int64, codes []string) (map[string]Account, error) {
	list, err := s.List(ctx, empresaID)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]Account, len(list))
	for _, acc := range list {
		byCode[acc.Code] = acc
	}
	resolved := make(map[string]Account, len(codes))
	for _, code := range codes {
		acc, ok := byCode[code]
		if !ok {
			return nil, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, code)
		}
		if !acc.IsActive {
			return nil, fmt.Errorf("%w: %s", shared.ErrAccountInactive, code)
		}
		resolved[code] = acc
	}
	return resolved, nil
}
