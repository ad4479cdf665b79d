package accounts

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ledgersur/ledgersur/internal/accounting/shared"
)

type fakeRepo struct {
	accounts  []Account
	listCalls int
	nextID    int64
}

func (f *fakeRepo) List(ctx context.Context, empresaID int64) ([]Account, error) {
	f.listCalls++
	var out []Account
	for _, a := range f.accounts {
		if a.EmpresaID == empresaID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) Create(ctx context.Context, account Account) (Account, error) {
	f.nextID++
	account.ID = f.nextID
	f.accounts = append(f.accounts, account)
	return account, nil
}

func seededRepo() *fakeRepo {
	repo := &fakeRepo{}
	for i, seed := range []struct {
		code string
		name string
		typ  AccountType
	}{
		{CodeCajaYBancos, "Caja y bancos", AccountTypeActivo},
		{CodeDeudoresPorVentas, "Deudores por ventas", AccountTypeActivo},
		{CodeVentas, "Ventas", AccountTypeIngreso},
	} {
		repo.accounts = append(repo.accounts, Account{
			ID: int64(i + 1), EmpresaID: 1, Code: seed.code, Name: seed.name,
			Type: seed.typ, Level: 3, IsActive: true,
		})
	}
	repo.nextID = int64(len(repo.accounts))
	return repo
}

func newCachedService(t *testing.T, repo Repository) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewService(repo, client), mr
}

func TestListCachesChartPerEmpresa(t *testing.T) {
	repo := seededRepo()
	svc, mr := newCachedService(t, repo)

	first, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.Equal(t, 1, repo.listCalls)
	require.True(t, mr.Exists("coa:1"))

	// Second read is served from the cache.
	second, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, repo.listCalls)
}

func TestCreateInvalidatesCache(t *testing.T) {
	repo := seededRepo()
	svc, mr := newCachedService(t, repo)

	_, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, mr.Exists("coa:1"))

	created, err := svc.Create(context.Background(), Account{
		EmpresaID: 1, Code: "5.1.03", Name: "Servicios contratados", Type: AccountTypeGasto, IsActive: true,
	})
	require.NoError(t, err)
	require.Equal(t, 3, created.Level)
	require.False(t, mr.Exists("coa:1"))

	list, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 4)
}

func TestCreateValidatesInput(t *testing.T) {
	repo := seededRepo()
	svc, _ := newCachedService(t, repo)

	_, err := svc.Create(context.Background(), Account{Code: "1.1.09", Name: "x", Type: AccountTypeActivo})
	require.Error(t, err)

	_, err = svc.Create(context.Background(), Account{EmpresaID: 1, Name: "x", Type: AccountTypeActivo})
	require.Error(t, err)

	_, err = svc.Create(context.Background(), Account{EmpresaID: 1, Code: "1.1.09", Name: "x", Type: AccountType("OTRO")})
	require.Error(t, err)
}

func TestResolveFailsHardOnUnknownOrInactive(t *testing.T) {
	repo := seededRepo()
	repo.accounts = append(repo.accounts, Account{
		ID: 9, EmpresaID: 1, Code: "1.1.99", Name: "Cuenta vieja", Type: AccountTypeActivo, Level: 3, IsActive: false,
	})
	svc, _ := newCachedService(t, repo)

	resolved, err := svc.Resolve(context.Background(), 1, []string{CodeCajaYBancos, CodeVentas})
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	require.Equal(t, int64(1), resolved[CodeCajaYBancos].ID)

	_, err = svc.Resolve(context.Background(), 1, []string{"9.9.99"})
	require.ErrorIs(t, err, shared.ErrAccountNotFound)

	_, err = svc.Resolve(context.Background(), 1, []string{"1.1.99"})
	require.ErrorIs(t, err, shared.ErrAccountInactive)
}

func TestBalanceBySide(t *testing.T) {
	asset := Account{Type: AccountTypeActivo}
	require.True(t, asset.DebitNormal())
	require.InDelta(t, 70, asset.Balance(100, 30), 0.001)

	liability := Account{Type: AccountTypePasivo}
	require.False(t, liability.DebitNormal())
	require.InDelta(t, 70, liability.Balance(30, 100), 0.001)
}
