package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeActivo     AccountType = "ACTIVO"
	AccountTypePasivo     AccountType = "PASIVO"
	AccountTypePatrimonio AccountType = "PATRIMONIO"
	AccountTypeIngreso    AccountType = "INGRESO"
	AccountTypeGasto      AccountType = "GASTO"
)

// Account models a chart of accounts node scoped to an empresa.
type Account struct {
	ID         int64
	EmpresaID  int64
	Code       string
	Name       string
	Type       AccountType
	Level      int
	ParentCode *string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DebitNormal reports whether the account increases on the debit side.
// ACTIVO and GASTO are debit-normal; PASIVO, PATRIMONIO and INGRESO are
// credit-normal.
func (a Account) DebitNormal() bool {
	return a.Type == AccountTypeActivo || a.Type == AccountTypeGasto
}

// Balance applies the normal-balance sign rule to raw debit/credit sums.
func (a Account) Balance(debit, credit float64) float64 {
	if a.DebitNormal() {
		return debit - credit
	}
	return credit - debit
}

// Fixed chart codes referenced by posting templates. The chart is seeded per
// empresa; these codes must exist before any automated posting runs.
const (
	CodeCajaYBancos          = "1.1.01"
	CodeBancoCuentaCorriente = "1.1.02"
	CodeDeudoresPorVentas    = "1.1.03"
	CodeIVACreditoFiscal     = "1.1.04"
	CodeProveedores          = "2.1.01"
	CodeComisionesPorPagar   = "2.1.02"
	CodeIVAPorPagar          = "2.1.03"
	CodeVentas               = "4.1.01"
	CodeIngresosComisiones   = "4.1.02"
	CodeIngresosRetenciones  = "4.1.03"
	CodeGastosComisiones     = "5.1.01"
	CodeGastosGenerales      = "5.1.02"
)
