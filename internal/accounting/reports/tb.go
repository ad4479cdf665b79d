package reports

import (
	"sort"

	"github.com/ledgersur/ledgersur/internal/accounting/accounts"
)

// AccountBalance models a general ledger account with aggregated balances.
// Opening is sign-adjusted per the account's normal balance side.
type AccountBalance struct {
	Code    string
	Name    string
	Type    accounts.AccountType
	Level   int
	Opening float64
	Debit   float64
	Credit  float64
}

// Closing computes the closing balance for the account, applying the
// normal-balance rule: debit-normal accounts grow with debits, credit-normal
// accounts grow with credits.
func (a AccountBalance) Closing() float64 {
	acc := accounts.Account{Type: a.Type}
	if acc.DebitNormal() {
		return a.Opening + a.Debit - a.Credit
	}
	return a.Opening + a.Credit - a.Debit
}

// IsZero reports whether the row carries no information for the report.
func (a AccountBalance) IsZero() bool {
	return a.Opening == 0 && a.Debit == 0 && a.Credit == 0 && a.Closing() == 0
}

// TrialBalanceRow is one rendered line of the report.
type TrialBalanceRow struct {
	Code    string
	Name    string
	Type    accounts.AccountType
	Level   int
	Opening float64
	Debit   float64
	Credit  float64
	Closing float64
}

// TrialBalance is the final structure returned by the report endpoint.
// TotalClosingDebit and TotalClosingCredit split the closings by normal
// balance side; on a balanced ledger with balanced openings both sides match.
type TrialBalance struct {
	Rows               []TrialBalanceRow
	TotalOpening       float64
	TotalDebit         float64
	TotalCredit        float64
	TotalClosing       float64
	TotalClosingDebit  float64
	TotalClosingCredit float64
}

// BuildTrialBalance converts raw balances into a dense, code-ordered report.
// Accounts with zero opening, movement and closing are omitted; an optional
// level filter keeps only accounts at or above that depth in the chart.
func BuildTrialBalance(balances []AccountBalance, levelFilter int) TrialBalance {
	result := TrialBalance{}
	for _, bal := range balances {
		if bal.IsZero() {
			continue
		}
		if levelFilter > 0 && bal.Level > levelFilter {
			continue
		}
		row := TrialBalanceRow{
			Code:    bal.Code,
			Name:    bal.Name,
			Type:    bal.Type,
			Level:   bal.Level,
			Opening: bal.Opening,
			Debit:   bal.Debit,
			Credit:  bal.Credit,
			Closing: bal.Closing(),
		}
		result.Rows = append(result.Rows, row)
		result.TotalOpening += row.Opening
		result.TotalDebit += row.Debit
		result.TotalCredit += row.Credit
		result.TotalClosing += row.Closing
		if (accounts.Account{Type: row.Type}).DebitNormal() {
			result.TotalClosingDebit += row.Closing
		} else {
			result.TotalClosingCredit += row.Closing
		}
	}
	sort.Slice(result.Rows, func(i, j int) bool {
		return result.Rows[i].Code < result.Rows[j].Code
	})
	return result
}
