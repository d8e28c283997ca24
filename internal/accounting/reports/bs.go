package reports

import (
	"sort"
	"strings"
)

// BalanceSheetAccount summarises an account for assets, liabilities, or equity.
type BalanceSheetAccount struct {
	Code    string
	Name    string
	Balance float64
}

// BalanceSheetSection contains the accounts and totals for a classification.
type BalanceSheetSection struct {
	Label    string
	Accounts []BalanceSheetAccount
	Total    float64
}

// BalanceSheet is the structured response for the balance sheet report.
type BalanceSheet struct {
	Assets                    BalanceSheetSection
	Liabilities               BalanceSheetSection
	Equity                    BalanceSheetSection
	CurrentEarnings           float64
	TotalLiabilitiesAndEquity float64
}

// Balanced reports whether assets equal liabilities plus equity.
func (bs BalanceSheet) Balanced() bool {
	return round2(bs.Assets.Total) == round2(bs.TotalLiabilitiesAndEquity)
}

// BuildBalanceSheet aggregates balances into assets, liabilities, and equity
// sections. Liabilities and equity are shown credit-positive; unclosed
// revenue and expense flow into equity as current earnings.
func BuildBalanceSheet(accounts []AccountBalance) BalanceSheet {
	assets := BalanceSheetSection{Label: "Assets"}
	liabilities := BalanceSheetSection{Label: "Liabilities"}
	equity := BalanceSheetSection{Label: "Equity"}
	var earnings float64

	for _, acc := range accounts {
		closing := acc.Closing()
		switch strings.ToUpper(acc.Type) {
		case "ASSET":
			assets.Accounts = append(assets.Accounts, BalanceSheetAccount{Code: acc.Code, Name: acc.Name, Balance: closing})
			assets.Total = round2(assets.Total + closing)
		case "LIABILITY":
			liabilities.Accounts = append(liabilities.Accounts, BalanceSheetAccount{Code: acc.Code, Name: acc.Name, Balance: -closing})
			liabilities.Total = round2(liabilities.Total - closing)
		case "EQUITY":
			equity.Accounts = append(equity.Accounts, BalanceSheetAccount{Code: acc.Code, Name: acc.Name, Balance: -closing})
			equity.Total = round2(equity.Total - closing)
		case "REVENUE", "EXPENSE":
			earnings = round2(earnings - closing)
		}
	}

	sort.Slice(assets.Accounts, func(i, j int) bool { return assets.Accounts[i].Code < assets.Accounts[j].Code })
	sort.Slice(liabilities.Accounts, func(i, j int) bool { return liabilities.Accounts[i].Code < liabilities.Accounts[j].Code })
	sort.Slice(equity.Accounts, func(i, j int) bool { return equity.Accounts[i].Code < equity.Accounts[j].Code })

	equity.Total = round2(equity.Total + earnings)
	return BalanceSheet{
		Assets:                    assets,
		Liabilities:               liabilities,
		Equity:                    equity,
		CurrentEarnings:           earnings,
		TotalLiabilitiesAndEquity: round2(liabilities.Total + equity.Total),
	}
}
