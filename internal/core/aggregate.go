package core

import "github.com/shopspring/decimal"

// Aggregations over transactions and document items. All functions here are
// pure and order-independent so they can be recomputed on every snapshot.

// IncomeExpense splits a balance into its positive and negative sides.
// Expense is reported as an absolute value.
type IncomeExpense struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
}

// CurrencyTotals summarizes the items of one currency inside a document.
type CurrencyTotals struct {
	Currency Currency
	Total    decimal.Decimal
	Paid     decimal.Decimal
	Due      decimal.Decimal
}

// Balance sums all transaction amounts.
func Balance(transactions []Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range transactions {
		sum = sum.Add(t.Amount)
	}
	return sum
}

// SumIncomeExpense totals positive and negative amounts separately.
func SumIncomeExpense(transactions []Transaction) IncomeExpense {
	var ie IncomeExpense
	ie.Income = decimal.Zero
	ie.Expense = decimal.Zero
	for _, t := range transactions {
		if t.Amount.IsPositive() {
			ie.Income = ie.Income.Add(t.Amount)
		} else {
			ie.Expense = ie.Expense.Add(t.Amount.Abs())
		}
	}
	return ie
}

// FilterByCategory keeps transactions linked to the given objective.
// An empty categoryID means no filter.
func FilterByCategory(transactions []Transaction, categoryID string) []Transaction {
	if categoryID == "" {
		return transactions
	}
	out := make([]Transaction, 0, len(transactions))
	for _, t := range transactions {
		if t.CategoryID == categoryID {
			out = append(out, t)
		}
	}
	return out
}

// TotalsForCurrency sums line totals for items of one currency and derives
// the amount still due against the supplied paid amount.
func TotalsForCurrency(items []DocumentItem, currency Currency, paid decimal.Decimal) CurrencyTotals {
	total := decimal.Zero
	for _, it := range items {
		if it.Currency == currency {
			total = total.Add(it.LineTotal())
		}
	}
	return CurrencyTotals{
		Currency: currency,
		Total:    total,
		Paid:     paid,
		Due:      total.Sub(paid),
	}
}

// DocumentTotal sums all line totals regardless of currency.
func DocumentTotal(items []DocumentItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return total
}

var hundred = decimal.NewFromInt(100)

// Progress reports how far a balance has moved toward a target, clamped to
// [0,100]. The second return is false when the target is unset or not
// positive, so callers never divide by zero or render NaN.
func Progress(balance decimal.Decimal, target decimal.NullDecimal) (decimal.Decimal, bool) {
	if !target.Valid || !target.Decimal.IsPositive() {
		return decimal.Zero, false
	}
	pct := balance.Div(target.Decimal).Mul(hundred)
	if pct.IsNegative() {
		return decimal.Zero, true
	}
	if pct.GreaterThan(hundred) {
		return hundred, true
	}
	return pct, true
}
