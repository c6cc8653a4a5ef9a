package invoices

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/extrabeam/backend/internal/models"
)

// MaxVATRate bounds the VAT percentage.
const MaxVATRate = 100

// MinutesOf sums the billable minutes of the slots. Partial minutes are dropped per slot.
func MinutesOf(slots []models.Slot) int {
	total := 0
	for _, s := range slots {
		total += int(s.Duration() / time.Minute)
	}
	return total
}

// Amounts returns the pre-tax and tax-inclusive totals in cents, rounded half up.
func Amounts(minutes int, hourlyRateCents int64, vatRate int) (ht, ttc int64) {
	ht = (int64(minutes)*hourlyRateCents + 30) / 60
	return ht, WithVAT(ht, vatRate)
}

// WithVAT applies a VAT percentage to a pre-tax amount, rounded half up.
func WithVAT(ht int64, vatRate int) int64 {
	return (ht*int64(100+vatRate) + 50) / 100
}

// Recalculate refreshes the invoice totals from its minutes, rate and VAT. Invoices without a
// rate keep their pre-tax amount.
func Recalculate(inv *models.Invoice) {
	if inv.HourlyRateCents > 0 {
		inv.AmountHTCents, inv.AmountTTCCents = Amounts(inv.Minutes, inv.HourlyRateCents, inv.VATRate)
		return
	}
	inv.AmountTTCCents = WithVAT(inv.AmountHTCents, inv.VATRate)
}

// NumberPrefix is the prefix shared by a company's invoices of the given year.
func NumberPrefix(year int) string {
	return fmt.Sprintf("F-%04d-", year)
}

// FormatNumber returns F-YYYY-NNNN.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("%s%04d", NumberPrefix(year), seq)
}

// NextNumber returns the number following last within the year. An empty or foreign last
// starts the year's sequence at 1.
func NextNumber(last string, year int) string {
	prefix := NumberPrefix(year)
	if !strings.HasPrefix(last, prefix) {
		return FormatNumber(year, 1)
	}
	seq, err := strconv.Atoi(strings.TrimPrefix(last, prefix))
	if err != nil || seq < 0 {
		return FormatNumber(year, 1)
	}
	return FormatNumber(year, seq+1)
}
