/*
ordercode.go - Human-readable, chronologically sortable order codes

Codes look like "FW20260829-0003": a fixed prefix, the order date, and a
zero-padded per-day sequence. Lexicographic order equals chronological
order, which is what packing slips and the admin dashboard sort by.
*/
package fulfillment

import (
	"fmt"
	"time"

	"github.com/warp/fulfillment-engine/ledger"
)

// CodePrefix brands every order code.
const CodePrefix = "FW"

// MakeOrderCode builds the code for the n-th order of the given day.
func MakeOrderCode(day time.Time, n int) ledger.OrderCode {
	return ledger.OrderCode(fmt.Sprintf("%s%s-%04d", CodePrefix, day.Format("20060102"), n))
}
