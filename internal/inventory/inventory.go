package inventory

import "time"

// LineStatus is the per-line outcome of a bulk lock attempt.
type LineStatus string

const (
	LineLocked            LineStatus = "LOCKED"
	LineInsufficientStock LineStatus = "INSUFFICIENT_STOCK"
	LineNotFound          LineStatus = "NOT_FOUND"
)

// LockRequest asks to hold Quantity units of a variant for a checkout session.
type LockRequest struct {
	SKU      string `json:"sku"`
	SubSKU   string `json:"sub_sku"`
	Quantity int    `json:"quantity"`
}

// LineResult reports the outcome for a single requested line. Available is
// the available-to-sell quantity observed at lock time and is always set for
// INSUFFICIENT_STOCK lines so callers can show how short the line is.
type LineResult struct {
	SKU       string     `json:"sku"`
	SubSKU    string     `json:"sub_sku"`
	Requested int        `json:"requested"`
	Status    LineStatus `json:"status"`
	Available int        `json:"available"`
}

// LockSummary is the result of a BulkLock call. The policy is all-or-nothing:
// when AllLocked is false no stock is held at all, and LOCKED lines merely
// indicate which lines would have succeeded.
type LockSummary struct {
	SessionID string       `json:"session_id"`
	AllLocked bool         `json:"all_locked"`
	Lines     []LineResult `json:"lines"`
}

// Hold is a time-boxed reservation against available-to-sell stock. It never
// touches on-hand stock; only Confirm does.
type Hold struct {
	SKU       string
	SubSKU    string
	Quantity  int
	SessionID string
	ExpiresAt time.Time
}

func (h *Hold) Expired(now time.Time) bool {
	return now.After(h.ExpiresAt)
}

// StockInfo is a point-in-time view of one variant's stock.
type StockInfo struct {
	SubSKU string `json:"sub_sku"`
	OnHand int    `json:"on_hand"`
	Held   int    `json:"held"`
}

// Available is on-hand minus active holds.
func (s StockInfo) Available() int {
	return s.OnHand - s.Held
}
