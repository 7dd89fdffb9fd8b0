package checkout

import "time"

// Status is the checkout session state. Transitions are monotonic over the
// machine below; terminal statuses are immutable.
type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusLocked     Status = "LOCKED"
	StatusAddressSet Status = "ADDRESS_SET"
	StatusPaid       Status = "PAID"
	StatusFinalized  Status = "FINALIZED"
	StatusExpired    Status = "EXPIRED"
	StatusCancelled  Status = "CANCELLED"
)

func (s Status) IsTerminal() bool {
	return s == StatusFinalized || s == StatusExpired || s == StatusCancelled
}

// HoldsLocks reports whether a session in this status may own inventory
// holds. Every other status implies zero active holds.
func (s Status) HoldsLocks() bool {
	return s == StatusLocked || s == StatusAddressSet || s == StatusPaid
}

func (s Status) String() string {
	return string(s)
}

var transitions = map[Status][]Status{
	StatusWaiting:    {StatusLocked, StatusCancelled},
	StatusLocked:     {StatusAddressSet, StatusCancelled, StatusExpired},
	StatusAddressSet: {StatusPaid, StatusCancelled, StatusExpired},
	StatusPaid:       {StatusFinalized, StatusCancelled},
}

// CanTransitionTo reports whether from→to is a legal edge of the state
// machine.
func CanTransitionTo(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Item is a snapshot copy of a cart line taken at prepare time. The session
// owns its items; later cart edits do not affect an open checkout.
type Item struct {
	SKU           string  `json:"sku"`
	SubSKU        string  `json:"sub_sku"`
	Quantity      int     `json:"quantity"`
	PriceSnapshot float64 `json:"price_snapshot"`
	TitleSnapshot string  `json:"title"`
	ImageSnapshot string  `json:"image_url"`
	StockSnapshot int     `json:"available_stock"`
}

// Session drives one checkout through the state machine. It is mutated only
// by the checkout service and becomes immutable once terminal.
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Items       []Item    `json:"items"`
	Status      Status    `json:"status"`
	TotalPrice  float64   `json:"total_price"`
	Currency    string    `json:"currency"`
	AddressID   string    `json:"address_id,omitempty"`
	OrderID     string    `json:"order_id,omitempty"`
	PaymentCode string    `json:"payment_code,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired reports whether the session is past its reservation deadline
// while still holding locks. Terminal sessions never expire further.
func (s *Session) IsExpired() bool {
	if s.Status != StatusLocked && s.Status != StatusAddressSet {
		return false
	}
	return time.Now().After(s.ExpiresAt)
}

// Clone returns a deep copy so stores can hand out sessions without aliasing.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Items = make([]Item, len(s.Items))
	copy(cp.Items, s.Items)
	return &cp
}
