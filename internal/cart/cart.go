package cart

import "time"

// Item is a cart line. Price, title, image and stock are snapshots taken when
// the item was added; the stock snapshot is advisory only and never enforced
// by the cart itself.
type Item struct {
	SKU           string    `bson:"sku" json:"sku"`
	SubSKU        string    `bson:"sub_sku" json:"sub_sku"`
	Quantity      int       `bson:"quantity" json:"quantity"`
	PriceSnapshot float64   `bson:"price_snapshot" json:"price_snapshot"`
	TitleSnapshot string    `bson:"title" json:"title"`
	ImageSnapshot string    `bson:"image_url" json:"image_url"`
	StockSnapshot int       `bson:"available_stock" json:"available_stock"`
	AddedAt       time.Time `bson:"added_at" json:"added_at"`
}

// Cart holds the ordered line items for one identity. Items are unique by SKU.
type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"-"`
	OwnerKey  string     `bson:"owner_key" json:"owner_key"`
	Items     []Item     `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
	ExpiresAt *time.Time `bson:"expires_at,omitempty" json:"-"`
}

// FindItem returns the index of the item with the given SKU, or -1.
func (c *Cart) FindItem(sku string) int {
	for i := range c.Items {
		if c.Items[i].SKU == sku {
			return i
		}
	}
	return -1
}

// RemoveItem drops the item with the given SKU if present.
func (c *Cart) RemoveItem(sku string) {
	if i := c.FindItem(sku); i >= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
}

// TotalPrice sums price snapshot times quantity over all items.
func (c *Cart) TotalPrice() float64 {
	var total float64
	for _, item := range c.Items {
		total += item.PriceSnapshot * float64(item.Quantity)
	}
	return total
}

// Clone returns a deep copy, so stores can hand out carts without aliasing
// their internal state.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = make([]Item, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}
