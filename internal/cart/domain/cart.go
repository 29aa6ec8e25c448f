package domain

// LineItem is one cart entry. ID identifies the line and is stable
// across quantity changes; ProductID identifies the product it holds.
// Prices are in currency minor units.
type LineItem struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Image     string `json:"image,omitempty"`
	Category  string `json:"category,omitempty"`
}

// Product is the subset of catalog data needed to create a line.
type Product struct {
	ID        string
	Name      string
	UnitPrice int64
	Image     string
	Category  string
}

// Snapshot is the full cart contents at a point in time. Totals are
// always derived from the lines, never stored.
type Snapshot struct {
	Items []LineItem `json:"items"`
}

func (s Snapshot) TotalItems() int {
	n := 0
	for _, it := range s.Items {
		n += it.Quantity
	}
	return n
}

func (s Snapshot) TotalPrice() int64 {
	var sum int64
	for _, it := range s.Items {
		sum += it.UnitPrice * int64(it.Quantity)
	}
	return sum
}

func (s Snapshot) Empty() bool {
	return len(s.Items) == 0
}

// Clone returns a deep copy, so an optimistic mutation can be rolled
// back without aliasing the prior state.
func (s Snapshot) Clone() Snapshot {
	items := make([]LineItem, len(s.Items))
	copy(items, s.Items)
	return Snapshot{Items: items}
}

// Merge adds quantity of product to the cart. An existing line for the
// same product is incremented; otherwise a new line is appended with
// lineID as its identity.
func (s Snapshot) Merge(lineID string, p Product, quantity int) Snapshot {
	if quantity < 1 {
		return s.Clone()
	}
	out := s.Clone()
	for i := range out.Items {
		if out.Items[i].ProductID == p.ID {
			out.Items[i].Quantity += quantity
			return out
		}
	}
	out.Items = append(out.Items, LineItem{
		ID:        lineID,
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.UnitPrice,
		Quantity:  quantity,
		Image:     p.Image,
		Category:  p.Category,
	})
	return out
}

// SetQuantity replaces the quantity of a line. Zero or negative
// removes the line; a line is never retained at quantity zero.
func (s Snapshot) SetQuantity(lineID string, quantity int) Snapshot {
	if quantity <= 0 {
		return s.Remove(lineID)
	}
	out := s.Clone()
	for i := range out.Items {
		if out.Items[i].ID == lineID {
			out.Items[i].Quantity = quantity
			break
		}
	}
	return out
}

// Remove deletes a line. Removing an unknown line is a no-op.
func (s Snapshot) Remove(lineID string) Snapshot {
	out := Snapshot{Items: make([]LineItem, 0, len(s.Items))}
	for _, it := range s.Items {
		if it.ID != lineID {
			out.Items = append(out.Items, it)
		}
	}
	return out
}

// Line returns the line with the given id, if present.
func (s Snapshot) Line(lineID string) (LineItem, bool) {
	for _, it := range s.Items {
		if it.ID == lineID {
			return it, true
		}
	}
	return LineItem{}, false
}
