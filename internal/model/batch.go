package model

import "strings"

// Batch is the caller-owned collection of invoices an operation works on.
// It is not safe for concurrent use.
type Batch struct {
	invoices []*Invoice
}

// NewBatch creates a batch holding the given invoices
func NewBatch(invoices ...*Invoice) *Batch {
	b := &Batch{invoices: make([]*Invoice, 0, len(invoices))}
	for _, inv := range invoices {
		b.Add(inv)
	}
	return b
}

// Add appends an invoice; nil is ignored
func (b *Batch) Add(inv *Invoice) {
	if inv != nil {
		b.invoices = append(b.invoices, inv)
	}
}

// Len returns the number of invoices
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.invoices)
}

// Items returns the invoices in insertion order
func (b *Batch) Items() []*Invoice {
	if b == nil {
		return nil
	}
	return b.invoices
}

// IndexByRps maps RPS number to the first invoice carrying it
func (b *Batch) IndexByRps() map[string]*Invoice {
	idx := make(map[string]*Invoice, b.Len())
	for _, inv := range b.Items() {
		if _, ok := idx[inv.Rps.Number]; !ok {
			idx[inv.Rps.Number] = inv
		}
	}
	return idx
}

// FindByNFSe returns the first invoice whose trimmed NFSe number equals number
func (b *Batch) FindByNFSe(number string) *Invoice {
	for _, inv := range b.Items() {
		if strings.TrimSpace(inv.NFSe.Number) == number {
			return inv
		}
	}
	return nil
}

// SetLotNumber stamps every invoice with the lot it was sent in
func (b *Batch) SetLotNumber(lot int) {
	for _, inv := range b.Items() {
		inv.LotNumber = lot
	}
}
