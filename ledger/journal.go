/*
journal.go - Transaction journal

PURPOSE:
  Appends a row documenting every entry/output creation and removes the row
  when the referenced record is deleted. This is simple referential cleanup
  for reporting, not a general-purpose event log: the journal holds at most
  one row per (referenceID, type) pair, and retraction is the compensating
  action for record deletion.

  Reporting collaborators read journal rows plus, for output-typed rows,
  the allocation line detail to reconstruct the FIFO audit trail.

SEE ALSO:
  - store.go: JournalStore persistence interface
  - service.go: Records/retracts alongside every entry/output lifecycle event
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Journal documents entry/output events against a JournalStore.
type Journal struct{}

// Record appends a journal row for a newly created entry or output.
func (Journal) Record(ctx context.Context, s JournalStore, typ TransactionType, productID string, quantity decimal.Decimal, date time.Time, referenceID string, notes *string) error {
	return s.AppendTransaction(ctx, Transaction{
		ID:          uuid.NewString(),
		Type:        typ,
		ProductID:   productID,
		Quantity:    quantity,
		Date:        date,
		ReferenceID: referenceID,
		Notes:       notes,
	})
}

// Retract removes the journal row documenting referenceID.
func (Journal) Retract(ctx context.Context, s JournalStore, referenceID string, typ TransactionType) error {
	return s.RetractTransaction(ctx, referenceID, typ)
}
