/*
valuation.go - Derived stock/cost recomputation

PURPOSE:
  Recomputes a product's two derived fields from its live lots:

    CurrentStock = sum of RemainingQuantity across all lots
    AverageCost  = sum(RemainingQuantity x UnitPrice) / CurrentStock
                   (zero when CurrentStock is zero)

  Revaluation is pure and idempotent: running it twice with no intervening
  mutation produces identical product fields. The ledger service calls it
  after every mutation that can change a lot's RemainingQuantity, inside
  the same transaction. External callers use it only for repair/backfill.

SEE ALSO:
  - service.go: Triggers revaluation after every lot-affecting mutation
  - types.go: Product's derived-field contract
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Revalue recomputes and persists productID's CurrentStock and AverageCost
// from the lot store, updating the product's UpdatedAt timestamp.
// Returns the refreshed product.
func Revalue(ctx context.Context, s Store, productID string) (Product, error) {
	product, err := s.GetProduct(ctx, productID)
	if err != nil {
		return Product{}, err
	}

	entries, err := s.ListEntriesByProduct(ctx, productID)
	if err != nil {
		return Product{}, err
	}

	stock := decimal.Zero
	value := decimal.Zero
	for _, e := range entries {
		if e.RemainingQuantity.IsPositive() {
			stock = stock.Add(e.RemainingQuantity)
			value = value.Add(e.RemainingQuantity.Mul(e.UnitPrice))
		}
	}

	product.CurrentStock = stock
	if stock.IsPositive() {
		product.AverageCost = value.Div(stock)
	} else {
		product.AverageCost = decimal.Zero
	}
	product.UpdatedAt = time.Now().UTC()

	if err := s.UpdateProduct(ctx, product); err != nil {
		return Product{}, err
	}
	return product, nil
}
