package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// CostOrder selects which end of the layer list an outbound movement consumes.
type CostOrder string

const (
	// CostFIFO consumes the oldest receipts first. Default.
	CostFIFO CostOrder = "FIFO"
	// CostLIFO consumes the newest receipts first.
	CostLIFO CostOrder = "LIFO"
)

func (o CostOrder) orDefault() CostOrder {
	if o == CostLIFO {
		return CostLIFO
	}
	return CostFIFO
}

// consumeLayers walks the open valuation layers for (product, location) in
// receipt order and allocates quantity against them, decrementing
// remaining_qty as it goes. The rows are locked by the caller's transaction.
//
// When the layers run out before quantity is satisfied the remainder is
// costed at zero rather than blocking the sale. The shortfall is reported on
// the Consumption and logged by the caller; the availability guard on the
// balance row normally prevents this from happening at all.
func consumeLayers(ctx context.Context, tx TxRepository, tenantID, productID, locationID, quantity int64, order CostOrder) (Consumption, error) {
	if quantity <= 0 {
		return Consumption{}, ErrInvalidQuantity
	}
	layers, err := tx.GetOpenLayersForUpdate(ctx, tenantID, productID, locationID, order.orDefault())
	if err != nil {
		return Consumption{}, fmt.Errorf("load layers: %w", err)
	}

	outstanding := quantity
	total := decimal.Zero
	var consumed []ConsumedLayer
	for _, layer := range layers {
		if outstanding == 0 {
			break
		}
		take := layer.RemainingQty
		if take > outstanding {
			take = outstanding
		}
		if take == 0 {
			continue
		}
		if err := tx.SetLayerRemaining(ctx, layer.ID, layer.RemainingQty-take); err != nil {
			return Consumption{}, fmt.Errorf("decrement layer %s: %w", layer.ID, err)
		}
		total = total.Add(shared.MulQty(layer.UnitCost, take))
		consumed = append(consumed, ConsumedLayer{LayerID: layer.ID, Quantity: take, UnitCost: layer.UnitCost})
		outstanding -= take
	}

	c := Consumption{
		UnitCost:  shared.WeightedUnitCost(total, quantity),
		TotalCost: shared.Round4(total),
		Consumed:  consumed,
		Shortfall: outstanding,
	}
	return c, nil
}

// receiveLayer appends a fresh layer for an inbound movement. Every IN
// movement creates exactly one layer with remaining = original quantity.
func receiveLayer(ctx context.Context, tx TxRepository, m Movement, now time.Time) error {
	layer := ValuationLayer{
		ID:               uuid.New(),
		TenantID:         m.TenantID,
		ProductID:        m.ProductID,
		LocationID:       m.LocationID,
		UnitCost:         m.UnitCost,
		OriginalQty:      m.Quantity,
		RemainingQty:     m.Quantity,
		SourceMovementID: m.ID,
		CreatedAt:        now,
	}
	if err := tx.InsertLayer(ctx, layer); err != nil {
		return fmt.Errorf("insert layer: %w", err)
	}
	return nil
}

// logShortfall flags the zero-cost policy kicking in. Undercosting is a
// business risk that must stay visible in the logs.
func logShortfall(logger *slog.Logger, c Consumption, tenantID, productID, locationID int64) {
	if logger == nil || c.Shortfall == 0 {
		return
	}
	logger.Warn("valuation layers exhausted, remainder costed at zero",
		slog.Int64("tenant_id", tenantID),
		slog.Int64("product_id", productID),
		slog.Int64("location_id", locationID),
		slog.Int64("shortfall_qty", c.Shortfall))
}
