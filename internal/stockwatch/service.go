package stockwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/kurniawanc/pos-ledger/internal/events"
	kafkax "github.com/kurniawanc/pos-ledger/internal/kafka"
	"github.com/kurniawanc/pos-ledger/internal/ledger"
	"github.com/kurniawanc/pos-ledger/internal/redisx"
)

// Service consumes unit status events and keeps per-product sales counters
// current, alerting when stock falls to a product's low-stock threshold.
// It is the first subscriber of the ledger's event stream, standing in for
// the UI clients that used to get socket pushes.
type Service struct {
	Ledger      ledger.Store
	Redis       *redis.Client
	Alerts      events.Sink // publishes pos.stock.low
	ServiceName string
}

// HandleUnitStatus is installed as the consumer handler for
// pos.unit.status.
func (s *Service) HandleUnitStatus(ctx context.Context, m kafkago.Message) error {
	var env events.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != events.EventUnitStatusChanged {
		return nil
	}

	// dedup by event_id
	dkey := fmt.Sprintf(redisx.KeyDedup, "stockwatch", env.EventID)
	exists, _ := redisx.Exists(ctx, s.Redis, dkey)
	if exists {
		return nil
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()

	p, err := kafkax.UnwrapPayload[events.UnitStatusChangedPayload](env.Payload)
	if err != nil {
		return err
	}

	if ledger.Status(p.To) == ledger.StatusSold {
		if err := s.Ledger.IncrementSales(ctx, p.ProductID, 1); err != nil {
			return err
		}
	}

	// stock leaves the pool on reserve, comes back on release/refund
	switch ledger.Status(p.To) {
	case ledger.StatusReserved:
		return s.checkLowStock(ctx, p.ProductID)
	case ledger.StatusInStock:
		// stock recovered; allow a future alert again
		_ = s.Redis.Del(ctx, fmt.Sprintf(redisx.KeyLowStockAlerted, p.ProductID)).Err()
	}
	return nil
}

func (s *Service) checkLowStock(ctx context.Context, productID string) error {
	product, err := s.Ledger.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	inStock, err := s.Ledger.CountByStatus(ctx, productID, ledger.StatusInStock)
	if err != nil {
		return err
	}
	if inStock > product.LowStockThreshold {
		return nil
	}

	// one alert per low-stock episode
	akey := fmt.Sprintf(redisx.KeyLowStockAlerted, productID)
	alerted, _ := redisx.Exists(ctx, s.Redis, akey)
	if alerted {
		return nil
	}
	_ = s.Redis.Set(ctx, akey, "1", redisx.TTLLowStockAlerted).Err()

	log.Printf("low stock: product=%s name=%q in_stock=%d threshold=%d",
		productID, product.Name, inStock, product.LowStockThreshold)
	events.Emit(s.Alerts, s.ServiceName, events.EventStockLow, productID, productID, events.StockLowPayload{
		ProductID: productID,
		Name:      product.Name,
		InStock:   inStock,
		Threshold: product.LowStockThreshold,
	})
	return nil
}
