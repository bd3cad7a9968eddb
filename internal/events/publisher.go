package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/kurniawanc/pos-ledger/internal/kafka"
	"github.com/kurniawanc/pos-ledger/internal/ledger"
)

// Sink is where envelopes go. *kafka.Producer satisfies it; tests plug in
// a recorder.
type Sink interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Emit wraps an envelope around a payload and hands it to the sink.
func Emit(sink Sink, producer, eventType, correlationID, key string, payload any) {
	if sink == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
	sink.Publish(PartitionKey(key), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// UnitStatusPublisher adapts a Sink to the ledger's change-publication
// interface. This replaces direct socket pushes from the stores: the ledger
// emits, subscribers (stockwatch, UI bridges) consume.
type UnitStatusPublisher struct {
	Sink    Sink
	Service string
}

func (p *UnitStatusPublisher) UnitStatusChanged(ctx context.Context, ch ledger.StatusChange) {
	Emit(p.Sink, p.Service, EventUnitStatusChanged, ch.UnitID, ch.ProductID, UnitStatusChangedPayload{
		ProductID:    ch.ProductID,
		UnitID:       ch.UnitID,
		SerialNumber: ch.SerialNumber,
		From:         string(ch.From),
		To:           string(ch.To),
		At:           ch.At,
	})
}
