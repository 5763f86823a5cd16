package obs

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ignatzorin/creator-escrow"

// StartSpan открывает span под общим трейсером сервиса.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End закрывает span, помечая его ошибкой при err != nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func BookingID(id uuid.UUID) attribute.KeyValue {
	return attribute.String("escrow.booking_id", id.String())
}

func PaymentID(id uuid.UUID) attribute.KeyValue {
	return attribute.String("escrow.payment_id", id.String())
}

func DisputeID(id uuid.UUID) attribute.KeyValue {
	return attribute.String("escrow.dispute_id", id.String())
}

func ObligationID(id uuid.UUID) attribute.KeyValue {
	return attribute.String("escrow.obligation_id", id.String())
}

func ActorID(id uuid.UUID) attribute.KeyValue {
	return attribute.String("escrow.actor_id", id.String())
}
