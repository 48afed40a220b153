package domain

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans swaps in a recording provider for the duration of the test.
// No t.Parallel here; the provider is process global.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func endedSpan(t *testing.T, recorder *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, span := range recorder.Ended() {
		if span.Name() == name {
			return span
		}
	}
	t.Fatalf("no ended span named %q", name)
	return nil
}

func spanAttribute(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestServiceApplyTransitionRecordsSpan(t *testing.T) {
	recorder := recordSpans(t)

	now := time.Date(2026, 3, 6, 18, 0, 0, 0, time.UTC)
	store := newFakeStore()
	svc := NewService(store, fixedClock(now), sequentialIDs("eng-1"), sequentialCodes())

	created, err := svc.Create(context.Background(), CreateEngagementInput{
		InitiatorID: "user-a",
		RecipientID: "user-b",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.ApplyTransition(context.Background(), created.ID, TransitionInput{
		ActorID: "user-b",
		Action:  ActionAccept,
	}); err != nil {
		t.Fatalf("accept: %v", err)
	}

	span := endedSpan(t, recorder, "engagements.ApplyTransition")
	if value, ok := spanAttribute(span, "engagement.id"); !ok || value.AsString() != "eng-1" {
		t.Fatalf("engagement.id attribute = %v, %v", value, ok)
	}
	if value, ok := spanAttribute(span, "engagement.action"); !ok || value.AsString() != string(ActionAccept) {
		t.Fatalf("engagement.action attribute = %v, %v", value, ok)
	}
	if value, ok := spanAttribute(span, "engagement.status"); !ok || value.AsString() != string(StatusAccepted) {
		t.Fatalf("engagement.status attribute = %v, %v", value, ok)
	}
	if span.Status().Code == otelcodes.Error {
		t.Fatalf("span status = %+v, want non-error", span.Status())
	}
}

func TestServiceApplyTransitionSpanReportsFailure(t *testing.T) {
	recorder := recordSpans(t)

	now := time.Date(2026, 3, 6, 18, 0, 0, 0, time.UTC)
	store := newFakeStore()
	svc := NewService(store, fixedClock(now), sequentialIDs("eng-1"), sequentialCodes())

	created, err := svc.Create(context.Background(), CreateEngagementInput{
		InitiatorID: "user-a",
		RecipientID: "user-b",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.ApplyTransition(context.Background(), created.ID, TransitionInput{
		ActorID: "user-b",
		Action:  Action("elope"),
	}); err == nil {
		t.Fatal("unknown action should fail")
	}

	span := endedSpan(t, recorder, "engagements.ApplyTransition")
	if span.Status().Code != otelcodes.Error {
		t.Fatalf("span status = %+v, want error", span.Status())
	}
	if len(span.Events()) == 0 {
		t.Fatal("span should record the error event")
	}
}
