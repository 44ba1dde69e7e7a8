package events

import (
	"context"
	"reflect"
	"testing"

	"github.com/Aamir1055/BrokerEye-sub005/pkg/logger"
)

func TestLocalBus_DeliversInSubscriptionOrder(t *testing.T) {
	bus := NewLocalBus(logger.Discard())

	var got []string
	bus.Subscribe(Login, func(ctx context.Context, ev Event) { got = append(got, "first") })
	bus.Subscribe(Login, func(ctx context.Context, ev Event) { got = append(got, "second") })
	bus.Subscribe(Logout, func(ctx context.Context, ev Event) { got = append(got, "logout") })

	bus.Publish(context.Background(), Event{Name: Login})

	if want := []string{"first", "second"}; !reflect.DeepEqual(got, want) {
		t.Errorf("handlers ran %v, want %v", got, want)
	}
}

func TestLocalBus_Unsubscribe(t *testing.T) {
	bus := NewLocalBus(logger.Discard())

	calls := 0
	unsubscribe := bus.Subscribe(AppRefresh, func(ctx context.Context, ev Event) { calls++ })

	bus.Publish(context.Background(), Event{Name: AppRefresh})
	unsubscribe()
	unsubscribe()
	bus.Publish(context.Background(), Event{Name: AppRefresh})

	if calls != 1 {
		t.Errorf("handler called %d times, want 1", calls)
	}
}

func TestLocalBus_RecoversHandlerPanic(t *testing.T) {
	bus := NewLocalBus(logger.Discard())

	reached := false
	bus.Subscribe(Logout, func(ctx context.Context, ev Event) { panic("boom") })
	bus.Subscribe(Logout, func(ctx context.Context, ev Event) { reached = true })

	bus.Publish(context.Background(), Event{Name: Logout, Payload: LogoutPayload{Reason: "test"}})

	if !reached {
		t.Error("handler after a panicking one was not called")
	}
}

func TestLocalBus_SetsTimestamp(t *testing.T) {
	bus := NewLocalBus(logger.Discard())

	var got Event
	bus.Subscribe(TokenRefreshed, func(ctx context.Context, ev Event) { got = ev })
	bus.Publish(context.Background(), Event{Name: TokenRefreshed})

	if got.At.IsZero() {
		t.Error("event timestamp not set")
	}
}

func TestDecodePayload(t *testing.T) {
	payload, err := DecodePayload(Logout, []byte(`{"reason":"refresh rejected","login_url":"/login"}`))
	if err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	want := LogoutPayload{Reason: "refresh rejected", LoginURL: "/login"}
	if payload != want {
		t.Errorf("DecodePayload() = %#v, want %#v", payload, want)
	}

	if _, err := DecodePayload("app:unknown", nil); err == nil {
		t.Error("DecodePayload() error = nil for unknown event")
	}
}
