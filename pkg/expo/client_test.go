package expo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsExpoToken(t *testing.T) {
	cases := map[string]bool{
		"ExponentPushToken[abcdefghijklmnop]": true,
		"ExpoPushToken[abcdefghijklmnopqrs]":  true,
		"ExponentPushToken[abc":               false,
		"ExpoPushToken[]":                     false,
		"fcm-registration-token-abcdefghijk":  false,
		"":                                    false,
	}
	for tok, want := range cases {
		if got := IsExpoToken(tok); got != want {
			t.Errorf("IsExpoToken(%q) = %v, want %v", tok, got, want)
		}
	}
}

func TestSend(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"data":{"status":"ok","id":"ticket-1"}}`))
	}))
	defer srv.Close()

	id, err := NewClient(srv.URL, "").Send(context.Background(), Message{
		To: "ExponentPushToken[abcdefghijklmnop]", Title: "BTC Price Update", Body: "Bitcoin is currently at $1.00",
	})
	if err != nil || id != "ticket-1" {
		t.Fatalf("Send = %q, %v", id, err)
	}
	if got.Sound != "default" || got.Priority != "high" || got.Title != "BTC Price Update" {
		t.Fatalf("request body = %+v", got)
	}
}

func TestSendTicketErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"device gone", 200, `{"data":{"status":"error","message":"not a registered token","details":{"error":"DeviceNotRegistered"}}}`, ErrDeviceNotRegistered},
		{"batch error", 200, `{"data":[{"status":"error","message":"too big","details":{"error":"MessageTooBig"}}]}`, nil},
		{"http failure", 500, `oops`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "").Send(context.Background(), Message{To: "ExponentPushToken[abcdefghijklmnop]"})
			if err == nil {
				t.Fatal("expected an error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}
