package service

import (
	"context"
	"testing"
	"time"
)

func TestFCMMessageCollapsesPerCoin(t *testing.T) {
	msg := fcmMessage("tok", "SOL Price Update", "Solana is currently at $142.50", map[string]string{"coin_symbol": "SOL"})
	if msg.Token != "tok" || msg.Notification.Title != "SOL Price Update" {
		t.Fatalf("message = %+v", msg)
	}
	if msg.Android.CollapseKey != "price-update-sol" || msg.Android.Notification.Tag != "price-update-sol" {
		t.Fatalf("android collapse = %q / %q", msg.Android.CollapseKey, msg.Android.Notification.Tag)
	}
	if msg.APNS.Headers["apns-collapse-id"] != "price-update-sol" {
		t.Fatalf("apns headers = %v", msg.APNS.Headers)
	}
	if msg.Android.TTL == nil || *msg.Android.TTL != time.Hour {
		t.Fatalf("ttl = %v", msg.Android.TTL)
	}

	if got := fcmMessage("tok", "t", "b", nil).Android.CollapseKey; got != "price-update" {
		t.Fatalf("collapse without coin = %q", got)
	}
}

func TestFCMServiceUnconfigured(t *testing.T) {
	svc, err := NewFCMService(context.Background(), "")
	if svc != nil || err != nil {
		t.Fatalf("unconfigured = %v, %v", svc, err)
	}
	if err := svc.Send(context.Background(), "tok", "t", "b", nil); err != nil {
		t.Fatalf("nil service send: %v", err)
	}
}
