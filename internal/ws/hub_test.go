package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cryptopulse/config"
	"cryptopulse/internal/auth"
	"cryptopulse/internal/models"
)

func TestPublishDeliveryReachesOnlyOwner(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a1 := hub.Register(42)
	a2 := hub.Register(42)
	b := hub.Register(7)

	hub.PublishDelivery(&models.DeliveryLog{ID: 1, UserID: 42, CoinSymbol: "SOL", Status: models.DeliveryStatusSent})

	for i, c := range []*Client{a1, a2} {
		select {
		case msg := <-c.Send:
			if !strings.Contains(string(msg), `"type":"delivery_logged"`) || !strings.Contains(string(msg), `"symbol":"SOL"`) {
				t.Fatalf("client %d got %s", i, msg)
			}
		default:
			t.Fatalf("client %d got nothing", i)
		}
	}
	select {
	case msg := <-b.Send:
		t.Fatalf("other user received %s", msg)
	default:
	}

	a1.Close()
	a1.Close()
	if n := hub.ClientCount(); n != 2 {
		t.Fatalf("clients = %d, want 2", n)
	}
}

func TestPublishDeliveryDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := hub.Register(42)
	for i := 0; i < sendBuffer+5; i++ {
		hub.PublishDelivery(&models.DeliveryLog{UserID: 42})
	}
	if len(c.Send) != sendBuffer {
		t.Fatalf("buffered %d, want %d", len(c.Send), sendBuffer)
	}
}

func TestServeLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.JWTConfig{AccessSecret: "s3cret", AccessExpiry: time.Minute}
	hub := NewHub(zerolog.Nop())
	r := gin.New()
	r.GET("/ws/logs", ServeLogs(cfg, hub))
	srv := httptest.NewServer(r)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/logs"

	_, resp, err := websocket.DefaultDialer.Dial(base+"?token=bad", nil)
	if err == nil {
		t.Fatal("dial with a bad token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token response = %v", resp)
	}

	tok, _ := auth.GenerateAccessToken(cfg, 42, "")
	conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+tok, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.PublishDelivery(&models.DeliveryLog{
		ID: 9, UserID: 42, CoinID: 7, CoinName: "Solana", CoinSymbol: "SOL", CoinColor: "#E4DCFC",
		Price: decimal.RequireFromString("142.5"), Status: models.DeliveryStatusSent,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev struct {
		Type  string `json:"type"`
		Entry struct {
			ID     uint   `json:"id"`
			Status string `json:"status"`
			Coin   struct {
				Name  string `json:"name"`
				Color string `json:"color"`
			} `json:"coin"`
		} `json:"entry"`
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if ev.Type != EventDeliveryLogged || ev.Entry.ID != 9 || ev.Entry.Coin.Name != "Solana" || ev.Entry.Coin.Color != "#E4DCFC" {
		t.Fatalf("event = %+v", ev)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not unregistered after disconnect")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
