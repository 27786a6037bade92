package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// tr_type values of a subscription frame.
const (
	trTypeSubscribe   = "1"
	trTypeUnsubscribe = "2"
)

type subscriptionHeader struct {
	ApprovalKey string `json:"approval_key"`
	CustType    string `json:"custtype"`
	TrType      string `json:"tr_type"`
	ContentType string `json:"content-type"`
}

type subscriptionInput struct {
	TrID  string `json:"tr_id"`
	TrKey string `json:"tr_key"`
}

type subscriptionFrame struct {
	Header subscriptionHeader `json:"header"`
	Body   struct {
		Input subscriptionInput `json:"input"`
	} `json:"body"`
}

func newSubscriptionFrame(approvalKey, custType, trType, symbol string) subscriptionFrame {
	var f subscriptionFrame
	f.Header = subscriptionHeader{
		ApprovalKey: approvalKey,
		CustType:    custType,
		TrType:      trType,
		ContentType: "utf-8",
	}
	f.Body.Input = subscriptionInput{TrID: TrExecution, TrKey: symbol}
	return f
}

func dial(ctx context.Context, url string, handshakeTimeout time.Duration) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// writeSubscription sends one subscribe or unsubscribe frame. The caller
// holds the manager's write lock.
func writeSubscription(conn *websocket.Conn, approvalKey, custType, trType, symbol string) error {
	b, err := json.Marshal(newSubscriptionFrame(approvalKey, custType, trType, symbol))
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}
