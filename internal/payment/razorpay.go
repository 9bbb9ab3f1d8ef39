package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const ProviderRazorpay = "razorpay"

// RazorpayGateway creates orders through the Razorpay Orders API and checks
// checkout callbacks with the HMAC-SHA256 signature scheme.
type RazorpayGateway struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
}

func NewRazorpayGateway(baseURL, keyID, keySecret string) (*RazorpayGateway, error) {
	if strings.TrimSpace(keyID) == "" || strings.TrimSpace(keySecret) == "" {
		return nil, errors.New("razorpay: key id and secret are required")
	}
	return &RazorpayGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		keySecret: keySecret,
		client:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (g *RazorpayGateway) Name() string { return ProviderRazorpay }

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrder struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Receipt string `json:"receipt"`
}

func (g *RazorpayGateway) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	body, err := json.Marshal(razorpayOrderRequest{
		Amount:   minorUnits(req.Amount),
		Currency: req.Currency,
		Receipt:  req.Reference,
		Notes:    map[string]string{"order_id": req.OrderID},
	})
	if err != nil {
		return Session{}, fmt.Errorf("razorpay: encode order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("razorpay: create request: %w", err)
	}
	httpReq.SetBasicAuth(g.keyID, g.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return Session{}, fmt.Errorf("%w: razorpay: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Session{}, fmt.Errorf("razorpay: unexpected status: %d, body: %s", resp.StatusCode, string(raw))
	}

	var order razorpayOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return Session{}, fmt.Errorf("razorpay: decode order: %w", err)
	}
	if order.ID == "" {
		return Session{}, errors.New("razorpay: order id missing in response")
	}

	return Session{
		Provider:        ProviderRazorpay,
		ProviderOrderID: order.ID,
		KeyID:           g.keyID,
	}, nil
}

// Verify recomputes HMAC-SHA256(order_id|payment_id) with the key secret.
func (g *RazorpayGateway) Verify(_ context.Context, cb Callback) (bool, error) {
	if cb.ProviderOrderID == "" || cb.PaymentID == "" || cb.Signature == "" {
		return false, nil
	}
	expected := Sign(g.keySecret, cb.ProviderOrderID, cb.PaymentID)
	got, err := hex.DecodeString(strings.TrimSpace(cb.Signature))
	if err != nil {
		return false, nil
	}
	want, _ := hex.DecodeString(expected)
	return hmac.Equal(got, want), nil
}

// NotifyCancelled is a no-op: unpaid Razorpay orders expire on their own.
func (g *RazorpayGateway) NotifyCancelled(context.Context, string) error {
	return nil
}

// Sign returns the hex signature Razorpay checkout attaches to a callback.
func Sign(secret, providerOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(providerOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
