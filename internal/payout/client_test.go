package payout

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestGetPayoutStatus_Completed(t *testing.T) {
	withdrawalID := uuid.New()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/payouts/"+withdrawalID.String() {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(PayoutStatus{
			Withdrawal:    withdrawalID.String(),
			Status:        StatusCompleted,
			ReferenceCode: "PAY-42",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	status, code, retryAfter, err := client.GetPayoutStatus(context.Background(), withdrawalID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if retryAfter != 0 {
		t.Fatalf("expected zero retry-after, got %s", retryAfter)
	}
	if status.Status != StatusCompleted || status.ReferenceCode != "PAY-42" {
		t.Fatalf("unexpected payout status: %+v", status)
	}
}

func TestGetPayoutStatus_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	status, code, _, err := client.GetPayoutStatus(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", code)
	}
	if status != nil {
		t.Fatalf("expected nil status for 204, got %+v", status)
	}
}

func TestGetPayoutStatus_NotConfigured(t *testing.T) {
	var client *Client

	_, _, _, err := client.GetPayoutStatus(context.Background(), uuid.New())
	if err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}

func TestGetPayoutStatus_RetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	client.httpClient.RetryMax = 0

	status, code, retryAfter, err := client.GetPayoutStatus(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", code)
	}
	if retryAfter != 2*time.Second {
		t.Fatalf("expected retry-after 2s, got %s", retryAfter)
	}
	if status != nil {
		t.Fatalf("expected nil status for 429, got %+v", status)
	}
}
