package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/Jeeves/internal/models"
	"github.com/BTreeMap/Jeeves/internal/store"
)

func TestNewClient_NoURL(t *testing.T) {
	if _, err := NewClient(); err != ErrNoURL {
		t.Errorf("expected ErrNoURL, got %v", err)
	}
}

func TestDeliver_Success(t *testing.T) {
	var gotContentType string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("webhook body is not JSON: %v", err)
		}
		w.Write([]byte(`{"ignored":true}`))
	}))
	defer srv.Close()

	st := store.NewInMemoryStore()
	client, err := NewClient(WithURL(srv.URL), WithRecorder(st))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	payload := models.InvitePayload{
		Type:        models.ActionTypeInvite,
		Origin:      models.Origin{ChannelID: "c1", RequestedBy: "u1"},
		AttendeeIDs: []string{"12345"},
	}
	if err := client.Deliver(context.Background(), models.ActionTypeInvite, payload); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected application/json, got %q", gotContentType)
	}
	if got["type"] != "invite" {
		t.Errorf("expected type invite, got %v", got["type"])
	}

	deliveries, err := st.ListDeliveries(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 recorded delivery, got %d", len(deliveries))
	}
	d := deliveries[0]
	if d.StatusCode != http.StatusOK || d.UserID != "u1" || d.ChannelID != "c1" || d.Kind != "invite" {
		t.Errorf("unexpected delivery record: %+v", d)
	}
}

func TestDeliver_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "zap is off", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := NewClient(WithURL(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = client.Deliver(context.Background(), models.ActionTypeSchedule, models.SchedulePayload{})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", statusErr.StatusCode)
	}
}

func TestDeliver_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	st := store.NewInMemoryStore()
	client, _ := NewClient(WithURL(url), WithRecorder(st))
	err := client.Deliver(context.Background(), models.ActionTypeSchedule, models.SchedulePayload{})
	if err == nil {
		t.Fatal("expected transport error")
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		t.Errorf("transport failure should not be a StatusError")
	}
	deliveries, _ := st.ListDeliveries(10)
	if len(deliveries) != 1 || deliveries[0].Error == "" {
		t.Errorf("expected failed attempt to be recorded, got %+v", deliveries)
	}
}
