package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthServiceClientValidateToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/validate" || r.Header.Get("Authorization") != "Bearer svc-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch req["access_token"] {
		case "good":
			json.NewEncoder(w).Encode(ValidateResponse{UserID: "stu-1", DeviceID: req["device_id"], Roles: []string{"student"}})
		case "anonymous":
			json.NewEncoder(w).Encode(ValidateResponse{DeviceID: req["device_id"]})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	client := NewAuthServiceClient(srv.URL, "svc-token")
	ctx := context.Background()

	resp, err := client.ValidateToken(ctx, "good", "dev-1")
	if err != nil {
		t.Fatal(err)
	}
	if resp.UserID != "stu-1" || resp.DeviceID != "dev-1" || len(resp.Roles) != 1 {
		t.Errorf("resp = %+v", resp)
	}

	if _, err := client.ValidateToken(ctx, "expired", "dev-1"); err == nil {
		t.Error("401 from auth service accepted")
	}
	if _, err := client.ValidateToken(ctx, "anonymous", "dev-1"); err == nil {
		t.Error("response without user accepted")
	}

	wrongKey := NewAuthServiceClient(srv.URL, "other")
	if _, err := wrongKey.ValidateToken(ctx, "good", "dev-1"); err == nil {
		t.Error("request with wrong service token accepted")
	}
}
