package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ussd-credit/internal/config"
)

func TestMemoryWiring(t *testing.T) {
	cfg, err := config.FromEnv(func(k string) string {
		if k == "STORE" {
			return "memory"
		}
		return ""
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	stores, err := OpenStores(cfg.Storage)
	if err != nil {
		t.Fatal(err)
	}
	defer stores.Close()
	if err := stores.Migrate(ctx); err != nil {
		t.Fatalf("memory migrate must be a no-op: %v", err)
	}
	a, err := New(ctx, cfg, stores, nil, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("wire: %v", err)
	}

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/session", strings.NewReader(`{"phoneNumber":"+258841234567"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil || out.SessionID == "" {
		t.Fatalf("bad start response %s", rec.Body.String())
	}

	steps := []string{"1", "123456789", "Ana Maria Cossa", "110100123456A", "01/01/2020", "01/01/2030", "2", "20000"}
	var last string
	for _, in := range steps {
		rec := httptest.NewRecorder()
		body := `{"sessionId":"` + out.SessionID + `","userInput":"` + in + `","requestId":"` + in + `"}`
		a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/continue", strings.NewReader(body)))
		last = rec.Body.String()
	}
	for _, bank := range []string{"Millennium BIM", "Letshego"} {
		if !strings.Contains(last, bank) {
			t.Fatalf("bank menu must list configured banks, got %s", last)
		}
	}
	if strings.Contains(last, "M-Pesa") {
		t.Fatalf("wallet operators are not salary banks: %s", last)
	}
}
