package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zippycoin-network/trust_engine/internal/cache"
	"github.com/zippycoin-network/trust_engine/internal/storage/memory"
	"github.com/zippycoin-network/trust_engine/internal/trust"
)

func newResolver(t *testing.T, client *http.Client) (*Resolver, *memory.Store) {
	t.Helper()
	store := memory.New()
	loader := cache.NewLoader(cache.NewMemory())
	core := NewCore(store, loader, quietLogger())
	return NewResolver(core, store, loader, client, quietLogger()), store
}

func TestResolver_OffChainShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want float64
	}{
		{"bare number", "42.5", 42.5},
		{"value wrapper", `{"value": 7}`, 7},
		{"data wrapper", `{"data": {"value": 0.33}}`, 0.33},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			r, _ := newResolver(t, srv.Client())
			spec := trust.FieldSpec{
				FieldType:    trust.FieldNumeric,
				DataSource:   trust.DataSource{Type: trust.SourceOffChain, APIEndpoint: srv.URL},
				DefaultValue: -1,
			}
			got, _ := r.Resolve(context.Background(), "zpc1addr", "app", "f", spec)
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestResolver_OffChainTimeoutReturnsDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte("1.0"))
	}))
	defer srv.Close()

	client := srv.Client()
	client.Timeout = 30 * time.Millisecond

	r, _ := newResolver(t, client)
	spec := trust.FieldSpec{
		FieldType:    trust.FieldNumeric,
		DataSource:   trust.DataSource{Type: trust.SourceOffChain, APIEndpoint: srv.URL},
		DefaultValue: 0.25,
	}
	got, _ := r.Resolve(context.Background(), "zpc1addr", "app", "f", spec)
	if got != 0.25 {
		t.Fatalf("expected exactly the default value 0.25, got %v", got)
	}
}

func TestResolver_OffChainNonNumericReturnsDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"value": "not a number"}`))
	}))
	defer srv.Close()

	r, _ := newResolver(t, srv.Client())
	spec := trust.FieldSpec{
		FieldType:    trust.FieldNumeric,
		DataSource:   trust.DataSource{Type: trust.SourceOffChain, APIEndpoint: srv.URL},
		DefaultValue: 0.5,
	}
	if got, _ := r.Resolve(context.Background(), "zpc1addr", "app", "f", spec); got != 0.5 {
		t.Fatalf("expected default on non-numeric body, got %v", got)
	}
}

func TestResolver_OffChainCaching(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		_, _ = w.Write([]byte("3"))
	}))
	defer srv.Close()

	r, _ := newResolver(t, srv.Client())
	spec := trust.FieldSpec{
		FieldType:  trust.FieldNumeric,
		DataSource: trust.DataSource{Type: trust.SourceOffChain, APIEndpoint: srv.URL},
	}
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if got, _ := r.Resolve(ctx, "zpc1addr", "app", "f", spec); got != 3 {
			t.Fatalf("resolve %d: got %v", i, got)
		}
	}
	if got := atomic.LoadInt64(&hits); got != 1 {
		t.Fatalf("expected 1 upstream fetch (cached afterwards), got %d", got)
	}
}

func TestResolver_UserInput(t *testing.T) {
	r, store := newResolver(t, nil)
	ctx := context.Background()
	spec := trust.FieldSpec{
		FieldType:    trust.FieldNumeric,
		DataSource:   trust.DataSource{Type: trust.SourceUserInput},
		DefaultValue: 0.1,
	}

	// Absent value falls back to the default.
	if got, _ := r.Resolve(ctx, "zpc1addr", "app", "kyc", spec); got != 0.1 {
		t.Fatalf("expected default for absent value, got %v", got)
	}

	if _, err := store.UpsertFieldValue(ctx, trust.FieldValue{
		Address: "zpc1addr", AppID: "app", FieldName: "kyc", Value: 0.8,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// The previous miss is cached for the field TTL; use a fresh field name
	// to observe the stored value.
	if got, _ := r.Resolve(ctx, "zpc1addr", "app2", "kyc", spec); got != 0.1 {
		t.Fatalf("different app must not see the value, got %v", got)
	}
	if got, _ := r.Resolve(ctx, "zpc1other", "app", "kyc", spec); got != 0.1 {
		t.Fatalf("different address must not see the value, got %v", got)
	}
}

func TestResolver_CoreTrustAndCrossReference(t *testing.T) {
	r, store := newResolver(t, nil)
	ctx := context.Background()

	// Default core metrics score 0.5.
	coreSpec := trust.FieldSpec{
		FieldType:  trust.FieldNumeric,
		DataSource: trust.DataSource{Type: trust.SourceCoreTrust},
	}
	if got, _ := r.Resolve(ctx, "zpc1addr", "app", "core", coreSpec); got != 0.5 {
		t.Fatalf("expected core score 0.5, got %v", got)
	}

	refCoreSpec := trust.FieldSpec{
		FieldType:  trust.FieldNumeric,
		DataSource: trust.DataSource{Type: trust.SourceCrossReference, RefField: trust.CoreTrustRef},
	}
	if got, _ := r.Resolve(ctx, "zpc1addr", "app", "refcore", refCoreSpec); got != 0.5 {
		t.Fatalf("expected cross-referenced core score 0.5, got %v", got)
	}

	if _, err := store.UpsertFieldValue(ctx, trust.FieldValue{
		Address: "zpc1addr", AppID: "app", FieldName: "stake", Value: 42,
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	refSpec := trust.FieldSpec{
		FieldType:    trust.FieldNumeric,
		DataSource:   trust.DataSource{Type: trust.SourceCrossReference, RefField: "stake"},
		DefaultValue: -1,
	}
	if got, _ := r.Resolve(ctx, "zpc1addr", "app", "refstake", refSpec); got != 42 {
		t.Fatalf("expected cross-referenced value 42, got %v", got)
	}
}

type stubChain struct {
	value float64
	err   error
}

func (s stubChain) ReadNumeric(context.Context, string, string, string) (float64, error) {
	return s.value, s.err
}

func TestResolver_OnChain(t *testing.T) {
	r, _ := newResolver(t, nil)
	ctx := context.Background()
	spec := trust.FieldSpec{
		FieldType:    trust.FieldNumeric,
		DataSource:   trust.DataSource{Type: trust.SourceOnChain, Contract: "0xabc", Method: "trustOf"},
		DefaultValue: 0.3,
	}

	// Without a chain client the placeholder resolves to the default.
	if got, _ := r.Resolve(ctx, "zpc1addr", "app", "onchain", spec); got != 0.3 {
		t.Fatalf("expected default without chain client, got %v", got)
	}

	r2, _ := newResolver(t, nil)
	r2.WithChainReader(stubChain{value: 0.9})
	if got, _ := r2.Resolve(ctx, "zpc1addr", "app", "onchain", spec); got != 0.9 {
		t.Fatalf("expected chain value 0.9, got %v", got)
	}

	r3, _ := newResolver(t, nil)
	r3.WithChainReader(stubChain{err: errors.New("rpc down")})
	if got, _ := r3.Resolve(ctx, "zpc1addr", "app", "onchain", spec); got != 0.3 {
		t.Fatalf("expected default on chain error, got %v", got)
	}
}
