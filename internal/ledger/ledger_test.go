package ledger

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/zippycoin-network/trust_engine/internal/storage/memory"
	"github.com/zippycoin-network/trust_engine/internal/trust"
	"github.com/zippycoin-network/trust_engine/pkg/logger"
)

func newService(t *testing.T) (*Service, *time.Time) {
	t.Helper()
	log := logger.NewDefault("test")
	log.SetOutput(io.Discard)

	svc := NewService(memory.New(), log)
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	return svc, &clock
}

func TestInitializeAndScore(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	got, err := svc.Initialize(ctx, "zpc1abc", 85)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if got != 85 {
		t.Fatalf("initialize returned %v, want 85", got)
	}

	score, err := svc.Score(ctx, "zpc1abc")
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if score != 85 {
		t.Fatalf("score = %v, want 85", score)
	}

	// Re-initialization does not overwrite the stored score.
	got, err = svc.Initialize(ctx, "zpc1abc", 40)
	if err != nil {
		t.Fatalf("re-initialize: %v", err)
	}
	if got != 85 {
		t.Fatalf("re-initialize returned %v, want stored 85", got)
	}
}

func TestInitialize_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Initialize(ctx, "zpc1abc", 101); !trust.IsValidation(err) {
		t.Fatalf("expected validation error for 101, got %v", err)
	}
	if _, err := svc.Initialize(ctx, "zpc1abc", -1); !trust.IsValidation(err) {
		t.Fatalf("expected validation error for -1, got %v", err)
	}
	if _, err := svc.Initialize(ctx, "", 50); !trust.IsValidation(err) {
		t.Fatalf("expected validation error for empty address, got %v", err)
	}
}

func TestScore_UnknownAddress(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.Score(context.Background(), "zpc1ghost"); !errors.Is(err, trust.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateScore_EnvironmentalFreshness(t *testing.T) {
	svc, clock := newService(t)
	ctx := context.Background()

	if _, err := svc.Initialize(ctx, "zpc1abc", 50); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	// No submission on record: update rejected, stored score untouched.
	err := svc.UpdateScore(ctx, "zpc1abc", 85)
	if !trust.IsPolicy(err) {
		t.Fatalf("expected policy error without submission, got %v", err)
	}
	if score, _ := svc.Score(ctx, "zpc1abc"); score != 50 {
		t.Fatalf("rejected update changed the score: %v", score)
	}

	if err := svc.SubmitEnvironmentalData(ctx, "zpc1abc", 0.8); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Within the 5-minute window the update is accepted.
	*clock = clock.Add(5 * time.Minute)
	if err := svc.UpdateScore(ctx, "zpc1abc", 85); err != nil {
		t.Fatalf("update within window: %v", err)
	}
	if score, _ := svc.Score(ctx, "zpc1abc"); score != 85 {
		t.Fatalf("score = %v, want 85", score)
	}

	// One second past the window the same call is a policy violation.
	*clock = clock.Add(time.Second)
	err = svc.UpdateScore(ctx, "zpc1abc", 90)
	var pe *trust.PolicyError
	if !errors.As(err, &pe) || pe.Code != trust.PolicyStaleEnvironment {
		t.Fatalf("expected stale-environment policy error, got %v", err)
	}
	if score, _ := svc.Score(ctx, "zpc1abc"); score != 85 {
		t.Fatalf("stale update changed the score: %v", score)
	}
}

func TestSubmitEnvironmentalData_Validation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if err := svc.SubmitEnvironmentalData(ctx, "zpc1abc", 1.5); !trust.IsValidation(err) {
		t.Fatalf("expected validation error for ratio 1.5, got %v", err)
	}
	if err := svc.SubmitEnvironmentalData(ctx, "", 0.5); !trust.IsValidation(err) {
		t.Fatalf("expected validation error for empty address, got %v", err)
	}
}

func TestScaleConversion(t *testing.T) {
	if FromPercent(85) != 0.85 {
		t.Fatalf("FromPercent(85) = %v", FromPercent(85))
	}
	if ToPercent(0.85) != 85 {
		t.Fatalf("ToPercent(0.85) = %v", ToPercent(0.85))
	}
}
