package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"scriptreel/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "continuity", "ffmpeg", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"continuity", "ffmpeg", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestRetryableOnlyForTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", &services.TransientNetworkError{Op: "submit", StatusCode: 503}, true},
		{"wrapped transient", fmt.Errorf("attempt 2: %w", &services.TransientNetworkError{Op: "poll"}), true},
		{"timeout marker", services.Wrap(services.ErrTimeout, "generation", "poll", "ceiling", nil), true},
		{"permanent", &services.PermanentRequestError{Op: "submit", StatusCode: 400, Detail: "bad prompt"}, false},
		{"quota", &services.QuotaOrCreditError{Required: 5, Available: 1}, false},
		{"validation", &services.ValidationError{Field: "script", Reason: "empty"}, false},
		{"canceled", fmt.Errorf("poll: %w", context.Canceled), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := services.Retryable(tc.err); got != tc.want {
			t.Fatalf("%s: Retryable=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestKindMapping(t *testing.T) {
	cases := map[string]error{
		services.KindValidation: &services.ValidationError{Field: "constraints"},
		services.KindTransient:  &services.TransientNetworkError{Op: "download"},
		services.KindPermanent:  &services.PermanentRequestError{StatusCode: 422},
		services.KindQuota:      fmt.Errorf("preflight: %w", &services.QuotaOrCreditError{Required: 2}),
		services.KindContinuity: &services.ContinuityExtractionError{SegmentIndex: 1},
		services.KindCanceled:   context.Canceled,
		services.KindUnknown:    errors.New("mystery"),
	}
	for want, err := range cases {
		if got := services.Kind(err); got != want {
			t.Fatalf("Kind(%v) = %q want %q", err, got, want)
		}
	}
}

func TestTaxonomyMatchesMarkers(t *testing.T) {
	if !errors.Is(&services.QuotaOrCreditError{}, services.ErrQuota) {
		t.Fatal("quota error should match ErrQuota")
	}
	if !errors.Is(&services.ValidationError{}, services.ErrValidation) {
		t.Fatal("validation error should match ErrValidation")
	}
	perm := &services.PermanentRequestError{Op: "submit", StatusCode: 400, Detail: "prompt too long"}
	if !strings.Contains(perm.Error(), "prompt too long") {
		t.Fatalf("expected original detail in %q", perm.Error())
	}
}
