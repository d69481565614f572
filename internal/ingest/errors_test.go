package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/david/holiday-watch/internal/models"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o wait exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.ProviderStatus
	}{
		{"nil is ok", nil, models.ProviderStatusOK},
		{"403 status", &FetchError{URL: "u", Mode: ModeHTTP, StatusCode: 403}, models.ProviderStatusBlocked},
		{"429 status wrapped", fmt.Errorf("search: %w", &FetchError{StatusCode: 429}), models.ProviderStatusBlocked},
		{"500 status", &FetchError{StatusCode: 500}, models.ProviderStatusFetchFailed},
		{"deadline", &FetchError{Err: context.DeadlineExceeded}, models.ProviderStatusTimeout},
		{"net timeout", &FetchError{Err: timeoutErr{}}, models.ProviderStatusTimeout},
		{"parse sentinel", fmt.Errorf("%w: bad json", ErrParse), models.ProviderStatusParseFailed},
		{"blocked sentinel", ErrBlocked, models.ProviderStatusBlocked},
		{"joined keeps blocked", errors.Join(errors.New("boom"), &FetchError{StatusCode: 403}), models.ProviderStatusBlocked},
		{"message timeout fallback", errors.New("net/http: request timed out"), models.ProviderStatusTimeout},
		{"message captcha fallback", errors.New("captcha challenge served"), models.ProviderStatusBlocked},
		{"message parse fallback", errors.New("invalid character 'x' looking for value"), models.ProviderStatusParseFailed},
		{"anything else", errors.New("connection refused"), models.ProviderStatusFetchFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); got != tt.want {
				t.Fatalf("ClassifyError(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}
