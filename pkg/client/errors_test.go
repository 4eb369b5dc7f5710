package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestTransportError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *TransportError
		contains []string
	}{
		{
			name: "status error",
			err: &TransportError{
				Method:     "GET",
				Path:       "/theses/1",
				StatusCode: 404,
				ErrorClass: ErrorClassClient,
				Message:    "Thesis not found",
			},
			contains: []string{"GET /theses/1", "client error", "status 404", "Thesis not found"},
		},
		{
			name: "network error",
			err: &TransportError{
				Method:     "POST",
				Path:       "/theses",
				ErrorClass: ErrorClassNetwork,
				Err:        io.ErrUnexpectedEOF,
			},
			contains: []string{"POST /theses", "network error", "unexpected EOF"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("Error() = %q, missing %q", msg, want)
				}
			}
		})
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	err := &TransportError{ErrorClass: ErrorClassTimeout, Err: context.DeadlineExceeded}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("errors.Is should see the wrapped error")
	}

	wrapped := fmt.Errorf("load stats: %w", &TransportError{StatusCode: 502, ErrorClass: ErrorClassServer})
	if StatusCode(wrapped) != 502 {
		t.Errorf("StatusCode() = %d, want 502", StatusCode(wrapped))
	}
	if StatusCode(errors.New("plain")) != 0 {
		t.Error("StatusCode() of a plain error should be 0")
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{400, ErrorClassClient},
		{401, ErrorClassClient},
		{404, ErrorClassClient},
		{429, ErrorClassClient},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestClassifyErr(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want ErrorClass
	}{
		{name: "deadline", ctx: context.Background(), err: context.DeadlineExceeded, want: ErrorClassTimeout},
		{name: "canceled error", ctx: context.Background(), err: context.Canceled, want: ErrorClassCanceled},
		{name: "canceled parent", ctx: canceled, err: io.EOF, want: ErrorClassCanceled},
		{name: "connection error", ctx: context.Background(), err: io.EOF, want: ErrorClassNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyErr(tt.ctx, tt.err); got != tt.want {
				t.Errorf("classifyErr() = %q, want %q", got, tt.want)
			}
		})
	}
}
