package models

import "testing"

func TestHTTPErrorRetryable(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{200, false},
		{404, false},
		{429, true},
		{500, true},
		{503, true},
		{403, false},
	}
	for _, c := range cases {
		err := NewHTTPError("http", c.status, "status")
		if err.Retryable() != c.retryable {
			t.Errorf("status %d: retryable=%v want %v", c.status, err.Retryable(), c.retryable)
		}
	}
}

func TestAllEnginesFailedNotRetryable(t *testing.T) {
	err := NewAllEnginesFailedError([]string{"http", "tlsclient"}, map[string]EngineError{
		"http": NewHTTPError("http", 500, "err"),
	})
	if err.Retryable() {
		t.Fatal("AllEnginesFailedError must not be retryable")
	}
	if len(err.AttemptedEngines()) != 2 {
		t.Fatalf("expected 2 attempted engines, got %d", len(err.AttemptedEngines()))
	}
}

func TestAsEngineErrorWrapsUnknown(t *testing.T) {
	underlying := errNotAnEngineError{}
	wrapped := AsEngineError("http", underlying)
	if !wrapped.Retryable() {
		t.Fatal("unknown errors must default to retryable=true")
	}
}

type errNotAnEngineError struct{}

func (errNotAnEngineError) Error() string { return "boom" }
