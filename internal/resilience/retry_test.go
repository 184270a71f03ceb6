package resilience

import (
	"errors"
	"testing"
)

func TestRetryText_FirstAttemptSucceeds(t *testing.T) {
	attempts := 0
	text, err := RetryText(func() (string, error) {
		attempts++
		return "done", nil
	}, 3, nil)

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if text != "done" {
		t.Errorf("Expected done, got %q", text)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryText_EmptyTwiceThenSuccess(t *testing.T) {
	attempts := 0
	text, err := RetryText(func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", nil
		}
		return "third time lucky", nil
	}, 3, nil)

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if text != "third time lucky" {
		t.Errorf("Expected valid result with no retry leakage, got %q", text)
	}
	if attempts != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", attempts)
	}
}

func TestRetryText_AlwaysEmptyReturnsApology(t *testing.T) {
	attempts := 0
	text, err := RetryText(func() (string, error) {
		attempts++
		return "   ", nil // blank counts as empty
	}, 3, nil)

	if err != nil {
		t.Fatalf("Expected apology, not error: %v", err)
	}
	if text != Apology {
		t.Errorf("Expected apology text, got %q", text)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryText_TransientErrorRetried(t *testing.T) {
	transient := errors.New("model returned nil content")
	attempts := 0
	text, err := RetryText(func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", transient
		}
		return "recovered", nil
	}, 3, func(err error) bool { return errors.Is(err, transient) })

	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if text != "recovered" {
		t.Errorf("Expected recovered, got %q", text)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestRetryText_TransientExhaustionDegradesToApology(t *testing.T) {
	transient := errors.New("nil content")
	attempts := 0
	text, err := RetryText(func() (string, error) {
		attempts++
		return "", transient
	}, 3, func(error) bool { return true })

	if err != nil {
		t.Fatalf("Transient exhaustion must not surface an error, got %v", err)
	}
	if text != Apology {
		t.Errorf("Expected apology, got %q", text)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryText_HardErrorImmediate(t *testing.T) {
	hard := errors.New("model not found")
	attempts := 0
	_, err := RetryText(func() (string, error) {
		attempts++
		return "", hard
	}, 3, func(error) bool { return false })

	if !errors.Is(err, hard) {
		t.Fatalf("Expected hard error to propagate, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected no retry on hard error, got %d attempts", attempts)
	}
}

func TestRetryText_NilClassifierTreatsErrorsAsHard(t *testing.T) {
	boom := errors.New("boom")
	attempts := 0
	_, err := RetryText(func() (string, error) {
		attempts++
		return "", boom
	}, 3, nil)

	if !errors.Is(err, boom) {
		t.Fatalf("Expected error to propagate, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}
