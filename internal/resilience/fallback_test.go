package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestFallbackGroup_PrimaryPreferred(t *testing.T) {
	fg := NewFallbackGroup("openai", "openai", CircuitBreakerConfig{MaxFailures: 3})
	fg.AddFallback("ollama", "ollama")

	var served string
	err := fg.Execute(func(v string) error {
		served = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if served != "openai" {
		t.Fatalf("served by %q, want the primary", served)
	}
}

func TestFallbackGroup_FailoverOnPrimaryError(t *testing.T) {
	fg := NewFallbackGroup("openai", "openai", CircuitBreakerConfig{MaxFailures: 3})
	fg.AddFallback("ollama", "ollama")

	var served string
	err := fg.Execute(func(v string) error {
		if v == "openai" {
			return errProviderDown
		}
		served = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if served != "ollama" {
		t.Fatalf("served by %q, want the fallback", served)
	}
}

func TestFallbackGroup_AllProvidersDown(t *testing.T) {
	fg := NewFallbackGroup("openai", "openai", CircuitBreakerConfig{MaxFailures: 3})
	fg.AddFallback("ollama", "ollama")

	err := fg.Execute(func(v string) error {
		return errProviderDown
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroup_OpenBreakerSkipsPrimary(t *testing.T) {
	fg := NewFallbackGroup("openai", "openai", CircuitBreakerConfig{
		MaxFailures:  2,
		ResetTimeout: time.Hour,
	})
	fg.AddFallback("ollama", "ollama")

	// Trip the primary's breaker.
	for i := 0; i < 2; i++ {
		_ = fg.Execute(func(v string) error {
			if v == "openai" {
				return errProviderDown
			}
			return nil
		})
	}

	// With the primary's breaker open, calls go straight to the fallback
	// without touching the primary.
	var served string
	err := fg.Execute(func(v string) error {
		if v == "openai" {
			t.Fatal("primary called while its breaker is open")
		}
		served = v
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if served != "ollama" {
		t.Fatalf("served by %q, want the fallback", served)
	}
}

func TestExecuteWithResult_PrimaryResult(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", CircuitBreakerConfig{MaxFailures: 3})
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(fg, func(v int) (string, error) {
		if v == 10 {
			return "from-ten", nil
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if result != "from-ten" {
		t.Fatalf("result = %q, want from-ten", result)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", CircuitBreakerConfig{MaxFailures: 3})
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(fg, func(v int) (string, error) {
		if v == 10 {
			return "", errProviderDown
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult: %v", err)
	}
	if result != "from-twenty" {
		t.Fatalf("result = %q, want from-twenty", result)
	}
}

func TestExecuteWithResult_AllFail(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", CircuitBreakerConfig{MaxFailures: 3})

	_, err := ExecuteWithResult(fg, func(v int) (string, error) {
		return "", errProviderDown
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
