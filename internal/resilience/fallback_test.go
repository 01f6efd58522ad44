package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestFallbackGroupPrimaryWins(t *testing.T) {
	fg := NewFallbackGroup[string](BreakerConfig{})
	fg.Add("primary", "a")
	fg.Add("fallback", "b")

	var used []string
	err := fg.Execute(func(_ string, v string) error {
		used = append(used, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(used) != 1 || used[0] != "a" {
		t.Fatalf("used = %v, want only the primary", used)
	}
}

func TestFallbackGroupFailsOver(t *testing.T) {
	fg := NewFallbackGroup[string](BreakerConfig{})
	fg.Add("primary", "a")
	fg.Add("fallback", "b")

	got, err := ExecuteWithResult(fg, func(_ string, v string) (string, error) {
		if v == "a" {
			return "", errors.New("primary down")
		}
		return "from-" + v, nil
	})
	if err != nil {
		t.Fatalf("ExecuteWithResult() error = %v", err)
	}
	if got != "from-b" {
		t.Fatalf("ExecuteWithResult() = %q, want from-b", got)
	}
}

func TestFallbackGroupAllFailed(t *testing.T) {
	fg := NewFallbackGroup[int](BreakerConfig{})
	fg.Add("only", 1)

	err := fg.Execute(func(_ string, _ int) error { return errors.New("down") })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("Execute() error = %v, want ErrAllFailed", err)
	}
}

func TestFallbackGroupSkipsOpenBreaker(t *testing.T) {
	fg := NewFallbackGroup[string](BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	fg.Add("primary", "a")
	fg.Add("fallback", "b")

	// Trip the primary's breaker.
	fg.Execute(func(_ string, v string) error {
		if v == "a" {
			return errors.New("down")
		}
		return nil
	})

	var primaryCalls int
	err := fg.Execute(func(_ string, v string) error {
		if v == "a" {
			primaryCalls++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if primaryCalls != 0 {
		t.Fatal("primary was called while its breaker was open")
	}
}
