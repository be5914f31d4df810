package logx

import (
	"errors"
	"testing"
)

func TestDebugDomainFiltering(t *testing.T) {
	SetDebug(true, []string{"engine", "sweep"})
	defer SetDebug(false, nil)

	if !IsDebugEnabled("engine") {
		t.Error("expected debug enabled for engine domain")
	}
	if !IsDebugEnabled("sweep") {
		t.Error("expected debug enabled for sweep domain")
	}
	if IsDebugEnabled("persistence") {
		t.Error("expected debug disabled for unlisted domain")
	}
}

func TestDebugAllDomainsWhenUnfiltered(t *testing.T) {
	SetDebug(true, nil)
	defer SetDebug(false, nil)

	if !IsDebugEnabled("anything") {
		t.Error("expected all domains enabled when no filter is set")
	}
}

func TestDebugDisabled(t *testing.T) {
	SetDebug(false, nil)

	if IsDebugEnabled("engine") {
		t.Error("expected debug disabled")
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("boom")
	wrapped := Wrap(base, "db connect")
	if wrapped == nil {
		t.Fatal("expected non-nil error")
	}
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error should unwrap to the original")
	}
	if wrapped.Error() != "db connect: boom" {
		t.Errorf("unexpected message: %s", wrapped.Error())
	}

	if Wrap(nil, "noop") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}
