package envutil

import (
	"testing"
	"time"
)

func TestIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_INT", "abc")
	if got := Int("ENVUTIL_TEST_INT", 7); got != 7 {
		t.Fatalf("want 7 got %d", got)
	}
	t.Setenv("ENVUTIL_TEST_INT", " 12 ")
	if got := Int("ENVUTIL_TEST_INT", 7); got != 12 {
		t.Fatalf("want 12 got %d", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_BOOL", "on")
	if !Bool("ENVUTIL_TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
	t.Setenv("ENVUTIL_TEST_BOOL", "nope")
	if !Bool("ENVUTIL_TEST_BOOL", true) {
		t.Fatalf("expected default for unparseable value")
	}
}

func TestSeconds(t *testing.T) {
	t.Setenv("ENVUTIL_TEST_SECS", "0")
	if got := Seconds("ENVUTIL_TEST_SECS", 5*time.Second); got != 5*time.Second {
		t.Fatalf("want default, got %s", got)
	}
	t.Setenv("ENVUTIL_TEST_SECS", "3")
	if got := Seconds("ENVUTIL_TEST_SECS", 5*time.Second); got != 3*time.Second {
		t.Fatalf("want 3s, got %s", got)
	}
}
