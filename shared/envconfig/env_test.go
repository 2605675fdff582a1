package envconfig

import "testing"

func TestGetFallsBackWhenEmpty(t *testing.T) {
	t.Setenv("PROGRESSION_TEST_EMPTY", "")
	if got := Get("PROGRESSION_TEST_EMPTY", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("PROGRESSION_TEST_SET", "value")
	if got := Get("PROGRESSION_TEST_SET", "fallback"); got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestGetBool(t *testing.T) {
	t.Setenv("PROGRESSION_TEST_BOOL", "false")
	if GetBool("PROGRESSION_TEST_BOOL", true) {
		t.Fatal("expected false")
	}
	t.Setenv("PROGRESSION_TEST_BOOL", "nope")
	if !GetBool("PROGRESSION_TEST_BOOL", true) {
		t.Fatal("expected fallback for unparsable value")
	}
}

func TestValidate(t *testing.T) {
	type sample struct {
		Port string `validate:"required"`
	}
	if err := Validate(sample{}); err == nil {
		t.Fatal("expected validation error")
	}
	if err := Validate(sample{Port: "8080"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
