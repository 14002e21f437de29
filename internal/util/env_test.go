package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("LP_TEST_BOOL", "yes")
	if !ParseBoolEnv("LP_TEST_BOOL", false) {
		t.Error("expected true for 'yes'")
	}
	t.Setenv("LP_TEST_BOOL", "off")
	if ParseBoolEnv("LP_TEST_BOOL", true) {
		t.Error("expected false for 'off'")
	}
	t.Setenv("LP_TEST_BOOL", "garbage")
	if !ParseBoolEnv("LP_TEST_BOOL", true) {
		t.Error("expected default for invalid value")
	}
	t.Setenv("LP_TEST_BOOL", "")
	if ParseBoolEnv("LP_TEST_BOOL", false) {
		t.Error("expected default for unset value")
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("LP_TEST_INT", "8")
	if got := ParseIntEnv("LP_TEST_INT", 2); got != 8 {
		t.Errorf("expected 8, got %d", got)
	}
	t.Setenv("LP_TEST_INT", "not-a-number")
	if got := ParseIntEnv("LP_TEST_INT", 2); got != 2 {
		t.Errorf("expected default 2, got %d", got)
	}
	t.Setenv("LP_TEST_INT", "")
	if got := ParseIntEnv("LP_TEST_INT", 3); got != 3 {
		t.Errorf("expected default 3, got %d", got)
	}
}

func TestGetEnvDefault(t *testing.T) {
	t.Setenv("LP_TEST_STR", "value")
	if got := GetEnvDefault("LP_TEST_STR", "fallback"); got != "value" {
		t.Errorf("expected value, got %q", got)
	}
	t.Setenv("LP_TEST_STR", "")
	if got := GetEnvDefault("LP_TEST_STR", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
}
