package config

import (
	"strings"
	"testing"
)

func TestRequire(t *testing.T) {
	cfg := Config{}

	err := cfg.Require("ORACLE_API_KEY", "")
	if err == nil {
		t.Fatal("empty value accepted")
	}
	if !strings.Contains(err.Error(), "ORACLE_API_KEY") {
		t.Fatalf("error does not name the variable: %v", err)
	}

	if err := cfg.Require("ORACLE_API_KEY", "key-123"); err != nil {
		t.Fatal(err)
	}
}
