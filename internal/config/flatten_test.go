package config

import (
	"reflect"
	"testing"
)

func TestFlatten(t *testing.T) {
	nested := map[string]any{
		"log_level": "info",
		"telegram": map[string]any{
			"token": "abc",
		},
		"scheduler": map[string]any{
			"sweep_interval": "@every 1m",
		},
	}
	flat := Flatten(nested)
	want := map[string]any{
		"log_level":                "info",
		"telegram.token":           "abc",
		"scheduler.sweep_interval": "@every 1m",
	}
	if !reflect.DeepEqual(flat, want) {
		t.Errorf("Flatten mismatch:\n got %v\nwant %v", flat, want)
	}
}

func TestUnflattenRoundTrip(t *testing.T) {
	nested := map[string]any{
		"log_level": "info",
		"database": map[string]any{
			"url": "postgres://host/db",
		},
		"http": map[string]any{
			"addr": ":8080",
		},
	}
	got := Unflatten(Flatten(nested))
	if !reflect.DeepEqual(got, nested) {
		t.Errorf("round trip mismatch:\n got %v\nwant %v", got, nested)
	}
}

func TestIsSecretKey(t *testing.T) {
	if !IsSecretKey("telegram.token") {
		t.Error("telegram.token should be secret")
	}
	if !IsSecretKey("database.url") {
		t.Error("database.url should be secret")
	}
	if IsSecretKey("log_level") {
		t.Error("log_level should not be secret")
	}
}

func TestMaskSecrets(t *testing.T) {
	flat := map[string]any{
		"telegram.token": "123456:abcdefgh",
		"database.url":   "pg",
		"log_level":      "info",
	}
	masked := MaskSecrets(flat)
	if masked["telegram.token"] != "***efgh" {
		t.Errorf("expected ***efgh, got %v", masked["telegram.token"])
	}
	if masked["database.url"] != "***pg" {
		t.Errorf("expected short secret fully behind mask, got %v", masked["database.url"])
	}
	if masked["log_level"] != "info" {
		t.Errorf("expected log_level untouched, got %v", masked["log_level"])
	}
	// Original map stays unmodified.
	if flat["telegram.token"] != "123456:abcdefgh" {
		t.Error("MaskSecrets mutated its input")
	}
}

func TestMaskSecretsEmptyValue(t *testing.T) {
	masked := MaskSecrets(map[string]any{"telegram.token": ""})
	if masked["telegram.token"] != "" {
		t.Errorf("expected empty token left empty, got %v", masked["telegram.token"])
	}
}
