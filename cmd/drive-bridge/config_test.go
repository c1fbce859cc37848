package main

import (
	"bytes"
	"errors"
	"flag"
	"testing"
	"time"
)

func validConfig() *appConfig {
	c := defaultConfig()
	c.serialDev = "/dev/null"
	c.serialReadTO = 10 * time.Millisecond
	return c
}

func TestConfigValidate_OK(t *testing.T) {
	if err := validConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badBackend", func(c *appConfig) { c.backend = "x" }},
		{"badBaud", func(c *appConfig) { c.baud = 0 }},
		{"badSerialTO", func(c *appConfig) { c.serialReadTO = 0 }},
		{"noCANIf", func(c *appConfig) { c.canIf = "" }},
		{"badTxQueue", func(c *appConfig) { c.txQueue = 0 }},
		{"badAttempts", func(c *appConfig) { c.openAttempts = 0 }},
		{"badOpenDelay", func(c *appConfig) { c.openDelay = -time.Second }},
		{"mdnsWithoutHTTP", func(c *appConfig) { c.mdnsEnable = true; c.httpAddr = "" }},
		{"driverBaseTooHigh", func(c *appConfig) { c.driverBase = 0x7FE }},
		{"overlappingBases", func(c *appConfig) { c.motorBase = 0x500 }},
	}
	for _, tc := range tests {
		c := validConfig()
		tc.mod(c)
		if err := c.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestParseFlags(t *testing.T) {
	var stderr bytes.Buffer
	cfg, showVersion, err := parseFlags([]string{
		"--backend", "serial",
		"--serial", "/dev/ttyACM0",
		"--driver-base", "0x600",
		"--motor-base", "1024",
		"--tx-queue", "16",
	}, &stderr)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if showVersion {
		t.Fatalf("unexpected version flag")
	}
	if cfg.backend != "serial" || cfg.serialDev != "/dev/ttyACM0" || cfg.txQueue != 16 {
		t.Fatalf("cfg %+v", cfg)
	}
	if cfg.driverBase != 0x600 || cfg.motorBase != 0x400 {
		t.Fatalf("bases 0x%X 0x%X", cfg.driverBase, cfg.motorBase)
	}
}

func TestParseFlagsErrors(t *testing.T) {
	var stderr bytes.Buffer
	if _, _, err := parseFlags([]string{"--driver-base", "zz"}, &stderr); err == nil {
		t.Fatalf("expected bad identifier error")
	}
	if _, _, err := parseFlags([]string{"--log-level", "loud"}, &stderr); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, _, err := parseFlags([]string{"-h"}, &stderr); !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected ErrHelp got %v", err)
	}
}

func TestParseFlagsVersion(t *testing.T) {
	var stderr bytes.Buffer
	_, showVersion, err := parseFlags([]string{"--version"}, &stderr)
	if err != nil || !showVersion {
		t.Fatalf("version: show=%v err=%v", showVersion, err)
	}
}
