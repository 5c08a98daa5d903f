package config

import (
    "os"
    "path/filepath"
    "testing"
)

func writeConfig(t *testing.T, body string) string {
    t.Helper()
    path := filepath.Join(t.TempDir(), "ironic.yaml")
    if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
        t.Fatalf("write config: %v", err)
    }
    return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
    cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
    if err == nil {
        t.Fatal("explicit missing file must fail")
    }

    // no explicit path: defaults apply
    cfg, err = Load("")
    if err != nil { t.Fatalf("load defaults: %v", err) }
    if cfg.BaseTopic != "ironic.conductor_manager" {
        t.Fatalf("default base topic %q", cfg.BaseTopic)
    }
    if cfg.Registry.LivenessSec != 90 || cfg.Registry.HeartbeatSec != 30 {
        t.Fatalf("default registry config %+v", cfg.Registry)
    }
    if cfg.RPC.ContentType != "application/cbor" {
        t.Fatalf("default content type %q", cfg.RPC.ContentType)
    }
}

func TestLoadFromFile(t *testing.T) {
    path := writeConfig(t, `
hostname: cond-7
base_topic: ironic.test
drivers: [ipmi, redfish]
registry:
  liveness_sec: 30
log:
  level: debug
transports:
  - kind: tcp
    listen: ":7777"
  - kind: quic
    listen: ":7778"
`)
    cfg, err := Load(path)
    if err != nil { t.Fatalf("load: %v", err) }
    if cfg.Hostname != "cond-7" || cfg.BaseTopic != "ironic.test" {
        t.Fatalf("identity not loaded: %+v", cfg)
    }
    if len(cfg.Drivers) != 2 || cfg.Drivers[1] != "redfish" {
        t.Fatalf("drivers %v", cfg.Drivers)
    }
    if cfg.Registry.LivenessSec != 30 {
        t.Fatalf("liveness %d", cfg.Registry.LivenessSec)
    }
    // the default heartbeat stands when the file does not set it
    if cfg.Registry.HeartbeatSec != 30 {
        t.Fatalf("heartbeat %d", cfg.Registry.HeartbeatSec)
    }
    if len(cfg.Transports) != 2 || cfg.Transports[1].Kind != "quic" {
        t.Fatalf("transports %+v", cfg.Transports)
    }
}

func TestLoadRejectsBadValues(t *testing.T) {
    if _, err := Load(writeConfig(t, "log:\n  level: loud\n")); err == nil {
        t.Fatal("bad log level accepted")
    }
    if _, err := Load(writeConfig(t, "transports:\n  - kind: carrier-pigeon\n")); err == nil {
        t.Fatal("bad transport kind accepted")
    }
    if _, err := Load(writeConfig(t, "hostname: \" \"\n")); err == nil {
        t.Fatal("blank hostname accepted")
    }
}

func TestEnvOverride(t *testing.T) {
    t.Setenv("IRONIC_LOG_LEVEL", "debug")
    t.Setenv("IRONIC_BASE_TOPIC", "ironic.env")
    cfg, err := Load("")
    if err != nil { t.Fatalf("load: %v", err) }
    if cfg.Log.Level != "debug" {
        t.Fatalf("env log level not applied: %q", cfg.Log.Level)
    }
    if cfg.BaseTopic != "ironic.env" {
        t.Fatalf("env base topic not applied: %q", cfg.BaseTopic)
    }
}
