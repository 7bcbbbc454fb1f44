package config

import (
	"testing"
)

func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"KONTROL_ID":     "pod-1",
		"KONTROL_IP":     "10.0.0.1",
		"KONTROL_LABELS": `{"app":"demo","role":"worker"}`,
		"KONTROL_MODE":   "master",
		"NAMESPACE":      "prod",
	}
}

func TestLoad_Minimal(t *testing.T) {
	setEnv(t, baseEnv())
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Labels.App != "demo" || cfg.Labels.Role != "worker" {
		t.Errorf("labels = %+v", cfg.Labels)
	}
	if !cfg.Modes["master"] {
		t.Errorf("expected master mode set")
	}
	if cfg.Prefix() != "/kontrol/prod/demo" {
		t.Errorf("Prefix() = %q", cfg.Prefix())
	}
}

func TestLoad_InvalidMode(t *testing.T) {
	env := baseEnv()
	env["KONTROL_MODE"] = "bogus"
	setEnv(t, env)
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid mode token")
	}
}

func TestLoad_SlaveRequiresMasterAnnotation(t *testing.T) {
	env := baseEnv()
	env["KONTROL_MODE"] = "slave"
	setEnv(t, env)
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing master annotation in slave mode")
	}
}

func TestLoad_DebugMode(t *testing.T) {
	env := baseEnv()
	env["KONTROL_MODE"] = "debug"
	setEnv(t, env)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Modes["master"] || !cfg.Modes["slave"] {
		t.Errorf("debug mode should imply master+slave, got %+v", cfg.Modes)
	}
	if len(cfg.Annotations.Masters()) == 0 {
		t.Errorf("debug mode should synthesize a master annotation")
	}
}

func TestAnnotations_Masters(t *testing.T) {
	a := Annotations{Master: "10.0.0.1,10.0.0.2"}
	got := a.Masters()
	if len(got) != 2 || got[0] != "10.0.0.1" || got[1] != "10.0.0.2" {
		t.Errorf("Masters() = %v", got)
	}
	if (Annotations{}).Masters() != nil {
		t.Errorf("empty annotation should yield nil masters")
	}
}
