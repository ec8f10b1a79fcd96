package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Intake.Workers != 4 {
		t.Errorf("expected 4 intake workers, got %d", cfg.Intake.Workers)
	}
	if cfg.Classification.DefaultSection != "5" {
		t.Errorf("expected default section 5, got %s", cfg.Classification.DefaultSection)
	}
	if cfg.Toolkit.IdentityConfirmed != 0.85 {
		t.Errorf("expected confirmed threshold 0.85, got %f", cfg.Toolkit.IdentityConfirmed)
	}
	if cfg.Gateway.AutoApprove {
		t.Error("expected auto_approve off by default")
	}
	if cfg.NATS.URL != "" {
		t.Error("expected NATS mirror disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero workers",
			modify:  func(c *Config) { c.Intake.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "unknown ocr engine",
			modify:  func(c *Config) { c.OCR.Engine = "cloud" },
			wantErr: true,
		},
		{
			name:    "unknown locker backend",
			modify:  func(c *Config) { c.Locker.Backend = "postgres" },
			wantErr: true,
		},
		{
			name:    "sqlite locker backend",
			modify:  func(c *Config) { c.Locker.Backend = "sqlite" },
			wantErr: false,
		},
		{
			name: "classification rule without matchers",
			modify: func(c *Config) {
				c.Classification.Rules = []ClassificationRule{{Name: "empty", Section: "3"}}
			},
			wantErr: true,
		},
		{
			name:    "inverted identity thresholds",
			modify:  func(c *Config) { c.Toolkit.IdentityPossible = 0.9 },
			wantErr: true,
		},
		{
			name:    "zero billing increment",
			modify:  func(c *Config) { c.Toolkit.BillingIncrementMinutes = 0 },
			wantErr: true,
		},
		{
			name: "qa rule with bad severity",
			modify: func(c *Config) {
				c.QA.Rules = []QARule{{Name: "r", Expr: "true", Severity: "fatal"}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "reportengine.yaml")

	content := `
intake:
  workers: 8
  debounce: 2s
ocr:
  engine: none
locker:
  backend: sqlite
toolkit:
  hourly_rate_cents: 9500
gateway:
  auto_approve: true
nats:
  url: "nats://test:4222"
report:
  agency: "Northgate Investigations"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Intake.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Intake.Workers)
	}
	if cfg.Intake.Debounce != 2*time.Second {
		t.Errorf("expected debounce 2s, got %v", cfg.Intake.Debounce)
	}
	if cfg.OCR.Engine != "none" {
		t.Errorf("expected ocr engine none, got %s", cfg.OCR.Engine)
	}
	if cfg.Locker.Backend != "sqlite" {
		t.Errorf("expected sqlite backend, got %s", cfg.Locker.Backend)
	}
	if cfg.Toolkit.HourlyRateCents != 9500 {
		t.Errorf("expected hourly rate 9500, got %d", cfg.Toolkit.HourlyRateCents)
	}
	// Unset fields keep defaults
	if cfg.Toolkit.MileageRateCents != 67 {
		t.Errorf("expected default mileage rate 67, got %d", cfg.Toolkit.MileageRateCents)
	}
	if !cfg.Gateway.AutoApprove {
		t.Error("expected auto_approve true")
	}
	if cfg.Report.Agency != "Northgate Investigations" {
		t.Errorf("expected agency, got %s", cfg.Report.Agency)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		Toolkit: ToolkitConfig{
			HourlyRateCents: 12000,
		},
		Classification: ClassificationConfig{
			DefaultSection: "4",
		},
	}

	base.Merge(override)

	if base.Toolkit.HourlyRateCents != 12000 {
		t.Errorf("expected hourly rate 12000, got %d", base.Toolkit.HourlyRateCents)
	}
	// Mileage should remain from base since override didn't set it
	if base.Toolkit.MileageRateCents != 67 {
		t.Errorf("expected mileage to remain default, got %d", base.Toolkit.MileageRateCents)
	}
	if base.Classification.DefaultSection != "4" {
		t.Errorf("expected default section 4, got %s", base.Classification.DefaultSection)
	}
	if len(base.Classification.Rules) != len(DefaultClassificationRules()) {
		t.Error("expected default classification rules to survive merge")
	}

	base.Merge(nil)
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.Report.Agency = "Saved Agency"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.Report.Agency != "Saved Agency" {
		t.Errorf("expected agency Saved Agency, got %s", loaded.Report.Agency)
	}
}

func TestLoaderLayers(t *testing.T) {
	home := t.TempDir()
	project := t.TempDir()
	nested := filepath.Join(project, "cases", "2024")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	user := DefaultConfig()
	user.Report.Agency = "User Agency"
	user.Toolkit.HourlyRateCents = 8000
	if err := user.SaveToFile(filepath.Join(home, UserConfigDir, UserConfigFile)); err != nil {
		t.Fatal(err)
	}

	projectYAML := "toolkit:\n  hourly_rate_cents: 11000\n"
	if err := os.WriteFile(filepath.Join(project, ProjectConfigFile), []byte(projectYAML), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader(nil).WithHomeDir(home).WithStartDir(nested).Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Report.Agency != "User Agency" {
		t.Errorf("expected user agency, got %s", cfg.Report.Agency)
	}
	if cfg.Toolkit.HourlyRateCents != 11000 {
		t.Errorf("expected project rate to win, got %d", cfg.Toolkit.HourlyRateCents)
	}
	wantRoot, _ := filepath.Abs(project)
	if cfg.Workspace.Root != wantRoot {
		t.Errorf("expected workspace root %s, got %s", wantRoot, cfg.Workspace.Root)
	}

	explicit := filepath.Join(t.TempDir(), "override.yaml")
	if err := os.WriteFile(explicit, []byte("toolkit:\n  hourly_rate_cents: 13000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err = NewLoader(nil).WithHomeDir(home).WithStartDir(nested).Load(explicit)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Toolkit.HourlyRateCents != 13000 {
		t.Errorf("expected explicit rate to win, got %d", cfg.Toolkit.HourlyRateCents)
	}

	if _, err := NewLoader(nil).WithHomeDir(home).Load(filepath.Join(project, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestEnsureProjectConfig(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(nil)

	path, err := l.EnsureProjectConfig(dir)
	if err != nil {
		t.Fatalf("EnsureProjectConfig() error = %v", err)
	}
	if filepath.Base(path) != ProjectConfigFile {
		t.Errorf("unexpected path %s", path)
	}

	// Second call leaves the file alone
	if err := os.WriteFile(path, []byte("report:\n  agency: Edited\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := l.EnsureProjectConfig(dir); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Report.Agency != "Edited" {
		t.Errorf("expected edited config preserved, got %s", cfg.Report.Agency)
	}
}
