package config

import (
	"os"
	"path/filepath"
	"testing"

	"korty/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
auth:
  jwt_secret: "test_secret"
database:
  path: "test.db"
directory:
  organizations:
    - id: org-1
      name: "Org One"
  clubs:
    - id: club-1
      organization_id: org-1
      name: "Club One"
      zone: "Europe/Kyiv"
      currency: "UAH"
  courts:
    - id: court-1
      club_id: club-1
      name: "Court 1"
      price_per_hour: 60000
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Auth.JWTSecret != "test_secret" {
		t.Errorf("expected jwt_secret test_secret, got %s", cfg.Auth.JWTSecret)
	}

	if len(cfg.Directory.Courts) != 1 || cfg.Directory.Courts[0].ID != "court-1" {
		t.Errorf("expected 1 court with id court-1")
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("KORTY_TEST_SECRET", "from-env")

	yamlContent := `
auth:
  jwt_secret: "${KORTY_TEST_SECRET}"
database:
  path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("expected expanded secret from-env, got %s", cfg.Auth.JWTSecret)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Auth:     AuthConfig{JWTSecret: "secret"},
				Database: DatabaseConfig{Path: "path"},
			},
			wantErr: false,
		},
		{
			name: "missing jwt secret",
			cfg: Config{
				Database: DatabaseConfig{Path: "path"},
			},
			wantErr: true,
		},
		{
			name: "missing database path",
			cfg: Config{
				Auth: AuthConfig{JWTSecret: "secret"},
			},
			wantErr: true,
		},
		{
			name: "bad box key",
			cfg: Config{
				Auth:     AuthConfig{JWTSecret: "secret"},
				Database: DatabaseConfig{Path: "path"},
				Payments: PaymentsConfig{BoxKey: "zz"},
			},
			wantErr: true,
		},
		{
			name: "short box key",
			cfg: Config{
				Auth:     AuthConfig{JWTSecret: "secret"},
				Database: DatabaseConfig{Path: "path"},
				Payments: PaymentsConfig{BoxKey: "deadbeef"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default server port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Realtime.StreamBuffer != models.DefaultStreamBuffer {
		t.Errorf("expected default stream buffer %d, got %d", models.DefaultStreamBuffer, cfg.Realtime.StreamBuffer)
	}
	if cfg.Payments.UnpaidDeadlineMinutes != 20 {
		t.Errorf("expected default unpaid deadline 20, got %d", cfg.Payments.UnpaidDeadlineMinutes)
	}
	if cfg.Redis.Channel != "korty.events" {
		t.Errorf("expected default redis channel korty.events, got %s", cfg.Redis.Channel)
	}
}

func TestValidateDirectory(t *testing.T) {
	org := models.Organization{ID: "org-1", Name: "Org"}
	club := models.Club{ID: "club-1", OrganizationID: "org-1", Name: "Club", Zone: "Europe/Kyiv"}

	tests := []struct {
		name    string
		dir     DirectoryConfig
		wantErr bool
	}{
		{
			name: "valid",
			dir: DirectoryConfig{
				Organizations: []models.Organization{org},
				Clubs:         []models.Club{club},
				Courts:        []models.Court{{ID: "c1", ClubID: "club-1", Name: "C1", PricePerHour: 100}},
			},
			wantErr: false,
		},
		{
			name: "duplicate club id",
			dir: DirectoryConfig{
				Organizations: []models.Organization{org},
				Clubs:         []models.Club{club, club},
			},
			wantErr: true,
		},
		{
			name: "court references unknown club",
			dir: DirectoryConfig{
				Organizations: []models.Organization{org},
				Clubs:         []models.Club{club},
				Courts:        []models.Court{{ID: "c1", ClubID: "ghost", Name: "C1"}},
			},
			wantErr: true,
		},
		{
			name: "club without zone",
			dir: DirectoryConfig{
				Organizations: []models.Organization{org},
				Clubs:         []models.Club{{ID: "club-2", OrganizationID: "org-1", Name: "No Zone"}},
			},
			wantErr: true,
		},
		{
			name: "club references unknown organization",
			dir: DirectoryConfig{
				Clubs: []models.Club{club},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDirectory(&tt.dir)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDirectory() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
