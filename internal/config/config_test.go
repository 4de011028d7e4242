package config

import "testing"

func TestLoadInstancesFromEnv(t *testing.T) {
	t.Setenv("GLPI_PETA_URL", "https://peta.example.com")
	t.Setenv("GLPI_PETA_API_URL", "https://peta.example.com/apirest.php")
	t.Setenv("GLPI_PETA_APP_TOKEN", "app-token")
	t.Setenv("GLPI_PETA_USER_TOKEN", "user-token")
	t.Setenv("GLPI_GMX_URL", "https://gmx.example.com")
	t.Setenv("GLPI_GMX_API_URL", "https://gmx.example.com/apirest.php")
	t.Setenv("GLPI_GMX_OAUTH_CLIENT_ID", "client")
	t.Setenv("GLPI_GMX_OAUTH_CLIENT_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Instances) != 2 {
		t.Fatalf("len(Instances) = %d, want 2", len(cfg.Instances))
	}
	if cfg.Instances[0].Name != "PETA" || cfg.Instances[1].Name != "GMX" {
		t.Fatalf("instance order = %s, %s", cfg.Instances[0].Name, cfg.Instances[1].Name)
	}
	if cfg.Instances[0].UserToken != "user-token" {
		t.Errorf("PETA user token = %q", cfg.Instances[0].UserToken)
	}
	if cfg.Instances[1].OAuthClientID != "client" {
		t.Errorf("GMX oauth client = %q", cfg.Instances[1].OAuthClientID)
	}
}

func TestLoadSkipsInstanceMissingURL(t *testing.T) {
	t.Setenv("GLPI_PETA_URL", "https://peta.example.com")
	t.Setenv("GLPI_PETA_API_URL", "https://peta.example.com/apirest.php")
	t.Setenv("GLPI_GMX_URL", "")
	t.Setenv("GLPI_GMX_API_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Instances) != 1 {
		t.Fatalf("len(Instances) = %d, want 1", len(cfg.Instances))
	}
	if cfg.Instances[0].Name != "PETA" {
		t.Fatalf("instance = %s, want PETA", cfg.Instances[0].Name)
	}
}

func TestLoadFailsWithoutAnyInstance(t *testing.T) {
	t.Setenv("GLPI_PETA_URL", "")
	t.Setenv("GLPI_PETA_API_URL", "")
	t.Setenv("GLPI_GMX_URL", "")
	t.Setenv("GLPI_GMX_API_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load should fail when no instance is configured")
	}
}

func TestFallbackCredentials(t *testing.T) {
	t.Setenv("GLPI_USER_ADM", "shared-user")
	t.Setenv("GLPI_USER_ADM_PASSWORD", "shared-pass")
	t.Setenv("GLPI_PETA_URL", "https://peta.example.com")
	t.Setenv("GLPI_PETA_API_URL", "https://peta.example.com/apirest.php")
	t.Setenv("GLPI_PETA_USER", "peta-user")
	t.Setenv("GLPI_GMX_URL", "https://gmx.example.com")
	t.Setenv("GLPI_GMX_API_URL", "https://gmx.example.com/apirest.php")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	peta, gmx := cfg.Instances[0], cfg.Instances[1]
	if peta.Username != "peta-user" {
		t.Errorf("PETA username = %q, want instance-specific value", peta.Username)
	}
	if peta.Password != "shared-pass" {
		t.Errorf("PETA password = %q, want fallback", peta.Password)
	}
	if gmx.Username != "shared-user" || gmx.Password != "shared-pass" {
		t.Errorf("GMX credentials = %q/%q, want fallback pair", gmx.Username, gmx.Password)
	}
}

func TestSyncSecretRequired(t *testing.T) {
	t.Setenv("GLPI_PETA_URL", "https://peta.example.com")
	t.Setenv("GLPI_PETA_API_URL", "https://peta.example.com/apirest.php")
	t.Setenv("SYNC_REQUIRE_SECRET", "true")
	t.Setenv("SYNC_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load should fail when SYNC_REQUIRE_SECRET is set without SYNC_SECRET")
	}
}
