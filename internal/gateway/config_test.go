package gateway

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// envMap はマップを環境変数の取得関数として扱う。
func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

// TestLoadConfig はLoadConfig関数を検証する。
func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("デフォルト値が設定されること", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfig(envMap(map[string]string{"JWT_SECRET": "secret"}))
		if err != nil {
			t.Fatalf("LoadConfig()でエラーが発生: %v", err)
		}
		if cfg.Port != "8080" {
			t.Errorf("Port = %q, want %q", cfg.Port, "8080")
		}
		if cfg.TokenSource != SourceHeader {
			t.Errorf("TokenSource = %q, want %q", cfg.TokenSource, SourceHeader)
		}
		if cfg.UpstreamTimeout != 30*time.Second {
			t.Errorf("UpstreamTimeout = %v, want 30s", cfg.UpstreamTimeout)
		}
		if cfg.MaxBodyBytes != 5<<20 {
			t.Errorf("MaxBodyBytes = %d, want %d", cfg.MaxBodyBytes, 5<<20)
		}
		if len(cfg.CORSAllowedOrigins) != 0 {
			t.Errorf("CORSAllowedOrigins = %v, want empty", cfg.CORSAllowedOrigins)
		}
	})

	t.Run("JWT_SECRETが無い場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		_, err := LoadConfig(envMap(map[string]string{"PORT": "3000"}))
		if !errors.Is(err, ErrSecretRequired) {
			t.Errorf("err = %v, want ErrSecretRequired", err)
		}
	})

	t.Run("環境変数の値が反映されること", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfig(envMap(map[string]string{
			"JWT_SECRET":           "secret",
			"PORT":                 "3000",
			"TOKEN_SOURCE":         "path",
			"UPSTREAM_TIMEOUT":     "5s",
			"CORS_ALLOWED_ORIGINS": "http://localhost:3000, https://example.com",
		}))
		if err != nil {
			t.Fatalf("LoadConfig()でエラーが発生: %v", err)
		}
		if cfg.Port != "3000" {
			t.Errorf("Port = %q, want %q", cfg.Port, "3000")
		}
		if cfg.TokenSource != SourcePath {
			t.Errorf("TokenSource = %q, want %q", cfg.TokenSource, SourcePath)
		}
		if cfg.UpstreamTimeout != 5*time.Second {
			t.Errorf("UpstreamTimeout = %v, want 5s", cfg.UpstreamTimeout)
		}
		want := []string{"http://localhost:3000", "https://example.com"}
		if !slices.Equal(cfg.CORSAllowedOrigins, want) {
			t.Errorf("CORSAllowedOrigins = %v, want %v", cfg.CORSAllowedOrigins, want)
		}
	})

	t.Run("不正な値はエラーになること", func(t *testing.T) {
		t.Parallel()

		for _, env := range []map[string]string{
			{"JWT_SECRET": "secret", "TOKEN_SOURCE": "cookie"},
			{"JWT_SECRET": "secret", "UPSTREAM_TIMEOUT": "soon"},
			{"JWT_SECRET": "secret", "MAX_BODY_BYTES": "big"},
		} {
			if _, err := LoadConfig(envMap(env)); err == nil {
				t.Errorf("LoadConfig(%v) がエラーを返さなかった", env)
			}
		}
	})
}

// TestBuildRegistry はBuildRegistry関数を検証する。
func TestBuildRegistry(t *testing.T) {
	t.Parallel()

	t.Run("すべての定義元を後勝ちで統合すること", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		yamlPath := filepath.Join(dir, "services.yaml")
		if err := os.WriteFile(yamlPath, []byte("services:\n  node-service: http://file:8082\n  go-service: http://file:8081\n"), 0o600); err != nil {
			t.Fatalf("ファイルの書き込みに失敗: %v", err)
		}

		dbPath := filepath.Join(dir, "services.db")
		db, err := sql.Open("sqlite", dbPath)
		if err != nil {
			t.Fatalf("DB接続に失敗: %v", err)
		}
		if _, err := db.Exec(`CREATE TABLE services (name TEXT PRIMARY KEY, base_url TEXT NOT NULL, created_at DATETIME NOT NULL DEFAULT (datetime('now')))`); err != nil {
			t.Fatalf("テーブル作成に失敗: %v", err)
		}
		if _, err := db.Exec(`INSERT INTO services (name, base_url) VALUES ('go-service', 'http://db:8081')`); err != nil {
			t.Fatalf("テストデータの挿入に失敗: %v", err)
		}
		db.Close()

		reg, err := BuildRegistry(context.Background(), Config{
			Services:     "auth-service=http://inline:8080,go-service=http://inline:8081",
			ServicesFile: yamlPath,
			ServicesDB:   dbPath,
		})
		if err != nil {
			t.Fatalf("BuildRegistry()でエラーが発生: %v", err)
		}

		want := map[string]string{
			"auth-service": "http://inline:8080",
			"node-service": "http://file:8082",
			"go-service":   "http://db:8081",
		}
		for name, baseURL := range want {
			got, err := reg.Resolve(name)
			if err != nil {
				t.Errorf("Resolve(%q)でエラーが発生: %v", name, err)
				continue
			}
			if got != baseURL {
				t.Errorf("Resolve(%q) = %q, want %q", name, got, baseURL)
			}
		}
	})

	t.Run("不正なベースURLはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := BuildRegistry(context.Background(), Config{Services: "svc=localhost:8080"}); err == nil {
			t.Error("エラーが返されなかった")
		}
	})
}
