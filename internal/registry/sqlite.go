package registry

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/nao1215/tokengate/pkg/migration"
)

// migrationsFS は services テーブルのマイグレーション。
// 運用者は services テーブルに行を追加してサービスを登録する。
//
//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// OpenSQLite はSQLiteデータベースを開き、サービス定義を読み込んで閉じる。
func OpenSQLite(ctx context.Context, path string) (map[string]string, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	defer db.Close()

	return LoadSQLite(ctx, db)
}

// LoadSQLite は services テーブルからサービス定義を読み込む。
// 未適用のマイグレーションがあれば先に適用する。
func LoadSQLite(ctx context.Context, db *sql.DB) (map[string]string, error) {
	if _, err := migration.Run(ctx, db, migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("スキーマの適用に失敗: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT name, base_url FROM services ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("サービス定義の取得に失敗: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]string)
	for rows.Next() {
		var name, baseURL string
		if err := rows.Scan(&name, &baseURL); err != nil {
			return nil, fmt.Errorf("サービス定義の読み取りに失敗: %w", err)
		}
		entries[name] = baseURL
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("サービス定義の読み取りに失敗: %w", err)
	}
	return entries, nil
}
