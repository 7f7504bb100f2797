// Package registry はサービス名からバックエンドのベースURLを解決する
// 静的なサービスレジストリを提供する。
//
// レジストリは起動時に一度だけ構築され、その後は変更されない。
// 構築元として、環境変数のインライン定義、YAMLファイル、SQLiteの
// services テーブルを扱う。
package registry
