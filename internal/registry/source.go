package registry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseInline は "name=url,name=url" 形式の定義を解析する。
// 空文字列の場合は空の対応表を返す。
func ParseInline(defs string) (map[string]string, error) {
	entries := make(map[string]string)
	for pair := range strings.SplitSeq(defs, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, baseURL, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("サービス定義の形式が不正です（name=url）: %q", pair)
		}
		entries[strings.TrimSpace(name)] = strings.TrimSpace(baseURL)
	}
	return entries, nil
}

// fileConfig はサービス定義ファイルの構造。
//
//	services:
//	  go-service: http://localhost:8081
//	  node-service: http://localhost:8082
type fileConfig struct {
	Services map[string]string `yaml:"services"`
}

// LoadYAML はYAMLファイルからサービス定義を読み込む。
func LoadYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("サービス定義ファイルの読み込みに失敗: %w", err)
	}
	return parseYAML(data)
}

func parseYAML(data []byte) (map[string]string, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("サービス定義ファイルの解析に失敗: %w", err)
	}
	if cfg.Services == nil {
		return map[string]string{}, nil
	}
	return cfg.Services, nil
}

// Merge は複数の定義を順に重ね合わせる。同じサービス名は後の定義が優先される。
func Merge(tables ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, table := range tables {
		for name, baseURL := range table {
			merged[name] = baseURL
		}
	}
	return merged
}
