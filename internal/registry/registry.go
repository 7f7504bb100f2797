package registry

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"
)

var (
	// ErrServiceNotFound はサービス名がレジストリに登録されていないことを表す。
	ErrServiceNotFound = errors.New("サービスが登録されていません")
	// ErrInvalidBaseURL はベースURLがスキームとホストを持つ絶対URLでないことを表す。
	ErrInvalidBaseURL = errors.New("ベースURLが不正です")
)

// Registry はサービス名からベースURLへの読み取り専用の対応表。
// New で構築した後は変更されないため、複数のゴルーチンから
// ロックなしで参照できる。
type Registry struct {
	// services はサービス名とベースURLの対応。
	services map[string]string
}

// New は entries から Registry を構築する。
// entries はコピーされるため、呼び出し元が後から変更しても影響しない。
func New(entries map[string]string) (*Registry, error) {
	services := make(map[string]string, len(entries))
	for name, baseURL := range entries {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.New("サービス名が空です")
		}
		if strings.Contains(name, "/") {
			return nil, fmt.Errorf("サービス名にスラッシュは使用できません: %q", name)
		}
		if err := validateBaseURL(baseURL); err != nil {
			return nil, fmt.Errorf("サービス %q: %w", name, err)
		}
		services[name] = baseURL
	}
	return &Registry{services: services}, nil
}

// Resolve はサービス名に対応するベースURLを返す。
// 未登録の場合は ErrServiceNotFound を返す。
func (r *Registry) Resolve(name string) (string, error) {
	baseURL, ok := r.services[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return baseURL, nil
}

// Names は登録済みのサービス名を昇順で返す。
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.services))
}

// Len は登録済みサービスの数を返す。
func (r *Registry) Len() int {
	return len(r.services)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidBaseURL, raw, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: 未対応のスキーム %q", ErrInvalidBaseURL, u.Scheme)
	}
	return nil
}
