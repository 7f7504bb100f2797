package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// TestNew はNew関数を検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("指定したレベルでロガーが生成されること", func(t *testing.T) {
		t.Parallel()

		for _, format := range []string{"json", "console"} {
			logger, err := New("warn", format)
			if err != nil {
				t.Fatalf("New(%q)でエラーが発生: %v", format, err)
			}
			if logger.Core().Enabled(zapcore.InfoLevel) {
				t.Errorf("%s: infoレベルが有効になっている", format)
			}
			if !logger.Core().Enabled(zapcore.WarnLevel) {
				t.Errorf("%s: warnレベルが無効になっている", format)
			}
		}
	})

	t.Run("不正なレベルや形式はエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := New("verbose", "json"); err == nil {
			t.Error("不正なレベルでエラーが返されなかった")
		}
		if _, err := New("info", "xml"); err == nil {
			t.Error("不正な形式でエラーが返されなかった")
		}
	})
}
