// 開発・運用向けのトークン発行ツール。
// ゲートウェイと同じ共有シークレットで署名したBearerトークンを標準出力に書き出す。
//
//	JWT_SECRET=secret issuetoken --subject 123
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/nao1215/tokengate/pkg/token"
)

func main() {
	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "issuetoken: %v\n", err)
		os.Exit(1)
	}
}

// run はフラグを解析してトークンを発行し、out に書き出す。
func run(args []string, getenv func(string) string, out io.Writer) error {
	flags := pflag.NewFlagSet("issuetoken", pflag.ContinueOnError)
	subject := flags.StringP("subject", "s", "", "トークンの主体（ユーザーID）")
	secret := flags.String("secret", "", "署名用の共有シークレット（未指定の場合は JWT_SECRET）")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *subject == "" {
		return fmt.Errorf("--subject を指定してください")
	}
	if *secret == "" {
		*secret = getenv("JWT_SECRET")
	}
	if *secret == "" {
		return fmt.Errorf("--secret または JWT_SECRET を指定してください")
	}

	signed, err := token.Issue(*subject, *secret)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, signed)
	return err
}
