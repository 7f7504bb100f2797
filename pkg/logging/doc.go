// Package logging はzapロガーの生成を提供する。
package logging
