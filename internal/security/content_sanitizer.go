// Package security はユーザー入力の無害化と外部URLアクセスの安全対策を提供する。
//
// 学習ログ本文などユーザーが入力したテキストは保存前にbluemondayの許可リストで
// サニタイズする。リソースURLのメタデータ取得にはSSRF対策済みのクライアントを使う。
package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はユーザー入力テキストのサニタイズ機能を定義する。
type ContentSanitizerService interface {
	// SanitizeRich はログ本文のような装飾可能なテキストを許可タグのみに絞り込む。
	// 同一入力に対して常に同一出力を返す。
	SanitizeRich(raw string) string

	// SanitizePlain はタイトル・コメント・自己紹介などのプレーンテキストから
	// すべてのタグを取り除き、前後の空白を除去する。
	SanitizePlain(raw string) string
}

type contentSanitizer struct {
	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceを生成する。
// リッチテキストのポリシー:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, h2, h3, img
//   - script, iframe, style と on*イベント属性は除去
//   - aのhrefとimgのsrcはhttpsの絶対URLのみ
//   - aには target="_blank" と rel="noopener noreferrer" を付与
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "h2", "h3",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("alt").OnElements("img")
	p.AllowAttrs("src").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return u.Host != ""
	})

	return &contentSanitizer{
		rich:  p,
		plain: bluemonday.StrictPolicy(),
	}
}

// SanitizeRich は許可リストのタグのみを残す。
func (s *contentSanitizer) SanitizeRich(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(s.rich.Sanitize(raw))
}

// SanitizePlain はタグをすべて除去する。
// StrictPolicyがエスケープした文字実体は元に戻して保存する（表示側でエスケープされる）。
func (s *contentSanitizer) SanitizePlain(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.plain.Sanitize(raw)))
}
