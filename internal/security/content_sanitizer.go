// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は外部から取り込んだテキストをサニタイズし、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// 視聴ページから抽出したメタデータ（タイトル、チャンネル名）と、
// 抽出コラボレーターが生成したコンテンツの両方が対象となる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はテキストのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// StripTags はHTMLタグを全て除去し、プレーンテキストのみを返す。
	// スクレイプしたエピソードタイトルやチャンネル名の保存前に使用する。
	// 同一入力に対して常に同一出力を返す（冪等）。
	StripTags(raw string) string

	// SanitizeArticle は生成された記事HTMLをサニタイズして安全なHTMLを返す。
	// 見出しと基本的な書式タグのみを通過させ、script等は除去する。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	SanitizeArticle(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	strict  *bluemonday.Policy
	article *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// 記事ポリシーの内容:
//   - 許可タグ: h2, h3, p, br, a, ul, ol, li, blockquote, pre, code, strong, em
//   - script, iframe, style および全てのon*イベント属性は許可リスト外のため除去される
//   - aタグ: href許可、target="_blank" と rel="noreferrer noopener" を強制付与
func NewContentSanitizer() *contentSanitizer {
	article := bluemonday.NewPolicy()
	article.AllowElements(
		"h2", "h3", "p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)
	article.AllowAttrs("href").OnElements("a")
	article.AllowStandardURLs()
	article.AllowRelativeURLs(false)
	article.AddTargetBlankToFullyQualifiedLinks(true)
	article.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		strict:  bluemonday.StrictPolicy(),
		article: article,
	}
}

// StripTags はHTMLタグを全て除去し、プレーンテキストのみを返す。
func (s *contentSanitizer) StripTags(raw string) string {
	return strings.TrimSpace(s.strict.Sanitize(raw))
}

// SanitizeArticle は生成された記事HTMLをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) SanitizeArticle(rawHTML string) string {
	return s.article.Sanitize(rawHTML)
}
