// Package security は記事本文のサニタイズと外部URLの検証を提供する。
package security

import "github.com/microcosm-cc/bluemonday"

// ContentSanitizer は記事本文のHTMLを保存前に無害化する。
type ContentSanitizer interface {
	// Sanitize は許可リストにない要素と属性を除去したHTMLを返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// PostSanitizer はブログ記事本文向けのbluemondayポリシー。
// 並行利用可能。
type PostSanitizer struct {
	policy *bluemonday.Policy
}

var _ ContentSanitizer = (*PostSanitizer)(nil)

// NewPostSanitizer は記事本文用のポリシーを構築する。
//   - 見出し(h2〜h4)、段落、リスト、引用、表、figureを許可
//   - URLは相対URL（商品ページへの内部リンク）と http, https, mailto のみ
//   - 外部リンクには target="_blank" と rel="noopener noreferrer" を付与
//   - script, iframe, style要素とon*属性, style属性は除去
func NewPostSanitizer() *PostSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"h2", "h3", "h4",
		"p", "br", "hr",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "b", "i", "small",
		"figure", "figcaption",
		"table", "thead", "tbody", "tr", "th", "td",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("http", "https", "mailto")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnFullyQualifiedLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowAttrs("width", "height").Matching(bluemonday.Integer).OnElements("img")

	p.AllowAttrs("colspan", "rowspan").Matching(bluemonday.Integer).OnElements("th", "td")

	return &PostSanitizer{policy: p}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *PostSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
