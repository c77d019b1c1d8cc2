package security

import (
	"strings"
	"testing"
)

// TestStripTags メタデータからHTMLタグが全て除去されること
func TestStripTags(t *testing.T) {
	s := NewContentSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキスト", "NVDA Earnings Breakdown", "NVDA Earnings Breakdown"},
		{"タグの除去", "<b>NVDA</b> Earnings <script>alert(1)</script>", "NVDA Earnings"},
		{"前後の空白除去", "  Market Update  ", "Market Update"},
		{"空文字列", "", ""},
		{"イベント属性付きタグ", `<img src=x onerror=alert(1)>title`, "title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.StripTags(tt.input); got != tt.want {
				t.Errorf("StripTags(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitizeArticle 生成記事HTMLのサニタイズ
func TestSanitizeArticle(t *testing.T) {
	s := NewContentSanitizer()

	input := `<h2>Summary</h2><p>NVDA is <strong>up</strong>.</p><script>alert(1)</script><iframe src="https://evil.example"></iframe>`
	got := s.SanitizeArticle(input)

	if !strings.Contains(got, "<h2>Summary</h2>") {
		t.Errorf("h2が保持されるべき: %q", got)
	}
	if !strings.Contains(got, "<strong>up</strong>") {
		t.Errorf("strongが保持されるべき: %q", got)
	}
	if strings.Contains(got, "script") || strings.Contains(got, "iframe") {
		t.Errorf("危険なタグが除去されるべき: %q", got)
	}
}

// TestSanitizeArticleLinks aタグにrel属性とtarget属性が付与されること
func TestSanitizeArticleLinks(t *testing.T) {
	s := NewContentSanitizer()

	got := s.SanitizeArticle(`<p><a href="https://example.com/report">report</a></p>`)
	if !strings.Contains(got, `target="_blank"`) {
		t.Errorf("target=_blankが付与されるべき: %q", got)
	}
	if !strings.Contains(got, "noopener") && !strings.Contains(got, "noreferrer") {
		t.Errorf("relが付与されるべき: %q", got)
	}

	// javascriptスキームは除去される
	got = s.SanitizeArticle(`<a href="javascript:alert(1)">x</a>`)
	if strings.Contains(got, "javascript") {
		t.Errorf("javascriptスキームが除去されるべき: %q", got)
	}
}

// TestSanitizeIdempotent 同一入力に対して常に同一出力であること
func TestSanitizeIdempotent(t *testing.T) {
	s := NewContentSanitizer()
	input := `<h2>Title</h2><p>body <em>text</em></p>`
	once := s.SanitizeArticle(input)
	twice := s.SanitizeArticle(once)
	if once != twice {
		t.Errorf("冪等であるべき: %q != %q", once, twice)
	}
}
