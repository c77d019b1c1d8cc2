// Package transcript はYouTube動画のトランスクリプト取得カスケードを提供する。
// 複数の独立した取得戦略を固定の優先順位で試行し、最初に成功した結果を返す。
package transcript

import (
	"net/url"
	"regexp"
	"strings"
)

// videoIDRE は11文字の動画ID形式。英数字に加えてハイフンとアンダースコアを許容する。
var videoIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// ExtractVideoID は入力文字列から11文字の動画IDを抽出する。
// 裸の11文字ID、watch?v=形式、youtu.be短縮形式、embed/shorts/vパス形式を受け付ける。
// それ以外の入力に対してはfalseを返す。
func ExtractVideoID(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false
	}

	// 裸の11文字ID
	if videoIDRE.MatchString(input) {
		return input, true
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", false
	}

	host := strings.ToLower(u.Hostname())

	switch {
	case host == "youtu.be":
		// 短縮URL: youtu.be/{id}
		id := strings.Trim(u.Path, "/")
		if videoIDRE.MatchString(id) {
			return id, true
		}

	case strings.HasSuffix(host, "youtube.com"):
		// 標準URL: watch?v={id}
		if id := u.Query().Get("v"); videoIDRE.MatchString(id) {
			return id, true
		}
		// パス形式: /embed/{id}, /shorts/{id}, /v/{id}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 {
			switch parts[0] {
			case "embed", "shorts", "v":
				if videoIDRE.MatchString(parts[1]) {
					return parts[1], true
				}
			}
		}
	}

	return "", false
}
