package transcript

import "testing"

// TestExtractVideoID 各入力形式から動画IDが抽出できること
func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantID string
		wantOK bool
	}{
		{"裸の11文字ID", "dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"標準watch URL", "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"追加クエリ付きwatch URL", "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s", "dQw4w9WgXcQ", true},
		{"モバイルサブドメイン", "https://m.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"短縮URL", "https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"埋め込みURL", "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"ショートURL", "https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"旧式vパス", "https://www.youtube.com/v/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"前後の空白", "  dQw4w9WgXcQ  ", "dQw4w9WgXcQ", true},
		{"空文字列", "", "", false},
		{"短すぎるID", "abc123", "", false},
		{"長すぎるID", "dQw4w9WgXcQextra", "", false},
		{"不正な文字を含むID", "dQw4w9WgX!Q", "", false},
		{"vパラメータなしのURL", "https://www.youtube.com/watch?list=PL123", "", false},
		{"無関係なドメイン", "https://example.com/watch?v=dQw4w9WgXcQ", "", false},
		{"偽サフィックスドメイン", "https://youtu.be.evil.com/dQw4w9WgXcQ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ExtractVideoID(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
		})
	}
}
