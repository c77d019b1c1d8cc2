package security

import "testing"

// TestValidateURL URLの静的検証
func TestValidateURL(t *testing.T) {
	guard := NewSSRFGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"正常なhttps URL", "https://www.youtube.com/feeds/videos.xml?channel_id=UC123", false},
		{"正常なhttp URL", "http://example.com/feed", false},
		{"空のURL", "", true},
		{"不正なスキーム", "ftp://example.com/feed", true},
		{"ファイルスキーム", "file:///etc/passwd", true},
		{"ホストなし", "https://", true},
		{"localhost", "https://localhost/feed", true},
		{"LOCALHOSTの大文字", "https://LOCALHOST/feed", true},
		{"ループバックIP", "https://127.0.0.1/feed", true},
		{"プライベートIP 10系", "https://10.0.0.1/feed", true},
		{"プライベートIP 172系", "https://172.16.0.1/feed", true},
		{"プライベートIP 192系", "https://192.168.1.1/feed", true},
		{"クラウドメタデータIP", "http://169.254.169.254/latest/meta-data/", true},
		{"IPv6ループバック", "https://[::1]/feed", true},
		{"パブリックIP", "https://93.184.216.34/feed", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

// TestNewSafeClient SSRF防止クライアントが生成できること
func TestNewSafeClient(t *testing.T) {
	guard := NewSSRFGuard()
	client := guard.NewSafeClient(0)
	if client == nil {
		t.Fatal("クライアントがnil")
	}
}
