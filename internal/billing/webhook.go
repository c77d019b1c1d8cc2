package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// webhookTolerance は署名タイムスタンプの許容ずれ。リプレイ攻撃対策。
const webhookTolerance = 5 * time.Minute

// ErrInvalidSignature はWebhook署名の検証失敗を表す。
var ErrInvalidSignature = errors.New("invalid webhook signature")

// VerifySignature はStripe-Signatureヘッダを検証する。
// ヘッダ形式: t=<unix秒>,v1=<hex署名>[,v1=...]
// 署名は "<t>.<payload>" のHMAC-SHA256。
func VerifySignature(payload []byte, header, secret string, now time.Time) error {
	var timestamp int64
	var signatures []string

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: 不正なタイムスタンプ", ErrInvalidSignature)
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return fmt.Errorf("%w: ヘッダの形式が不正", ErrInvalidSignature)
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > webhookTolerance || age < -webhookTolerance {
		return fmt.Errorf("%w: タイムスタンプが許容範囲外", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return fmt.Errorf("%w: 署名が一致しません", ErrInvalidSignature)
}
