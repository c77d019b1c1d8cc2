package transcript

import (
	"encoding/xml"
	"fmt"
	"html"
	"strconv"
	"strings"
)

// CaptionEntry はタイムドテキストの1セグメント。
type CaptionEntry struct {
	Text         string
	StartSeconds float64
	DurSeconds   float64
}

// timedTextXML はYouTubeタイムドテキストXMLのルート要素。
type timedTextXML struct {
	XMLName xml.Name       `xml:"transcript"`
	Texts   []timedTextCue `xml:"text"`
}

type timedTextCue struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Body  string `xml:",chardata"`
}

// parseTimedText はタイムドテキストXMLをセグメント列に変換する。
// HTMLエンティティをデコードし、空のセグメントは除外する。
func parseTimedText(data []byte) ([]CaptionEntry, error) {
	var doc timedTextXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("タイムドテキストXMLの解析に失敗: %w", err)
	}

	entries := make([]CaptionEntry, 0, len(doc.Texts))
	for _, cue := range doc.Texts {
		text := strings.TrimSpace(html.UnescapeString(cue.Body))
		if text == "" {
			continue
		}
		start, _ := strconv.ParseFloat(cue.Start, 64)
		dur, _ := strconv.ParseFloat(cue.Dur, 64)
		entries = append(entries, CaptionEntry{
			Text:         text,
			StartSeconds: start,
			DurSeconds:   dur,
		})
	}
	return entries, nil
}

// joinCaptionText はセグメントのテキストを単一スペースで連結し、
// 連続する空白を1つにまとめて前後の空白を除去する。
func joinCaptionText(entries []CaptionEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Text)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}
