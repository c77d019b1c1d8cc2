package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type mockSessionCleaner struct {
	called  bool
	now     time.Time
	deleted int64
	err     error
}

func (m *mockSessionCleaner) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	m.called = true
	m.now = now
	return m.deleted, m.err
}

type mockContentResetter struct {
	called    bool
	olderThan time.Duration
	reset     int64
	err       error
}

func (m *mockContentResetter) ResetStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	m.called = true
	m.olderThan = olderThan
	return m.reset, m.err
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// logEntries はバッファ内のJSONログ行を復元する。
func logEntries(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewJob_DefaultStaleAfter(t *testing.T) {
	var buf bytes.Buffer
	job := NewJob(&mockSessionCleaner{}, &mockContentResetter{}, newTestLogger(&buf))

	if job.StaleAfter != 30*time.Minute {
		t.Errorf("StaleAfter = %v, want 30m", job.StaleAfter)
	}
}

func TestJob_Run_CallsBothRepositories(t *testing.T) {
	var buf bytes.Buffer
	sessions := &mockSessionCleaner{deleted: 3}
	contents := &mockContentResetter{reset: 1}
	job := NewJob(sessions, contents, newTestLogger(&buf))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if !sessions.called {
		t.Error("DeleteExpired が呼び出されなかった")
	}
	if !contents.called {
		t.Error("ResetStaleProcessing が呼び出されなかった")
	}
	if contents.olderThan != 30*time.Minute {
		t.Errorf("olderThan = %v, want 30m", contents.olderThan)
	}
}

func TestJob_Run_LogsCounts(t *testing.T) {
	var buf bytes.Buffer
	job := NewJob(&mockSessionCleaner{deleted: 42}, &mockContentResetter{reset: 7}, newTestLogger(&buf))

	_ = job.Run(context.Background())

	found := false
	for _, entry := range logEntries(t, &buf) {
		if entry["expired_sessions"] == float64(42) && entry["stale_contents"] == float64(7) {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("ログに削除件数が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestJob_Run_SessionDeleteFailure(t *testing.T) {
	var buf bytes.Buffer
	sessions := &mockSessionCleaner{err: errors.New("connection refused")}
	contents := &mockContentResetter{}
	job := NewJob(sessions, contents, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("セッション削除失敗時に Run() はエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "期限切れセッションの削除に失敗") {
		t.Errorf("エラーメッセージが期待と異なる: %v", err)
	}
	// セッション削除に失敗したらリセット処理は実行しない
	if contents.called {
		t.Error("セッション削除失敗後に ResetStaleProcessing が呼び出された")
	}
}

func TestJob_Run_StaleResetFailure(t *testing.T) {
	var buf bytes.Buffer
	job := NewJob(&mockSessionCleaner{}, &mockContentResetter{err: errors.New("timeout")}, newTestLogger(&buf))

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("停滞レコード復旧失敗時に Run() はエラーを返すべき")
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	job := NewJob(&mockSessionCleaner{}, &mockContentResetter{}, newTestLogger(&buf))

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
}

func TestJob_Run_CustomStaleAfter(t *testing.T) {
	var buf bytes.Buffer
	contents := &mockContentResetter{}
	job := NewJob(&mockSessionCleaner{}, contents, newTestLogger(&buf))
	job.StaleAfter = time.Hour

	_ = job.Run(context.Background())

	if contents.olderThan != time.Hour {
		t.Errorf("olderThan = %v, want 1h", contents.olderThan)
	}
}

func TestJob_Start_StopsOnContextCancel(t *testing.T) {
	var buf bytes.Buffer
	job := NewJob(&mockSessionCleaner{}, &mockContentResetter{}, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後にジョブが停止しない")
	}
}
