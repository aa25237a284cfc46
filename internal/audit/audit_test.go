package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gzhole/toolwarden/internal/patterns"
	"github.com/gzhole/toolwarden/internal/rpc"
)

var fixedTime = time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

func newBuilder() *Builder {
	return NewBuilder(patterns.Default(),
		WithClock(func() time.Time { return fixedTime }),
		WithIDs(func() string { return "rec-1" }))
}

func envelope(t *testing.T, doc string) *rpc.Envelope {
	t.Helper()
	env, err := rpc.ParseEnvelope([]byte(doc))
	require.NoError(t, err)
	return env
}

var session = rpc.Session{
	SessionID:        "sess-9",
	ClientIP:         "10.0.0.7",
	UserRole:         "user",
	ProcessingTimeMS: "12",
	MemoryUsageMB:    "unknown",
}

func TestBuild_Record(t *testing.T) {
	env := envelope(t, `{"request":{"method":"read_file","params":{"path":"/tmp/a.txt"},"id":3},
		"response":{"result":{"filename":"a.txt","text":"see https://example.com"}}}`)

	rec, err := newBuilder().Build(env, session)
	require.NoError(t, err)

	assert.Equal(t, Version, rec.AuditVersion)
	assert.Equal(t, "rec-1", rec.RecordID)
	assert.Equal(t, "2025-06-01T12:30:00Z", rec.Timestamp)
	assert.Equal(t, EventType, rec.EventType)
	assert.Equal(t, "sess-9", rec.SessionID)
	assert.Equal(t, env.Request.Hash(), rec.RequestHash)
	assert.Len(t, rec.RequestHash, rpc.HashLength)
	assert.Equal(t, "read_file", rec.Request.Method)
	assert.Len(t, rec.Request.ParamsHash, rpc.HashLength)
	assert.Equal(t, json.Number("3"), rec.Request.ID)

	assert.True(t, rec.Response.Success)
	assert.Nil(t, rec.Response.ErrorType)
	assert.True(t, rec.Analysis.ContainsFiles)
	assert.True(t, rec.Analysis.ContainsURLs)
	assert.Equal(t, []string{TagFileOperation, TagFileContent, TagURLContent}, rec.Tags)
	assert.Equal(t, "12", rec.Metrics.ProcessingTimeMS)
}

func TestBuild_ErrorResponse(t *testing.T) {
	env := envelope(t, `{"request":{"method":"execute_command"},"response":{"error":{"code":-32000,"message":"boom"}}}`)

	rec, err := newBuilder().Build(env, session)
	require.NoError(t, err)

	assert.False(t, rec.Response.Success)
	assert.Equal(t, json.Number("-32000"), rec.Response.ErrorType)
	assert.Contains(t, rec.Tags, TagSystemOperation)
	assert.Contains(t, rec.Tags, TagErrorResponse)
}

func TestBuild_Sensitivity(t *testing.T) {
	tests := []struct {
		response string
		want     patterns.Sensitivity
	}{
		{`{"result":"your api_key is ready"}`, patterns.SensitivityHigh},
		{`{"result":"email sent"}`, patterns.SensitivityMedium},
		{`{"result":"42"}`, patterns.SensitivityLow},
		{`{}`, patterns.SensitivityLow},
	}
	for _, tt := range tests {
		env := envelope(t, `{"request":{"method":"calc"},"response":`+tt.response+`}`)
		rec, err := newBuilder().Build(env, session)
		require.NoError(t, err)
		assert.Equal(t, tt.want, rec.Analysis.SensitivityLevel, tt.response)
		assert.Equal(t, tt.want, rec.Response.SensitivityLevel)
	}
}

func TestBuild_LargeResponseTag(t *testing.T) {
	big := strings.Repeat("z", LargeResponseBytes+1)
	env := &rpc.Envelope{Request: mustRequest(t, `{"method":"calc"}`), Response: rpc.NewToolResponse(map[string]any{"result": big})}

	rec, err := newBuilder().Build(env, session)
	require.NoError(t, err)
	assert.Contains(t, rec.Tags, TagLargeResponse)
}

func TestBuild_DoesNotMutateResponse(t *testing.T) {
	env := envelope(t, `{"request":{"method":"m"},"response":{"result":"password=hunter22"}}`)
	before, err := rpc.CanonicalString(env.Response.Document())
	require.NoError(t, err)

	_, err = newBuilder().Build(env, session)
	require.NoError(t, err)

	after, err := rpc.CanonicalString(env.Response.Document())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func mustRequest(t *testing.T, doc string) *rpc.ToolRequest {
	t.Helper()
	req, err := rpc.ParseRequest([]byte(doc))
	require.NoError(t, err)
	return req
}

func TestEvaluate_Alerts(t *testing.T) {
	rec := Record{RecordID: "r", Timestamp: "t", Analysis: Analysis{SensitivityLevel: patterns.SensitivityLow}}
	assert.Nil(t, Evaluate(rec))

	rec.Analysis.SensitivityLevel = patterns.SensitivityHigh
	rec.Analysis.DataSize = AlertResponseBytes + 1
	rec.Analysis.ExecutionIndicators = []string{"stdout", "exit_code"}

	got := Evaluate(rec)
	require.NotNil(t, got)
	assert.Equal(t, "r", got.AuditID)
	require.Len(t, got.Alerts, 3)
	assert.Equal(t, AlertSensitiveData, got.Alerts[0].Type)
	assert.Equal(t, SeverityHigh, got.Alerts[0].Severity)
	assert.Equal(t, AlertLargeResponse, got.Alerts[1].Type)
	assert.Equal(t, AlertExecution, got.Alerts[2].Type)
	assert.Contains(t, got.Alerts[2].Message, "stdout, exit_code")
}

func TestEvaluate_ExecutionOnly(t *testing.T) {
	env := envelope(t, `{"request":{"method":"run"},"response":{"result":{"stdout":"ok","exit_code":0}}}`)
	rec, err := newBuilder().Build(env, session)
	require.NoError(t, err)

	got := Evaluate(rec)
	require.NotNil(t, got)
	types := []string{}
	for _, a := range got.Alerts {
		types = append(types, a.Type)
	}
	assert.Contains(t, types, AlertExecution)
}

func TestStore_AppendPartitions(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	require.NoError(t, err)

	low := Record{RecordID: "a", Timestamp: "2025-06-01T10:00:00Z", SessionID: "s1", Analysis: Analysis{SensitivityLevel: patterns.SensitivityLow}}
	high := Record{RecordID: "b", Timestamp: "2025-06-01T11:00:00Z", SessionID: "s2", Analysis: Analysis{SensitivityLevel: patterns.SensitivityHigh}}
	nextDay := Record{RecordID: "c", Timestamp: "2025-06-02T00:00:01Z", SessionID: "s1", Analysis: Analysis{SensitivityLevel: patterns.SensitivityMedium}}

	for _, r := range []Record{low, high, nextDay} {
		require.NoError(t, store.Append(r))
	}

	assert.FileExists(t, filepath.Join(dir, "audit-2025-06-01.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "audit-2025-06-02.jsonl"))
	assert.FileExists(t, filepath.Join(dir, "sensitive-2025-06-01.jsonl"))
	assert.NoFileExists(t, filepath.Join(dir, "sensitive-2025-06-02.jsonl"))

	all, skipped, err := Read(dir, Query{})
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].RecordID, all[1].RecordID, all[2].RecordID})

	sensitive, _, err := Read(dir, Query{Sensitive: true})
	require.NoError(t, err)
	require.Len(t, sensitive, 1)
	assert.Equal(t, "b", sensitive[0].RecordID)

	day, _, err := Read(dir, Query{Date: "2025-06-02"})
	require.NoError(t, err)
	require.Len(t, day, 1)

	bySession, _, err := Read(dir, Query{SessionID: "s1", Last: 1})
	require.NoError(t, err)
	require.Len(t, bySession, 1)
	assert.Equal(t, "c", bySession[0].RecordID)
}

func TestStore_ConcurrentAppendsStayWhole(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Append(Record{RecordID: strings.Repeat("x", 2000), Timestamp: "2025-06-01T10:00:00Z"})
		}()
	}
	wg.Wait()

	recs, skipped, err := Read(dir, Query{})
	require.NoError(t, err)
	assert.Zero(t, skipped)
	assert.Len(t, recs, 50)
}

func TestRead_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	content := `{"record_id":"ok","timestamp":"2025-06-01T10:00:00Z"}` + "\nnot json\n\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "audit-2025-06-01.jsonl"), []byte(content), 0600))

	recs, skipped, err := Read(dir, Query{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, 1, skipped)
}

func TestRead_InvalidDate(t *testing.T) {
	_, _, err := Read(t.TempDir(), Query{Date: "June 1"})
	require.Error(t, err)
}

func TestRead_MissingDir(t *testing.T) {
	recs, _, err := Read(filepath.Join(t.TempDir(), "absent"), Query{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestOpenStore_Fallback(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0600))
	fallback := filepath.Join(t.TempDir(), "audit")

	store, err := OpenStore(filepath.Join(blocker, "sub"), fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, store.Dir())

	_, err = OpenStore(filepath.Join(blocker, "sub"))
	require.Error(t, err)
}

func TestForwarder(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := NewForwarder(SIEMConfig{AgentName: "gw-1"}, zap.New(core))

	rec := Record{RecordID: "rec-7", Timestamp: "2025-06-01T10:00:00Z", Tags: []string{}}
	ev, err := f.Event(rec)
	require.NoError(t, err)
	assert.Equal(t, "gw-1", ev.Agent.Name)
	assert.Equal(t, DefaultManagerName, ev.Manager.Name)
	assert.Equal(t, "rec-7", ev.ID)
	assert.Equal(t, DefaultDecoder, ev.Decoder.Name)

	var full Record
	require.NoError(t, json.Unmarshal([]byte(ev.FullLog), &full))
	assert.Equal(t, "rec-7", full.RecordID)

	require.NoError(t, f.Forward(rec))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "siem event", logs.All()[0].Message)
}

func TestSummarize(t *testing.T) {
	recs := []Record{
		{Timestamp: "t1", Request: RequestSummary{Method: "read_file"}, Analysis: Analysis{SensitivityLevel: patterns.SensitivityHigh}, Tags: []string{TagSensitiveData}},
		{Timestamp: "t2", Request: RequestSummary{Method: "read_file"}, Analysis: Analysis{SensitivityLevel: patterns.SensitivityLow, HasError: true}, Tags: []string{TagErrorResponse}},
		{Timestamp: "t3", Request: RequestSummary{Method: "calc"}, Analysis: Analysis{SensitivityLevel: patterns.SensitivityLow}},
	}
	s := Summarize(recs)

	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Errors)
	assert.Equal(t, 1, s.Alerts)
	assert.Equal(t, 2, s.BySensitivity["low"])
	assert.Equal(t, "t1", s.First)
	assert.Equal(t, "t3", s.Last)
	assert.Equal(t, []Counted{{"read_file", 2}, {"calc", 1}}, Top(s.ByMethod, 0))
}
