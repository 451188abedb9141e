package progress_test

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/deepresearch/research-agent/internal/progress"
	"github.com/deepresearch/research-agent/pkg/models"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func observe(t *testing.T, raw ...string) []progress.Observed {
	t.Helper()
	out := make([]progress.Observed, len(raw))
	for i, s := range raw {
		ev, err := models.ParseEvent([]byte(s))
		if err != nil {
			t.Fatalf("ParseEvent(%s): %v", s, err)
		}
		out[i] = progress.Observed{Event: ev, ReceivedAt: t0.Add(time.Duration(i) * time.Second)}
	}
	return out
}

const (
	searchCall   = `{"type":"assistant","message":{"content":[{"type":"text","text":"Searching."},{"type":"tool_use","id":"t1","name":"mcp__exa-search__search","input":{"query":"transformers"}}]}}`
	searchResult = `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"3 results"}]}}`
	fetchCall    = `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t2","name":"mcp__exa-search__get_contents","input":{"ids":["a"]}}]}}`
	fetchResult  = `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t2","content":[{"type":"text","text":"doc"}]}]}}`
	writeCall    = `{"type":"assistant","message":{"content":[{"type":"tool_use","id":"t3","name":"Write","input":{"file_path":"report.md"}}]}}`
	writeResult  = `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t3","content":"ok"}]}}`
	resultEvent  = `{"type":"result","subtype":"success","result":"# Report","session_id":"s1","duration_ms":65000,"total_cost_usd":0.1234,"num_turns":7}`
)

func TestCorrelation_ResultAfterCall(t *testing.T) {
	calls := progress.ToolCalls(observe(t, searchCall, searchResult))
	if len(calls) != 1 {
		t.Fatalf("len(calls) = %d", len(calls))
	}
	c := calls[0]
	if c.ID != "t1" || !c.Completed || string(c.Result) != `"3 results"` {
		t.Errorf("call = %+v", c)
	}
	if !c.FirstSeenAt.Equal(t0) {
		t.Errorf("FirstSeenAt = %v, want %v", c.FirstSeenAt, t0)
	}
}

func TestCorrelation_ResultBeforeCall(t *testing.T) {
	calls := progress.ToolCalls(observe(t, searchResult, searchCall))
	if len(calls) != 1 || !calls[0].Completed {
		t.Errorf("calls = %+v, want completed t1", calls)
	}
}

func TestCorrelation_FlatVariantsAndErrors(t *testing.T) {
	calls := progress.ToolCalls(observe(t,
		`{"type":"tool_call","tool_name":"WebFetch","tool_call_id":"w1","input":{"url":"https://example.com"}}`,
		`{"type":"tool_result","tool_call_id":"w1","result":"404","isError":true}`,
	))
	if len(calls) != 1 || !calls[0].Completed || !calls[0].IsError {
		t.Errorf("calls = %+v", calls)
	}
}

func TestCorrelation_SurvivesMisshapenField(t *testing.T) {
	events := observe(t,
		`{"type":"assistant","error":"rate_limit","message":{"content":[{"type":"tool_use","id":"t1","name":"WebSearch","input":{"query":"x"}}]}}`,
		`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"hits"}]}}`,
	)
	calls := progress.ToolCalls(events)
	if len(calls) != 1 || calls[0].ID != "t1" || !calls[0].Completed {
		t.Errorf("ToolCalls() = %+v, want t1 completed", calls)
	}
}

func TestCorrelation_DuplicateResultsLastWins(t *testing.T) {
	calls := progress.ToolCalls(observe(t,
		searchCall,
		`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"first"}]}}`,
		`{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t1","content":"second","is_error":true}]}}`,
	))
	if string(calls[0].Result) != `"second"` || !calls[0].IsError {
		t.Errorf("call = %+v", calls[0])
	}
}

func TestFallbackIDs(t *testing.T) {
	events := observe(t,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"x"},{"type":"tool_use","name":"Read"}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Read","input":null}]}}`,
	)
	calls := progress.ToolCalls(events)
	if len(calls) != 2 {
		t.Fatalf("len(calls) = %d", len(calls))
	}
	if calls[0].ID != "Read-0-1" || calls[1].ID != "Read-1-0" {
		t.Errorf("ids = %q, %q", calls[0].ID, calls[1].ID)
	}
	if string(calls[1].Input) != "{}" {
		t.Errorf("Input = %s, want {}", calls[1].Input)
	}

	again := progress.ToolCalls(events)
	if !reflect.DeepEqual(calls, again) {
		t.Error("fallback ids must be stable across reductions")
	}
}

func TestReduce_Idempotent(t *testing.T) {
	events := observe(t, `{"type":"system","subtype":"init","session_id":"s1"}`, searchCall, searchResult, fetchCall, resultEvent)
	tables := progress.DefaultTables()

	a, _ := json.Marshal(progress.Reduce(events, true, tables))
	b, _ := json.Marshal(progress.Reduce(events, true, tables))
	if string(a) != string(b) {
		t.Errorf("reductions differ:\n%s\n%s", a, b)
	}
}

func TestStage(t *testing.T) {
	tables := progress.DefaultTables()
	tests := []struct {
		name     string
		events   []string
		inFlight bool
		want     string
	}{
		{"nothing yet, running", nil, true, progress.StageInitializing},
		{"nothing yet, idle", nil, false, progress.StageReady},
		{"search running", []string{searchCall}, true, "Searching with Exa neural search"},
		{"unknown tool running", []string{`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"x","name":"Summarize"}]}}`}, true, "Using Summarize"},
		{"non-search completed", []string{`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"x","name":"TodoWrite"}]}}`, `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"x"}]}}`}, true, progress.StagePreparing},
		{"search done", []string{searchCall, searchResult}, true, progress.StageAnalyzing},
		{"search done, fetch running", []string{searchCall, searchResult, fetchCall}, true, "Fetching paper contents"},
		{"search and fetch done", []string{searchCall, searchResult, fetchCall, fetchResult}, true, progress.StageSynthesizing},
		{"all done", []string{searchCall, searchResult, fetchCall, fetchResult, writeCall, writeResult}, true, progress.StageFinalizing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := progress.Reduce(observe(t, tt.events...), tt.inFlight, tables)
			if st.Stage != tt.want {
				t.Errorf("Stage = %q, want %q", st.Stage, tt.want)
			}
		})
	}
}

func TestReduce_StatsReportAndEvents(t *testing.T) {
	events := observe(t,
		`{"type":"system","subtype":"init","session_id":"s1"}`,
		searchCall, searchResult,
		fetchCall,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","id":"w","name":"WebSearch","input":{"query":"x"}}]}}`,
		resultEvent,
		`{"type":"result","result":"second report"}`,
		`{"type":"done"}`,
	)
	st := progress.Reduce(events, false, progress.DefaultTables())

	want := progress.Stats{Searches: 2, Fetches: 1, Completed: 1, Total: 3}
	if st.Stats != want {
		t.Errorf("Stats = %+v, want %+v", st.Stats, want)
	}
	if st.Report == nil || st.Report.ReportText() != "# Report" {
		t.Errorf("Report = %+v, want the first result", st.Report)
	}
	if len(st.Events) != 5 {
		t.Errorf("len(Events) = %d, want 5", len(st.Events))
	}
	if st.SessionID != "s1" {
		t.Errorf("SessionID = %q", st.SessionID)
	}
}

func TestTracker(t *testing.T) {
	tr := progress.NewTracker(progress.DefaultTables())

	st := tr.State()
	if st.Stage != progress.StageInitializing {
		t.Errorf("initial stage = %q", st.Stage)
	}

	mustAdd := func(s string) progress.State {
		ev, err := models.ParseEvent([]byte(s))
		if err != nil {
			t.Fatal(err)
		}
		return tr.Add(ev)
	}

	st = mustAdd(searchCall)
	if st.Stage != "Searching with Exa neural search" {
		t.Errorf("stage = %q", st.Stage)
	}
	if st.ToolCalls[0].FirstSeenAt.IsZero() {
		t.Error("Tracker should stamp receive time")
	}
	first := st.ToolCalls[0].FirstSeenAt

	mustAdd(searchResult)
	st = mustAdd(resultEvent)
	if st.Report == nil {
		t.Fatal("report should be set")
	}
	if !st.ToolCalls[0].FirstSeenAt.Equal(first) {
		t.Error("FirstSeenAt must not change after creation")
	}
	if tr.Finished() {
		t.Error("not finished before done")
	}
	mustAdd(`{"type":"done"}`)
	if !tr.Finished() {
		t.Error("finished after done")
	}
}

func TestInputPreview(t *testing.T) {
	long := `{"query":"abcdefghijabcdefghijabcdefghijabcdefghijabcdefghijabcdefghijXYZ"}`
	tests := []struct {
		input string
		want  string
	}{
		{`{"query":"transformers"}`, `"transformers"`},
		{long, `"abcdefghijabcdefghijabcdefghijabcdefghijabcdefghijabcdefghij..."`},
		{`{"file_path":"/tmp/report.md","content":"x"}`, "file_path: /tmp/report.md"},
		{`{"ids":["a","b"],"query":"later"}`, `"later"`},
		{`{"limit":0}`, "View details"},
		{`{}`, "View details"},
		{``, "No input"},
	}
	for _, tt := range tests {
		if got := progress.InputPreview(json.RawMessage(tt.input)); got != tt.want {
			t.Errorf("InputPreview(%s) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestResultPreview(t *testing.T) {
	if got := progress.ResultPreview(json.RawMessage(`"plain"`)); got != "plain" {
		t.Errorf("string result = %q", got)
	}
	if got := progress.ResultPreview(json.RawMessage(`[{"type":"text","text":"a"},{"type":"text","text":"b"}]`)); got != "a\nb" {
		t.Errorf("block result = %q", got)
	}
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	data, _ := json.Marshal(string(long))
	if got := progress.ResultPreview(data); len(got) != 503 {
		t.Errorf("len(preview) = %d, want 503", len(got))
	}
}

func TestFormatting(t *testing.T) {
	if got := progress.FormatDuration(42_500); got != "42s" {
		t.Errorf("FormatDuration(42500) = %q", got)
	}
	if got := progress.FormatDuration(65_000); got != "1m 5s" {
		t.Errorf("FormatDuration(65000) = %q", got)
	}
	if got := progress.FormatCost(0.1234); got != "$0.123" {
		t.Errorf("FormatCost() = %q", got)
	}
	ev, _ := models.ParseEvent([]byte(resultEvent))
	if got := progress.ReportSummary(ev); got != "1m 5s · $0.123 · 7 turns" {
		t.Errorf("ReportSummary() = %q", got)
	}
}
