package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/research-console/pkg/client"
	"github.com/mikeboe/research-console/pkg/clients"
	"github.com/mikeboe/research-console/pkg/research"
	"github.com/mikeboe/research-console/pkg/research/tools"
	"github.com/mikeboe/research-console/pkg/session"
	"github.com/mikeboe/research-console/pkg/stream"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSearcher struct {
	results map[string][]tools.Paper
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, q string, _ int) ([]tools.Paper, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results[q], nil
}

type fakeReader struct {
	fail map[string]bool
}

func (f *fakeReader) Scrape(_ context.Context, url string) (string, error) {
	if f.fail[url] {
		return "", errors.New("unreachable")
	}
	return "content of " + url, nil
}

// funcLLM answers through fn; system and human are the joined prompt texts.
type funcLLM struct {
	fn func(system, human string, jsonMode bool) (string, error)
}

func (f funcLLM) GenerateContent(_ context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	var system, human string
	for _, m := range msgs {
		for _, p := range m.Parts {
			if t, ok := p.(llms.TextContent); ok {
				if m.Role == llms.ChatMessageTypeSystem {
					system += t.Text
				} else {
					human += t.Text
				}
			}
		}
	}
	out, err := f.fn(system, human, opts.JSONMode)
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: out}}}, nil
}

func (f funcLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPipeline() *Pipeline {
	return &Pipeline{
		LLM: clients.NewCanned(),
		Search: &fakeSearcher{results: map[string][]tools.Paper{
			"qubits":                     {{Title: "A", URL: "https://arxiv.org/abs/1"}, {Title: "B", URL: "https://arxiv.org/abs/2"}},
			"qubits recent developments": {{Title: "A", URL: "https://arxiv.org/abs/1"}, {Title: "C", URL: "https://arxiv.org/abs/3"}},
		}},
		Reader:     &fakeReader{fail: map[string]bool{"https://arxiv.org/abs/3": true}},
		MaxQueries: 3,
	}
}

func collect(t *testing.T, p *Pipeline, topic string) ([]stream.Event, error) {
	t.Helper()
	var events []stream.Event
	err := p.Run(context.Background(), discard(), topic, func(ev stream.Event) error {
		events = append(events, ev)
		return nil
	})
	return events, err
}

func TestPipelineEmitsNodesInOrder(t *testing.T) {
	events, err := collect(t, testPipeline(), "qubits")
	require.NoError(t, err)

	var got []string
	for _, ev := range events {
		if ev.Type == stream.TypeUpdate {
			got = append(got, ev.Node+"|"+ev.Message)
		}
	}
	want := []string{
		"planner|Searching for: qubits",
		"planner|Searching for: qubits recent developments",
		"planner|Searching for: qubits applications",
		"search|Searching...",
		"scrape|Scraping: https://arxiv.org/abs/1",
		"scrape|Scraping: https://arxiv.org/abs/2",
		"analyze_facts|ANALYZING",
		"analyze_trends|ANALYZING",
		"analyze_insights|ANALYZING",
		"synthesize_parallel|SYNTHESIZING",
		"review|✓ Completed: Review",
		"writer|WRITING",
	}
	assert.Equal(t, want, got)

	last := events[len(events)-1]
	require.Equal(t, stream.TypeComplete, last.Type)
	assert.True(t, strings.HasPrefix(last.Report, "# qubits"))
	assert.Contains(t, last.Report, "https://arxiv.org/abs/2")
}

func TestPipelineWithoutSourcesReadsNothing(t *testing.T) {
	p := testPipeline()
	p.Search = &fakeSearcher{err: errors.New("arxiv down")}

	events, err := collect(t, p, "qubits")
	require.NoError(t, err)

	var scrape []string
	for _, ev := range events {
		if ev.Node == NodeScrape {
			scrape = append(scrape, ev.Message)
		}
	}
	assert.Equal(t, []string{"Reading sources..."}, scrape)
}

func TestPlannerFallsBackOnInvalidJSON(t *testing.T) {
	calls := 0
	p := testPipeline()
	p.MaxQueries = 2
	p.LLM = funcLLM{fn: func(system, human string, jsonMode bool) (string, error) {
		if jsonMode {
			calls++
			return "not json", nil
		}
		return "SUFFICIENT", nil
	}}

	events, err := collect(t, p, "qubits")
	require.NoError(t, err)
	assert.Equal(t, maxRetries, calls)
	assert.Equal(t, "Searching for: qubits", events[0].Message)
	assert.Equal(t, "Searching for: qubits explained", events[1].Message)
	assert.Equal(t, NodeSearch, events[2].Node)
}

func TestPlannerCleansQueries(t *testing.T) {
	p := testPipeline()
	p.MaxQueries = 2
	p.LLM = funcLLM{fn: func(_, _ string, jsonMode bool) (string, error) {
		if jsonMode {
			return "```json\n{\"queries\": [\" a \", \"\", \"a\", \"b\", \"c\"]}\n```", nil
		}
		return "text", nil
	}}

	assert.Equal(t, []string{"a", "b"}, p.plan(context.Background(), discard(), "t"))
}

func TestAnalysisFailureIsNotFatal(t *testing.T) {
	p := testPipeline()
	p.LLM = funcLLM{fn: func(system, human string, jsonMode bool) (string, error) {
		switch {
		case jsonMode:
			return `{"queries":["qubits"]}`, nil
		case strings.Contains(system, "analyst"), strings.Contains(system, "specialist"):
			return "", errors.New("quota")
		}
		return "# Report", nil
	}}

	events, err := collect(t, p, "qubits")
	require.NoError(t, err)
	assert.Equal(t, "# Report", events[len(events)-1].Report)
}

func TestReviewRunsOneFollowUpRound(t *testing.T) {
	reviews := 0
	var followUp string
	p := testPipeline()
	p.Search = &fakeSearcher{results: map[string][]tools.Paper{
		"qubits":       {{Title: "A", URL: "https://arxiv.org/abs/1"}},
		"qubit errors": {{Title: "A", URL: "https://arxiv.org/abs/1"}, {Title: "D", URL: "https://arxiv.org/abs/4"}},
	}}
	p.LLM = funcLLM{fn: func(system, human string, jsonMode bool) (string, error) {
		switch {
		case jsonMode && strings.Contains(human, "Previous findings"):
			followUp = human
			return `{"queries":["qubit errors"]}`, nil
		case jsonMode:
			return `{"queries":["qubits"]}`, nil
		case strings.Contains(system, "quality evaluator"):
			reviews++
			return "NEEDS_MORE: error correction is not covered", nil
		case strings.Contains(system, "report writer"):
			return "# Report\n" + human, nil
		}
		return "notes", nil
	}}

	events, err := collect(t, p, "qubits")
	require.NoError(t, err)

	var got []string
	for _, ev := range events {
		if ev.Node == NodePlanner || ev.Node == NodeScrape || ev.Node == NodeReview || ev.Node == NodeWriter {
			got = append(got, ev.Node+"|"+ev.Message)
		}
	}
	want := []string{
		"planner|Searching for: qubits",
		"scrape|Scraping: https://arxiv.org/abs/1",
		"review|✓ Completed: Review",
		"planner|Searching for: qubit errors",
		"scrape|Scraping: https://arxiv.org/abs/4",
		"review|✓ Completed: Review",
		"writer|WRITING",
	}
	assert.Equal(t, want, got)
	assert.Equal(t, 1, reviews, "only the first round asks the model")
	assert.Contains(t, followUp, "Topic: qubits")

	report := events[len(events)-1].Report
	assert.Contains(t, report, "Source: https://arxiv.org/abs/1")
	assert.Contains(t, report, "Source: https://arxiv.org/abs/4")
}

func TestReviewFailureProceedsToWriter(t *testing.T) {
	p := testPipeline()
	p.LLM = funcLLM{fn: func(system, _ string, jsonMode bool) (string, error) {
		switch {
		case jsonMode:
			return `{"queries":["qubits"]}`, nil
		case strings.Contains(system, "quality evaluator"):
			return "", errors.New("quota")
		}
		return "text", nil
	}}

	events, err := collect(t, p, "qubits")
	require.NoError(t, err)

	reviews := 0
	for _, ev := range events {
		if ev.Node == NodeReview {
			reviews++
		}
	}
	assert.Equal(t, 1, reviews)
	assert.Equal(t, stream.TypeComplete, events[len(events)-1].Type)
}

func newTestServer(t *testing.T, p *Pipeline) (*Service, *httptest.Server) {
	t.Helper()
	svc := NewService(p)
	svc.Logger = discard()
	srv := httptest.NewServer(NewRouter(NewHandler(svc), nil))
	t.Cleanup(srv.Close)
	return svc, srv
}

func TestWriterFailureStreamsErrorEvent(t *testing.T) {
	p := testPipeline()
	p.LLM = funcLLM{fn: func(system, _ string, jsonMode bool) (string, error) {
		switch {
		case jsonMode:
			return `{"queries":["qubits"]}`, nil
		case strings.Contains(system, "report writer"):
			return "", errors.New("model overloaded")
		}
		return "notes", nil
	}}
	svc, srv := newTestServer(t, p)

	var events []stream.Event
	res, err := client.New(srv.URL, 0).Research(context.Background(), client.ResearchRequest{Topic: "qubits"}, func(ev stream.Event) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, res.Terminal)

	last := events[len(events)-1]
	assert.Equal(t, stream.TypeError, last.Type)
	assert.True(t, strings.HasPrefix(last.Message, "Research error: report generation failed"))

	jobs := svc.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, StatusFailed, jobs[0].Status)
}

func TestResearchRejectsBlankTopic(t *testing.T) {
	_, srv := newTestServer(t, testPipeline())

	resp, err := http.Post(srv.URL+"/research", "application/json", strings.NewReader(`{"topic":"   "}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Topic cannot be empty", body["detail"])
}

func TestHealthAndRoot(t *testing.T) {
	_, srv := newTestServer(t, testPipeline())

	status, err := client.New(srv.URL, 0).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, client.HealthStatus{Status: "ok", Service: ServiceName, Version: Version}, *status)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	var root map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&root))
	assert.Equal(t, ServiceName, root["message"])
}

func TestConsoleEngineAgainstDevServer(t *testing.T) {
	svc, srv := newTestServer(t, testPipeline())

	e := research.NewEngine(client.New(srv.URL, 0))
	e.Logger = discard()
	var notes []session.Notification
	e.OnNotify = func(n session.Notification) { notes = append(notes, n) }

	st, err := e.Run(context.Background(), "qubits", "openai/gpt-4o")
	require.NoError(t, err)

	assert.Equal(t, session.StatusComplete, st.Status)
	assert.Equal(t, []string{"qubits", "qubits recent developments", "qubits applications"}, st.Queries)
	assert.Equal(t, []session.Source{{URL: "https://arxiv.org/abs/1"}, {URL: "https://arxiv.org/abs/2"}}, st.Sources)
	assert.Equal(t, session.PhaseWriting, st.Phase)

	var review []session.LogEntry
	for _, l := range st.Logs {
		if l.Node == NodeReview {
			review = append(review, l)
		}
	}
	require.Len(t, review, 1)
	assert.Equal(t, "✓ Completed: Review", review[0].Message)
	assert.Equal(t, session.EntryUpdate, review[0].Kind)
	require.Len(t, notes, 1)
	assert.Equal(t, session.MsgCompleted, notes[0].Message)

	jobs := svc.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, StatusCompleted, jobs[0].Status)
	assert.Equal(t, "openai/gpt-4o", jobs[0].Model)
	require.NotNil(t, jobs[0].Report)
	assert.Equal(t, st.ReportText(), *jobs[0].Report)

	resp, err := http.Get(srv.URL + "/api/research/" + jobs[0].ID.String() + "/logs")
	require.NoError(t, err)
	defer resp.Body.Close()
	var logs []LogEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&logs))
	require.NotEmpty(t, logs)
	assert.Equal(t, "Starting research", logs[0].Message)
	assert.Equal(t, 1, logs[0].ID)
	assert.Contains(t, string(logs[0].Metadata), `"job_id"`)
}

func TestJobLookupErrors(t *testing.T) {
	_, srv := newTestServer(t, testPipeline())

	resp, err := http.Get(srv.URL + "/api/research/not-a-uuid")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/research/00000000-0000-0000-0000-000000000001")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServiceEvictsOldestJobs(t *testing.T) {
	svc := NewService(testPipeline())
	svc.MaxJobs = 2
	first := svc.CreateJob(CreateJobRequest{Topic: "a"})
	svc.CreateJob(CreateJobRequest{Topic: "b"})
	svc.CreateJob(CreateJobRequest{Topic: "c"})

	_, err := svc.GetJob(first.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	jobs := svc.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "c", jobs[0].Topic)
}

func TestGenerateWithRetryRecovers(t *testing.T) {
	attempts := 0
	llm := funcLLM{fn: func(_, _ string, _ bool) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	}}

	out, err := generateWithRetry(context.Background(), llm, discard(), 0, prompt("s", "h"), nonEmpty)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, attempts)
}
