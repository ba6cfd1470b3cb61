package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"golang.org/x/sync/errgroup"

	"github.com/mikeboe/research-console/pkg/research/tools"
	"github.com/mikeboe/research-console/pkg/stream"
)

// Node names as they appear on the wire.
const (
	NodePlanner    = "planner"
	NodeSearch     = "search"
	NodeScrape     = "scrape"
	NodeSynthesize = "synthesize_parallel"
	NodeReview     = "review"
	NodeWriter     = "writer"
)

const (
	maxScrapes     = 15
	scrapeParallel = 4
	excerptChars   = 2000
	pendingNote    = "Analysis pending..."
	maxRounds      = 2
)

// Searcher finds papers for a query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]tools.Paper, error)
}

// PageReader extracts the text of a page.
type PageReader interface {
	Scrape(ctx context.Context, url string) (string, error)
}

// Emit sends one event to the client.
type Emit func(stream.Event) error

// Pipeline plans queries, searches, reads and analyzes, then reviews the
// notes and either writes the report or runs one follow-up round. Progress
// events are emitted along the way.
type Pipeline struct {
	LLM          llms.Model
	Search       Searcher
	Reader       PageReader
	MaxQueries   int
	ArxivResults int
	RetryDelay   time.Duration
}

type analysis struct {
	node   string
	system string
	task   string
}

var analyses = []analysis{
	{"analyze_facts", "You are a data extraction specialist.", "Extract factual data and statistics: numbers, dates, metrics and milestones. Cite the source for every data point."},
	{"analyze_trends", "You are a trends analyst.", "Identify current trends, recent developments and future projections. Support each with evidence from the sources."},
	{"analyze_insights", "You are an insights analyst.", "Summarize expert perspectives, strategic implications and the connections between findings. Attribute every opinion."},
}

type scraped struct {
	paper tools.Paper
	text  string
}

// Run executes the pipeline for topic. A returned error has not been
// emitted yet.
func (p *Pipeline) Run(ctx context.Context, logger *slog.Logger, topic string, emit Emit) error {
	var (
		papers    []tools.Paper
		pages     []scraped
		syntheses []string
	)
	read := make(map[string]bool)

	for round := 0; ; round++ {
		var queries []string
		if round == 0 {
			queries = p.plan(ctx, logger, topic)
		} else {
			queries = p.followUp(ctx, logger, topic, syntheses[len(syntheses)-1])
		}
		for _, q := range queries {
			if err := emit(stream.Update(NodePlanner, "Searching for: "+q)); err != nil {
				return err
			}
		}

		found := p.search(ctx, logger, queries)
		if err := emit(stream.Update(NodeSearch, "Searching...")); err != nil {
			return err
		}

		var fresh []tools.Paper
		for _, paper := range found {
			if !read[paper.URL] {
				fresh = append(fresh, paper)
			}
		}
		got := p.scrape(ctx, logger, fresh)
		if len(got) == 0 {
			if err := emit(stream.Update(NodeScrape, "Reading sources...")); err != nil {
				return err
			}
		}
		for _, pg := range got {
			read[pg.paper.URL] = true
			if err := emit(stream.Update(NodeScrape, "Scraping: "+pg.paper.URL)); err != nil {
				return err
			}
		}
		papers = append(papers, found...)
		pages = append(pages, got...)

		notes := p.analyze(ctx, logger, topic, found, got)
		for _, a := range analyses {
			if err := emit(stream.Update(a.node, "ANALYZING")); err != nil {
				return err
			}
		}

		syntheses = append(syntheses, fmt.Sprintf("### Factual Data and Statistics\n%s\n### Trends and Developments\n%s\n### Expert Analysis and Implications\n%s\n",
			notes["analyze_facts"], notes["analyze_trends"], notes["analyze_insights"]))
		if err := emit(stream.Update(NodeSynthesize, "SYNTHESIZING")); err != nil {
			return err
		}

		finished := p.review(ctx, logger, topic, round, syntheses)
		if err := emit(stream.Update(NodeReview, "✓ Completed: Review")); err != nil {
			return err
		}
		if finished {
			break
		}
	}

	if err := emit(stream.Update(NodeWriter, "WRITING")); err != nil {
		return err
	}
	report, err := p.write(ctx, logger, topic, strings.Join(syntheses, "\n"), pages)
	if err != nil {
		return err
	}
	return emit(stream.Complete(report))
}

// review decides whether the notes so far are enough to write the report.
// Only the first round asks the model; any failure counts as enough.
func (p *Pipeline) review(ctx context.Context, logger *slog.Logger, topic string, round int, syntheses []string) bool {
	if round+1 >= maxRounds {
		logger.Info("Max research rounds reached, proceeding to report writing", "round", round+1)
		return true
	}

	input := fmt.Sprintf(`Topic: %s
Current iteration: %d
Research notes gathered:
%s

Assess if the research is sufficient to write a comprehensive report: main aspects covered, enough depth, no obvious gaps.
Respond with ONLY 'SUFFICIENT' or 'NEEDS_MORE' followed by a brief reason.`, topic, round+1, strings.Join(syntheses, "\n"))

	decision, err := generateWithRetry(ctx, p.LLM, logger, p.RetryDelay, prompt("You are a research quality evaluator.", input), nonEmpty)
	if err != nil {
		logger.Warn("Review failed, proceeding to report writing", "error", err)
		return true
	}
	finished := strings.Contains(strings.ToUpper(decision), "SUFFICIENT")
	logger.Info("Reviewed research", "round", round+1, "finished", finished)
	return finished
}

// followUp plans gap-filling queries from the latest synthesis.
func (p *Pipeline) followUp(ctx context.Context, logger *slog.Logger, topic, synthesis string) []string {
	logger.Info("Planning follow-up research")

	input := fmt.Sprintf("Topic: %s\nPrevious findings summary:\n%s\n\nIdentify 2-3 specific areas that need more depth or clarification and generate targeted search queries to fill these gaps.",
		topic, truncate(synthesis, excerptChars))

	var resp struct {
		Queries []string `json:"queries"`
	}
	_, err := generateWithRetry(ctx, p.LLM, logger, p.RetryDelay, prompt("You are an expert research planner.\n\n# Response Format:\n"+searchQueriesSchema, input), func(content string) error {
		resp.Queries = nil
		if err := json.Unmarshal([]byte(stripFences(content)), &resp); err != nil {
			return fmt.Errorf("json parse error: %w (content: %s)", err, content)
		}
		if len(cleanQueries(resp.Queries, p.maxQueries())) == 0 {
			return fmt.Errorf("empty queries list")
		}
		return nil
	}, llms.WithJSONMode())
	if err != nil {
		logger.Warn("Follow-up planning failed, using fallback query", "error", err)
		return []string{topic + " in-depth analysis"}
	}
	return cleanQueries(resp.Queries, p.maxQueries())
}

func (p *Pipeline) plan(ctx context.Context, logger *slog.Logger, topic string) []string {
	logger.Info("Starting planning phase")

	systemPrompt := `You are an expert research planner.
Generate specific search queries covering fundamentals, recent developments, expert analysis, applications and outlook.`

	input := fmt.Sprintf("Topic: %s\nNumber of queries: %d", topic, p.maxQueries())

	type QueryResponse struct {
		Queries []string `json:"queries"`
	}
	var queryResp QueryResponse

	_, err := generateWithRetry(ctx, p.LLM, logger, p.RetryDelay, prompt(systemPrompt+"\n\n# Response Format:\n"+searchQueriesSchema, input), func(content string) error {
		queryResp = QueryResponse{}
		if err := json.Unmarshal([]byte(stripFences(content)), &queryResp); err != nil {
			return fmt.Errorf("json parse error: %w (content: %s)", err, content)
		}
		if len(cleanQueries(queryResp.Queries, p.maxQueries())) == 0 {
			return fmt.Errorf("empty queries list")
		}
		return nil
	}, llms.WithJSONMode())
	if err != nil {
		logger.Warn("Planning failed, using fallback queries", "error", err)
		return cleanQueries([]string{topic, topic + " explained", topic + " latest developments"}, p.maxQueries())
	}

	queries := cleanQueries(queryResp.Queries, p.maxQueries())
	logger.Info("Generated queries", "queries", queries)
	return queries
}

const searchQueriesSchema = `Return the JSON object directly without any formatting or additional text:
{
  "type": "object",
  "properties": {
    "queries": {"type": "array", "items": {"type": "string"}}
  },
  "required": ["queries"]
}`

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// cleanQueries trims, drops blanks and duplicates, and caps the count.
func cleanQueries(in []string, limit int) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, q := range in {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func (p *Pipeline) search(ctx context.Context, logger *slog.Logger, queries []string) []tools.Paper {
	logger.Info("Starting sourcing phase")
	if p.Search == nil {
		return nil
	}

	results := make([][]tools.Paper, len(queries))
	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			papers, err := p.Search.Search(ctx, q, p.ArxivResults)
			if err != nil {
				logger.Error("Arxiv search failed", "query", q, "error", err)
				return nil
			}
			results[i] = papers
			return nil
		})
	}
	_ = g.Wait()

	// remove duplicates based on Title
	var unique []tools.Paper
	seen := make(map[string]bool)
	for _, papers := range results {
		for _, paper := range papers {
			if !seen[paper.Title] {
				seen[paper.Title] = true
				unique = append(unique, paper)
			}
		}
	}
	return unique
}

func (p *Pipeline) scrape(ctx context.Context, logger *slog.Logger, papers []tools.Paper) []scraped {
	if p.Reader == nil {
		return nil
	}

	var targets []tools.Paper
	seen := make(map[string]bool)
	for _, paper := range papers {
		if paper.URL == "" || seen[paper.URL] {
			continue
		}
		seen[paper.URL] = true
		targets = append(targets, paper)
		if len(targets) == maxScrapes {
			break
		}
	}

	out := make([]*scraped, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scrapeParallel)
	for i, paper := range targets {
		g.Go(func() error {
			text, err := p.Reader.Scrape(gctx, paper.URL)
			if err != nil {
				logger.Warn("Failed to scrape", "url", paper.URL, "error", err)
				return nil
			}
			out[i] = &scraped{paper: paper, text: text}
			return nil
		})
	}
	_ = g.Wait()

	pages := make([]scraped, 0, len(out))
	for _, s := range out {
		if s != nil {
			pages = append(pages, *s)
		}
	}
	logger.Info("Scraped pages", "count", len(pages), "attempted", len(targets))
	return pages
}

func (p *Pipeline) analyze(ctx context.Context, logger *slog.Logger, topic string, papers []tools.Paper, pages []scraped) map[string]string {
	var results strings.Builder
	for _, paper := range papers {
		fmt.Fprintf(&results, "- %s: %s (%s)\n", paper.Title, paper.Summary, paper.URL)
	}
	var content strings.Builder
	for _, pg := range pages {
		fmt.Fprintf(&content, "Source: %s\nTitle: %s\nContent: %s...\n\n", pg.paper.URL, pg.paper.Title, truncate(pg.text, excerptChars))
	}

	var mu sync.Mutex
	notes := make(map[string]string, len(analyses))
	var g errgroup.Group
	for _, a := range analyses {
		g.Go(func() error {
			input := fmt.Sprintf("Topic: %s\n\nSearch Results:\n%s\nDetailed Content from Key Sources:\n%s\n%s",
				topic, results.String(), content.String(), a.task)
			note, err := generateWithRetry(ctx, p.LLM, logger, p.RetryDelay, prompt(a.system, input), nonEmpty)
			if err != nil {
				logger.Error("Analysis failed", "node", a.node, "error", err)
				note = pendingNote
			}
			mu.Lock()
			notes[a.node] = note
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return notes
}

func (p *Pipeline) write(ctx context.Context, logger *slog.Logger, topic, synthesis string, pages []scraped) (string, error) {
	logger.Info("Writing report")

	systemPrompt := `You are a research report writer.
Write a comprehensive, well-structured markdown report with an executive summary, key findings, analysis and a conclusion.
Cite sources inline and finish with a list of sources.`

	var sources strings.Builder
	for _, pg := range pages {
		fmt.Fprintf(&sources, "Source: %s\n", pg.paper.URL)
	}
	input := fmt.Sprintf("Topic: %s\n\nResearch Materials:\n%s\nSources:\n%s", topic, synthesis, sources.String())

	report, err := generateWithRetry(ctx, p.LLM, logger, p.RetryDelay, prompt(systemPrompt, input), nonEmpty)
	if err != nil {
		return "", fmt.Errorf("report generation failed: %w", err)
	}
	return report, nil
}

func (p *Pipeline) maxQueries() int {
	if p.MaxQueries <= 0 {
		return 3
	}
	return p.MaxQueries
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}
