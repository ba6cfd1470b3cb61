package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

// Canned is a deterministic offline llms.Model. In JSON mode it answers
// with search queries for the topic; a quality evaluator always hears the
// research is sufficient; a report writer gets a markdown report; anything
// else gets analysis notes.
type Canned struct{}

func NewCanned() *Canned { return &Canned{} }

var _ llms.Model = (*Canned)(nil)

func (c *Canned) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}

	var system, human strings.Builder
	for _, m := range messages {
		for _, p := range m.Parts {
			text, ok := p.(llms.TextContent)
			if !ok {
				continue
			}
			if m.Role == llms.ChatMessageTypeSystem {
				system.WriteString(text.Text + "\n")
			} else {
				human.WriteString(text.Text + "\n")
			}
		}
	}

	topic := topicOf(human.String())
	var content string
	switch {
	case opts.JSONMode:
		content = cannedQueries(topic)
	case strings.Contains(strings.ToLower(system.String()), "quality evaluator"):
		content = "SUFFICIENT: the offline notes cover the collected sources."
	case strings.Contains(strings.ToLower(system.String()), "report writer"):
		content = cannedReport(topic, human.String())
	default:
		content = cannedNotes(topic, system.String())
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: content, StopReason: "stop"}},
	}, nil
}

func (c *Canned) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, c, prompt, options...)
}

func topicOf(prompt string) string {
	for _, line := range strings.Split(prompt, "\n") {
		if t, ok := strings.CutPrefix(strings.TrimSpace(line), "Topic:"); ok {
			if t = strings.TrimSpace(t); t != "" {
				return t
			}
		}
	}
	return "the topic"
}

func cannedQueries(topic string) string {
	out, _ := json.Marshal(map[string][]string{
		"queries": {
			topic,
			topic + " recent developments",
			topic + " applications",
		},
	})
	return string(out)
}

func cannedNotes(topic, system string) string {
	focus := "general observations"
	for _, f := range []string{"facts", "trends", "insights"} {
		if strings.Contains(strings.ToLower(system), f) {
			focus = f
			break
		}
	}
	return fmt.Sprintf("Offline %s for %s: no live model is configured, so these notes only summarize the collected sources.", focus, topic)
}

func cannedReport(topic, materials string) string {
	var sources []string
	for _, line := range strings.Split(materials, "\n") {
		if s, ok := strings.CutPrefix(strings.TrimSpace(line), "Source: "); ok {
			sources = append(sources, s)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", topic)
	b.WriteString("## Executive Summary\n\n")
	fmt.Fprintf(&b, "This report on **%s** was assembled offline from %d collected sources.\n\n", topic, len(sources))
	b.WriteString("## Key Findings\n\n")
	b.WriteString("| Aspect | Notes |\n|---|---|\n")
	b.WriteString("| Scope | Overview of the collected material |\n")
	b.WriteString("| Method | Search, reading and synthesis |\n\n")
	b.WriteString("> Configure GOOGLE_API_KEY for a model-written report.\n\n")
	if len(sources) > 0 {
		b.WriteString("## Sources\n\n")
		for i, s := range sources {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s)
		}
	}
	return b.String()
}
