package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/soulra/clinical-router/internal/agent/model"
	logx "github.com/soulra/clinical-router/pkg/logger"
)

const ToolGuidelineSearch = "guideline_search"

const defaultMaxResults = 5

// Searcher looks up clinical guideline text for a free-text query.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) (*model.GuidelineResult, error)
}

// ===================================
// Guideline Search Tool
// ===================================

type GuidelineSearchInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

// NewGuidelineSearchTool exposes s as an Eino tool.
func NewGuidelineSearchTool(s Searcher) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGuidelineSearch,
			Desc: "Search public clinical guideline sources for mental health treatment and prescribing references. Returns short text snippets with source links.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "Guideline search keywords, e.g. a condition or drug name.",
					Required: true,
				},
				"max_results": {
					Type: "number",
					Desc: "Maximum number of snippets to return (default: 5, max: 20)",
				},
			}),
		},
		func(ctx context.Context, in *GuidelineSearchInput) (*model.GuidelineResult, error) {
			query := strings.TrimSpace(in.Query)
			if query == "" {
				return nil, fmt.Errorf("query is required")
			}
			return s.Search(ctx, query, clampInt(in.MaxResults, 1, 20))
		},
	)
}

// Lookup runs the guideline tool with tool callbacks and returns the flattened
// snippet text. A failed lookup yields empty text and the error for logging.
func Lookup(ctx context.Context, t tool.InvokableTool, query string, maxResults int) (string, error) {
	args, err := json.Marshal(GuidelineSearchInput{Query: query, MaxResults: maxResults})
	if err != nil {
		return "", fmt.Errorf("marshal tool arguments: %w", err)
	}

	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      ToolGuidelineSearch,
		Type:      "GuidelineSearch",
		Component: components.ComponentOfTool,
	})
	ctx = callbacks.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: string(args)})

	out, err := t.InvokableRun(ctx, string(args))
	if err != nil {
		callbacks.OnError(ctx, err)
		return "", err
	}
	callbacks.OnEnd(ctx, &tool.CallbackOutput{Response: out})

	var res model.GuidelineResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		return "", fmt.Errorf("decode tool output: %w", err)
	}
	return res.Text(), nil
}

// ===================================
// DuckDuckGo Instant Answer searcher
// ===================================

// DuckDuckGoSearcher queries the DuckDuckGo Instant Answer API.
type DuckDuckGoSearcher struct {
	client   *http.Client
	endpoint string
}

// NewDuckDuckGoSearcher builds a searcher from cfg.
func NewDuckDuckGoSearcher(cfg model.GuidelineSearchConfig) (*DuckDuckGoSearcher, error) {
	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid GUIDELINE_SEARCH_URL %q: %w", cfg.URL, err)
	}
	return &DuckDuckGoSearcher{
		client:   &http.Client{Timeout: timeout},
		endpoint: cfg.URL,
	}, nil
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

func (d *DuckDuckGoSearcher) Search(ctx context.Context, query string, maxResults int) (*model.GuidelineResult, error) {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	u, err := url.Parse(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("guideline search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("guideline search: unexpected status %d", resp.StatusCode)
	}

	var body ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode guideline search response: %w", err)
	}

	res := &model.GuidelineResult{Query: query, Snippets: []model.GuidelineSnippet{}}
	if text := strings.TrimSpace(body.AbstractText); text != "" {
		res.Snippets = append(res.Snippets, model.GuidelineSnippet{Title: body.Heading, Text: text, URL: body.AbstractURL})
	}
	for _, t := range flattenTopics(body.RelatedTopics) {
		if len(res.Snippets) >= maxResults {
			break
		}
		res.Snippets = append(res.Snippets, model.GuidelineSnippet{Text: t.Text, URL: t.FirstURL})
	}
	if len(res.Snippets) > maxResults {
		res.Snippets = res.Snippets[:maxResults]
	}

	logx.Debug().
		Str("query", query).
		Int("snippets", len(res.Snippets)).
		Dur("elapsed", time.Since(start)).
		Msg("Guideline search completed")
	return res, nil
}

// flattenTopics expands grouped topics and drops entries without text.
func flattenTopics(topics []ddgTopic) []ddgTopic {
	var out []ddgTopic
	for _, t := range topics {
		if len(t.Topics) > 0 {
			out = append(out, flattenTopics(t.Topics)...)
			continue
		}
		if strings.TrimSpace(t.Text) != "" {
			out = append(out, t)
		}
	}
	return out
}

// DisabledSearcher is used when GUIDELINE_SEARCH_ENABLED is false.
type DisabledSearcher struct{}

var ErrSearchDisabled = errors.New("guideline search disabled")

func (DisabledSearcher) Search(context.Context, string, int) (*model.GuidelineResult, error) {
	return nil, ErrSearchDisabled
}

// NewSearcher returns the configured searcher.
func NewSearcher(cfg model.GuidelineSearchConfig) (Searcher, error) {
	if !cfg.Enabled {
		return DisabledSearcher{}, nil
	}
	return NewDuckDuckGoSearcher(cfg)
}

// clampInt returns v limited to [lo, hi]; zero means the default.
func clampInt(v, lo, hi int) int {
	if v == 0 {
		return defaultMaxResults
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
