package servers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"provider-host/internal/tools"
)

const defaultDifyAPIBase = "http://localhost/v1"

// knowledgeProvider talks to the Dify dataset API
type knowledgeProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

type difyDatasets struct {
	Data []struct {
		ID            string `json:"id"`
		Name          string `json:"name"`
		Description   string `json:"description"`
		DocumentCount int    `json:"document_count"`
	} `json:"data"`
}

type difyRetrieval struct {
	Records []struct {
		Score   float64 `json:"score"`
		Segment struct {
			Content  string `json:"content"`
			Document struct {
				Name string `json:"name"`
			} `json:"document"`
		} `json:"segment"`
	} `json:"records"`
}

func newKnowledgeServer(deps Dependencies, args []string, overrides map[string]string) (Server, error) {
	apiKey := strings.TrimSpace(overrides[OverrideDifyKey])
	if apiKey == "" {
		return nil, missingOverride(KindKnowledgeBase, OverrideDifyKey)
	}

	baseURL := defaultDifyAPIBase
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		baseURL = strings.TrimSpace(args[0])
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, &ConfigError{Provider: string(KindKnowledgeBase), Key: "args", Message: "invalid API base URL", Err: err}
	}

	p := &knowledgeProvider{
		client:  deps.httpClient(),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}

	ts := []tools.Tool{
		tools.NewBaseTool("list_knowledges", tools.Schema{
			Name:        "list_knowledges",
			Description: "List the available knowledge bases",
		}, p.listKnowledges),
		tools.NewBaseTool("search_knowledge", tools.Schema{
			Name:        "search_knowledge",
			Description: "Retrieve the passages of a knowledge base most relevant to a query",
			Parameters: []tools.Parameter{
				{Name: "id", Type: tools.TypeString, Description: "Knowledge base id from list_knowledges", Required: true},
				{Name: "query", Type: tools.TypeString, Description: "What to look for", Required: true},
				{Name: "top_k", Type: tools.TypeInteger, Description: "Number of passages", Minimum: floatPtr(1), Maximum: floatPtr(20), Default: 5},
			},
		}, p.searchKnowledge),
	}

	server, err := newToolServer(string(KindKnowledgeBase), deps, ts...)
	if err != nil {
		return nil, err
	}
	return server, nil
}

func (p *knowledgeProvider) do(ctx tools.ExecutionContext, method, path string, payload interface{}, out interface{}) *tools.Result {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return tools.ErrorResult(tools.CodeExecution, fmt.Sprintf("Failed to encode request: %v", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx.Context, method, p.baseURL+path, body)
	if err != nil {
		return tools.ErrorResult(tools.CodeExecution, fmt.Sprintf("Failed to create request: %v", err))
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return tools.ErrorResult(tools.CodeUpstream, fmt.Sprintf("Knowledge base request failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return tools.ErrorResult(tools.CodeUpstream, fmt.Sprintf("Failed to read response: %v", err))
	}
	if resp.StatusCode >= 300 {
		return tools.ErrorResult(tools.CodeUpstream,
			fmt.Sprintf("Dify API error: %d %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
			map[string]interface{}{"status_code": resp.StatusCode})
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return tools.ErrorResult(tools.CodeUpstream, fmt.Sprintf("Failed to decode response: %v", err))
	}
	return nil
}

func (p *knowledgeProvider) listKnowledges(ctx tools.ExecutionContext, _ map[string]interface{}) *tools.Result {
	var datasets difyDatasets
	if failed := p.do(ctx, http.MethodGet, "/datasets?page=1&limit=100", nil, &datasets); failed != nil {
		return failed
	}

	knowledges := make([]map[string]interface{}, 0, len(datasets.Data))
	for _, d := range datasets.Data {
		knowledges = append(knowledges, map[string]interface{}{
			"id":             d.ID,
			"name":           d.Name,
			"description":    d.Description,
			"document_count": d.DocumentCount,
		})
	}
	return tools.SuccessResult(map[string]interface{}{"knowledges": knowledges})
}

func (p *knowledgeProvider) searchKnowledge(ctx tools.ExecutionContext, input map[string]interface{}) *tools.Result {
	id := strings.TrimSpace(tools.String(input, "id"))
	query := strings.TrimSpace(tools.String(input, "query"))
	if id == "" || query == "" {
		return tools.ErrorResult(tools.CodeInvalidInput, "id and query cannot be empty")
	}

	payload := map[string]interface{}{
		"query": query,
		"retrieval_model": map[string]interface{}{
			"search_method":           "hybrid_search",
			"reranking_enable":        false,
			"top_k":                   tools.Int(input, "top_k", 5),
			"score_threshold_enabled": false,
		},
	}

	var retrieval difyRetrieval
	if failed := p.do(ctx, http.MethodPost, "/datasets/"+url.PathEscape(id)+"/retrieve", payload, &retrieval); failed != nil {
		return failed
	}

	passages := make([]map[string]interface{}, 0, len(retrieval.Records))
	for _, r := range retrieval.Records {
		passages = append(passages, map[string]interface{}{
			"content":  r.Segment.Content,
			"document": r.Segment.Document.Name,
			"score":    r.Score,
		})
	}
	return tools.SuccessResult(map[string]interface{}{
		"id":       id,
		"query":    query,
		"passages": passages,
	})
}
