package servers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"provider-host/internal/tools"
)

const defaultBraveAPIURL = "https://api.search.brave.com/res/v1/web/search"

// searchProvider queries the Brave web search API
type searchProvider struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func newSearchServer(deps Dependencies, overrides map[string]string) (Server, error) {
	apiKey := strings.TrimSpace(overrides[OverrideBraveAPIKey])
	if apiKey == "" {
		return nil, missingOverride(KindSearch, OverrideBraveAPIKey)
	}

	endpoint := strings.TrimSpace(overrides[OverrideBraveAPIURL])
	if endpoint == "" {
		endpoint = defaultBraveAPIURL
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, &ConfigError{Provider: string(KindSearch), Key: OverrideBraveAPIURL, Message: "invalid URL", Err: err}
	}

	p := &searchProvider{client: deps.httpClient(), endpoint: endpoint, apiKey: apiKey}

	schema := tools.Schema{
		Name:        "brave_web_search",
		Description: "Search the web. Returns titles, URLs and snippets of the best matching pages.",
		Parameters: []tools.Parameter{
			{Name: "query", Type: tools.TypeString, Description: "Search query", Required: true},
			{Name: "count", Type: tools.TypeInteger, Description: "Number of results (1-20)", Minimum: floatPtr(1), Maximum: floatPtr(20), Default: 10},
			{Name: "offset", Type: tools.TypeInteger, Description: "Result page offset (0-9)", Minimum: floatPtr(0), Maximum: floatPtr(9), Default: 0},
		},
		Examples: []tools.Example{
			{
				Description: "Search for documentation",
				Input:       map[string]interface{}{"query": "golang context cancellation", "count": 3},
				Output:      map[string]interface{}{"results": []interface{}{map[string]interface{}{"title": "...", "url": "https://..."}}},
			},
		},
	}

	server, err := newToolServer(string(KindSearch), deps, tools.NewBaseTool(schema.Name, schema, p.search))
	if err != nil {
		return nil, err
	}
	return server, nil
}

func (p *searchProvider) search(ctx tools.ExecutionContext, input map[string]interface{}) *tools.Result {
	query := strings.TrimSpace(tools.String(input, "query"))
	if query == "" {
		return tools.ErrorResult(tools.CodeInvalidInput, "query cannot be empty")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(tools.Int(input, "count", 10)))
	params.Set("offset", strconv.Itoa(tools.Int(input, "offset", 0)))

	req, err := http.NewRequestWithContext(ctx.Context, http.MethodGet, p.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return tools.ErrorResult(tools.CodeExecution, fmt.Sprintf("Failed to create request: %v", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return tools.ErrorResult(tools.CodeUpstream, fmt.Sprintf("Search request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return tools.ErrorResult(tools.CodeUpstream, fmt.Sprintf("Failed to read response: %v", err))
	}
	if resp.StatusCode != http.StatusOK {
		return tools.ErrorResult(tools.CodeUpstream,
			fmt.Sprintf("Brave API error: %d %s", resp.StatusCode, strings.TrimSpace(string(body))),
			map[string]interface{}{"status_code": resp.StatusCode})
	}

	var decoded braveResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return tools.ErrorResult(tools.CodeUpstream, fmt.Sprintf("Failed to decode response: %v", err))
	}

	results := make([]map[string]interface{}, 0, len(decoded.Web.Results))
	for _, r := range decoded.Web.Results {
		results = append(results, map[string]interface{}{
			"title":       r.Title,
			"url":         r.URL,
			"description": r.Description,
		})
	}

	return tools.SuccessResult(map[string]interface{}{
		"query":   query,
		"results": results,
	}, map[string]interface{}{
		"result_count": len(results),
	})
}
