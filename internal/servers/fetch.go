package servers

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"provider-host/internal/tools"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/net/html"
)

const (
	defaultFetchUserAgent = "provider-host/1.0 (+fetch)"
	fetchCacheTTL         = 5 * time.Minute
	maxFetchBody          = 10 << 20
)

// fetchProvider downloads pages and turns HTML into readable text.
// Converted pages are cached so paging through a long document with
// start_index does not refetch it.
type fetchProvider struct {
	client    *http.Client
	userAgent string
	cache     *ristretto.Cache
	observer  CacheObserver
}

type fetchedPage struct {
	Title       string
	Content     string
	ContentType string
	StatusCode  int
}

func newFetchServer(deps Dependencies, overrides map[string]string) (Server, error) {
	userAgent := strings.TrimSpace(overrides[OverrideFetchUserAgent])
	if userAgent == "" {
		userAgent = defaultFetchUserAgent
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     64 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create fetch cache: %w", err)
	}

	p := &fetchProvider{
		client:    deps.httpClient(),
		userAgent: userAgent,
		cache:     cache,
		observer:  deps.CacheObserver,
	}

	schema := tools.Schema{
		Name:        "fetch",
		Description: "Fetch a URL and return its content as text. Long pages are returned in chunks; continue with start_index.",
		Parameters: []tools.Parameter{
			{Name: "url", Type: tools.TypeString, Description: "URL to fetch", Required: true, Pattern: `^https?://.+`},
			{Name: "max_length", Type: tools.TypeInteger, Description: "Maximum number of characters to return", Minimum: floatPtr(1), Maximum: floatPtr(1_000_000), Default: 5000},
			{Name: "start_index", Type: tools.TypeInteger, Description: "Character offset to start from", Minimum: floatPtr(0), Default: 0},
			{Name: "raw", Type: tools.TypeBoolean, Description: "Return the body as-is instead of extracting text", Default: false},
		},
		Examples: []tools.Example{
			{
				Description: "Read the first part of an article",
				Input:       map[string]interface{}{"url": "https://example.com/article", "max_length": 2000},
				Output:      map[string]interface{}{"title": "Article", "content": "...", "next_start_index": 2000},
			},
		},
	}

	server, err := newToolServer(string(KindFetch), deps, tools.NewBaseTool(schema.Name, schema, p.fetch))
	if err != nil {
		cache.Close()
		return nil, err
	}
	server.onClose(func() error {
		cache.Close()
		return nil
	})
	return server, nil
}

func (p *fetchProvider) fetch(ctx tools.ExecutionContext, input map[string]interface{}) *tools.Result {
	target := tools.String(input, "url")
	raw := tools.Bool(input, "raw", false)
	maxLength := tools.Int(input, "max_length", 5000)
	start := tools.Int(input, "start_index", 0)

	key := fmt.Sprintf("%t|%s", raw, target)
	page, cached := p.lookup(key)
	if !cached {
		var result *tools.Result
		page, result = p.download(ctx, target, raw)
		if result != nil {
			return result
		}
		p.cache.SetWithTTL(key, page, int64(len(page.Content))+1, fetchCacheTTL)
		p.cache.Wait()
	}

	content := []rune(page.Content)
	if start > 0 && start >= len(content) {
		return tools.ErrorResult(tools.CodeInvalidInput,
			fmt.Sprintf("start_index %d is past the end of the content (%d characters)", start, len(content)))
	}
	end := start + maxLength
	if end > len(content) {
		end = len(content)
	}

	data := map[string]interface{}{
		"url":          target,
		"title":        page.Title,
		"content":      string(content[start:end]),
		"content_type": page.ContentType,
		"status_code":  page.StatusCode,
		"total_length": len(content),
		"truncated":    end < len(content),
	}
	if end < len(content) {
		data["next_start_index"] = end
	}

	return tools.SuccessResult(data, map[string]interface{}{"cached": cached})
}

func (p *fetchProvider) lookup(key string) (*fetchedPage, bool) {
	value, ok := p.cache.Get(key)
	if p.observer != nil {
		p.observer.ObserveCache(ok)
	}
	if !ok {
		return nil, false
	}
	page, ok := value.(*fetchedPage)
	return page, ok
}

func (p *fetchProvider) download(ctx tools.ExecutionContext, target string, raw bool) (*fetchedPage, *tools.Result) {
	req, err := http.NewRequestWithContext(ctx.Context, http.MethodGet, target, nil)
	if err != nil {
		return nil, tools.ErrorResult(tools.CodeInvalidInput, fmt.Sprintf("Invalid URL: %v", err))
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, tools.ErrorResult(tools.CodeUpstream, fmt.Sprintf("Failed to fetch %s: %v", target, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, tools.ErrorResult(tools.CodeUpstream,
			fmt.Sprintf("Failed to fetch %s: status code %d", target, resp.StatusCode),
			map[string]interface{}{"status_code": resp.StatusCode})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return nil, tools.ErrorResult(tools.CodeUpstream, fmt.Sprintf("Failed to read response: %v", err))
	}

	contentType := resp.Header.Get("Content-Type")
	page := &fetchedPage{ContentType: contentType, StatusCode: resp.StatusCode}

	if !raw && isHTML(contentType, body) {
		page.Title, page.Content = extractText(string(body))
	} else {
		page.Content = string(body)
	}
	return page, nil
}

func isHTML(contentType string, body []byte) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType == "text/html" || mediaType == "application/xhtml+xml"
	}
	prefix := strings.ToLower(strings.TrimSpace(string(body[:min(len(body), 512)])))
	return strings.HasPrefix(prefix, "<!doctype html") || strings.HasPrefix(prefix, "<html")
}

var skippedElements = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"svg": true, "iframe": true, "head": true,
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true,
	"article": true, "header": true, "footer": true, "h1": true, "h2": true,
	"h3": true, "h4": true, "h5": true, "h6": true, "pre": true, "blockquote": true,
	"table": true, "ul": true, "ol": true, "hr": true,
}

// extractText returns the document title and its visible text with one
// line per block element
func extractText(document string) (string, string) {
	tokenizer := html.NewTokenizer(strings.NewReader(document))

	var (
		title   strings.Builder
		text    strings.Builder
		skip    int
		inTitle bool
	)

	newline := func() {
		s := text.String()
		if len(s) > 0 && !strings.HasSuffix(s, "\n") {
			text.WriteByte('\n')
		}
	}

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return strings.TrimSpace(title.String()), collapseLines(text.String())

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if tag == "title" {
				inTitle = tt == html.StartTagToken
				continue
			}
			if skippedElements[tag] && tt == html.StartTagToken {
				skip++
				continue
			}
			if blockElements[tag] {
				newline()
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			if tag == "title" {
				inTitle = false
				continue
			}
			if skippedElements[tag] && skip > 0 {
				skip--
				continue
			}
			if blockElements[tag] {
				newline()
			}

		case html.TextToken:
			if inTitle {
				title.Write(tokenizer.Text())
				continue
			}
			if skip > 0 {
				continue
			}
			chunk := strings.Join(strings.Fields(string(tokenizer.Text())), " ")
			if chunk == "" {
				continue
			}
			s := text.String()
			if len(s) > 0 && !strings.HasSuffix(s, "\n") && !strings.HasSuffix(s, " ") {
				text.WriteByte(' ')
			}
			text.WriteString(chunk)
		}
	}
}

func collapseLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
