package servers

import "provider-host/internal/models"

// Kind identifies one provider in the closed catalog
type Kind string

const (
	KindMemory             Kind = "memory"
	KindSequentialThinking Kind = "sequential-thinking"
	KindSearch             Kind = "search"
	KindFetch              Kind = "fetch"
	KindFilesystem         Kind = "filesystem"
	KindKnowledgeBase      Kind = "knowledge-base"
	KindCodeExecution      Kind = "code-execution"
)

// Override keys read by the providers
const (
	OverrideMemoryPath     = "MEMORY_PATH"
	OverrideMemoryFilePath = "MEMORY_FILE_PATH"
	OverrideBraveAPIKey    = "BRAVE_API_KEY"
	OverrideBraveAPIURL    = "BRAVE_API_URL"
	OverrideFetchUserAgent = "FETCH_USER_AGENT"
	OverrideDifyKey        = "DIFY_KEY"
)

type catalogEntry struct {
	kind        Kind
	aliases     []string
	description string
	args        string
	overrides   []models.OverrideInfo
}

var catalog = []catalogEntry{
	{
		kind:        KindMemory,
		aliases:     []string{"@tutu/memory"},
		description: "Persistent multi-user memory store: remember, recall and forget free-text items",
		overrides: []models.OverrideInfo{
			{Key: OverrideMemoryPath, Description: "Storage location: a directory, a database file or a postgres:// URL"},
			{Key: OverrideMemoryFilePath, Description: "Alias of MEMORY_PATH"},
		},
	},
	{
		kind:        KindSequentialThinking,
		aliases:     []string{"@tutu/sequentialthinking"},
		description: "Structured step-by-step reasoning with revisions and branches",
	},
	{
		kind:        KindSearch,
		aliases:     []string{"@tutu/brave-search"},
		description: "Web search through the Brave Search API",
		overrides: []models.OverrideInfo{
			{Key: OverrideBraveAPIKey, Required: true, Secret: true, Description: "Brave Search subscription token"},
			{Key: OverrideBraveAPIURL, Description: "Search endpoint, for proxies and tests"},
		},
	},
	{
		kind:        KindFetch,
		aliases:     []string{"@tutu/fetch"},
		description: "Fetches a URL and returns its readable text",
		overrides: []models.OverrideInfo{
			{Key: OverrideFetchUserAgent, Description: "User-Agent header sent with requests"},
		},
	},
	{
		kind:        KindFilesystem,
		aliases:     []string{"@tutu/filesystem"},
		description: "Reads and writes files inside an allow-list of root directories",
		args:        "one or more allowed root directories",
	},
	{
		kind:        KindKnowledgeBase,
		aliases:     []string{"@tutu/dify-knowledge"},
		description: "Lists and searches Dify knowledge bases",
		args:        "optional API base URL",
		overrides: []models.OverrideInfo{
			{Key: OverrideDifyKey, Required: true, Secret: true, Description: "Dify dataset API key"},
		},
	},
	{
		kind:        KindCodeExecution,
		aliases:     []string{"@cherry/python"},
		description: "Evaluates arithmetic expressions in-process",
	},
}

// ParseKind resolves a provider name or legacy alias to its Kind
func ParseKind(name string) (Kind, bool) {
	for _, entry := range catalog {
		if string(entry.kind) == name {
			return entry.kind, true
		}
		for _, alias := range entry.aliases {
			if alias == name {
				return entry.kind, true
			}
		}
	}
	return "", false
}

// Catalog lists every provider the registry can construct
func Catalog() []models.CatalogEntry {
	entries := make([]models.CatalogEntry, 0, len(catalog))
	for _, entry := range catalog {
		entries = append(entries, models.CatalogEntry{
			Name:        string(entry.kind),
			Aliases:     entry.aliases,
			Description: entry.description,
			Args:        entry.args,
			Overrides:   entry.overrides,
		})
	}
	return entries
}
