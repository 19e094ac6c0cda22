package servers

import (
	"sort"
	"sync"

	"provider-host/internal/tools"

	"github.com/sirupsen/logrus"
)

type thoughtRecord struct {
	Thought           string `json:"thought"`
	ThoughtNumber     int    `json:"thoughtNumber"`
	TotalThoughts     int    `json:"totalThoughts"`
	NextThoughtNeeded bool   `json:"nextThoughtNeeded"`
	IsRevision        bool   `json:"isRevision,omitempty"`
	RevisesThought    int    `json:"revisesThought,omitempty"`
	BranchFromThought int    `json:"branchFromThought,omitempty"`
	BranchID          string `json:"branchId,omitempty"`
	NeedsMoreThoughts bool   `json:"needsMoreThoughts,omitempty"`
}

// thinkingProvider keeps the thought history of one reasoning session
type thinkingProvider struct {
	mu       sync.Mutex
	history  []thoughtRecord
	branches map[string][]thoughtRecord
	logger   *logrus.Entry
}

func newThinkingServer(deps Dependencies) (Server, error) {
	p := &thinkingProvider{
		branches: make(map[string][]thoughtRecord),
		logger:   deps.logger().WithField("provider", string(KindSequentialThinking)),
	}

	schema := tools.Schema{
		Name: "sequentialthinking",
		Description: "Think through a problem one step at a time. Each call records a thought; " +
			"thoughts can revise earlier ones or branch into alternatives, and the total can grow as understanding improves.",
		Parameters: []tools.Parameter{
			{Name: "thought", Type: tools.TypeString, Description: "The current thinking step", Required: true},
			{Name: "nextThoughtNeeded", Type: tools.TypeBoolean, Description: "Whether another step follows", Required: true},
			{Name: "thoughtNumber", Type: tools.TypeInteger, Description: "Number of this thought", Required: true, Minimum: floatPtr(1)},
			{Name: "totalThoughts", Type: tools.TypeInteger, Description: "Current estimate of thoughts needed", Required: true, Minimum: floatPtr(1)},
			{Name: "isRevision", Type: tools.TypeBoolean, Description: "Whether this thought revises an earlier one"},
			{Name: "revisesThought", Type: tools.TypeInteger, Description: "Thought being reconsidered", Minimum: floatPtr(1)},
			{Name: "branchFromThought", Type: tools.TypeInteger, Description: "Thought this branch starts from", Minimum: floatPtr(1)},
			{Name: "branchId", Type: tools.TypeString, Description: "Identifier of the branch"},
			{Name: "needsMoreThoughts", Type: tools.TypeBoolean, Description: "Whether the estimate turned out too low"},
		},
	}

	server, err := newToolServer(string(KindSequentialThinking), deps, tools.NewBaseTool(schema.Name, schema, p.think))
	if err != nil {
		return nil, err
	}
	return server, nil
}

func (p *thinkingProvider) think(ctx tools.ExecutionContext, input map[string]interface{}) *tools.Result {
	record := thoughtRecord{
		Thought:           tools.String(input, "thought"),
		ThoughtNumber:     tools.Int(input, "thoughtNumber", 1),
		TotalThoughts:     tools.Int(input, "totalThoughts", 1),
		NextThoughtNeeded: tools.Bool(input, "nextThoughtNeeded", false),
		IsRevision:        tools.Bool(input, "isRevision", false),
		RevisesThought:    tools.Int(input, "revisesThought", 0),
		BranchFromThought: tools.Int(input, "branchFromThought", 0),
		BranchID:          tools.String(input, "branchId"),
		NeedsMoreThoughts: tools.Bool(input, "needsMoreThoughts", false),
	}
	if record.ThoughtNumber > record.TotalThoughts {
		record.TotalThoughts = record.ThoughtNumber
	}

	p.mu.Lock()
	p.history = append(p.history, record)
	if record.BranchFromThought > 0 && record.BranchID != "" {
		p.branches[record.BranchID] = append(p.branches[record.BranchID], record)
	}
	branches := make([]string, 0, len(p.branches))
	for id := range p.branches {
		branches = append(branches, id)
	}
	historyLength := len(p.history)
	p.mu.Unlock()

	sort.Strings(branches)

	p.logger.WithFields(logrus.Fields{
		"thought_number": record.ThoughtNumber,
		"total_thoughts": record.TotalThoughts,
		"revision":       record.IsRevision,
		"branch":         record.BranchID,
	}).Debug(record.Thought)

	return tools.SuccessResult(map[string]interface{}{
		"thoughtNumber":        record.ThoughtNumber,
		"totalThoughts":        record.TotalThoughts,
		"nextThoughtNeeded":    record.NextThoughtNeeded,
		"branches":             branches,
		"thoughtHistoryLength": historyLength,
	})
}
