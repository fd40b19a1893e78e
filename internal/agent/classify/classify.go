// Package classify defines the boundary between the agent pipeline and the
// model that turns free text into tool calls. Implementations exist for the
// OpenAI and Anthropic APIs plus a scripted keyword matcher used offline.
package classify

import "context"

// ToolDef describes one operation the classifier may select. Parameters is a
// JSON-schema object (type/properties/required) declaring the accepted
// arguments.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Turn is one prior message given to the classifier as context.
type Turn struct {
	Role    string
	Content string
}

// Request carries everything a classifier needs for one utterance.
type Request struct {
	System    string
	Utterance string
	History   []Turn
	Tools     []ToolDef
}

// ToolCall is a selected operation with raw JSON arguments. Score is the
// classifier's relative confidence; model-backed classifiers report 1.0 per
// call and signal uncertainty by emitting several calls.
type ToolCall struct {
	Name      string
	Arguments string
	Score     float64
}

// Result is the classifier verdict: zero or more tool calls, or free text
// when the model chose to answer directly.
type Result struct {
	Calls []ToolCall
	Text  string
}

// Classifier maps an utterance plus bounded history onto the tool catalog.
type Classifier interface {
	Classify(ctx context.Context, req Request) (*Result, error)
	Name() string
}
