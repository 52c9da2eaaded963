// Package router classifies a question as needing a chart or a text answer.
package router

import (
	"context"
	"log/slog"
	"strings"

	"askdb/internal/llm"
)

// Node is a branch of the workflow.
type Node string

const (
	Plot   Node = "Plot"
	Answer Node = "Answer"
)

const systemPrompt = "You are an expert at routing questions to a answer or a plot. " +
	"If the query asks for a plot or a chart, route to Plot, else route to Answer."

var choices = []llm.Choice{
	{Name: string(Plot), Description: "The Chart Plotting Agent. Use Plot when asked to make a chart or a graph."},
	{Name: string(Answer), Description: "The Question Answering Agent. Use when only required to answer questions and not generate plots."},
}

// Router picks the branch for a question.
type Router struct {
	model  llm.Client
	logger *slog.Logger
}

// New returns a Router backed by model.
func New(model llm.Client, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{model: model, logger: logger}
}

// Route returns Plot or Answer. Any failure, empty choice or unknown label
// resolves to Answer.
func (r *Router) Route(ctx context.Context, question string) Node {
	if r.model == nil {
		return Answer
	}

	choice, err := r.model.Choose(ctx, systemPrompt, question, choices)
	if err != nil {
		r.logger.Warn("Routing failed, defaulting to Answer", "error", err)
		return Answer
	}

	switch node := Node(strings.TrimSpace(choice)); node {
	case Plot, Answer:
		r.logger.Debug("Question routed", "node", node)
		return node
	default:
		r.logger.Warn("Unrecognized route, defaulting to Answer", "choice", llm.Truncate(choice, 50))
		return Answer
	}
}
