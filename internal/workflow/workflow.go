// Package workflow routes a question to the Plot or Answer branch and
// normalizes what the branch produced.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"askdb/internal/agent"
	"askdb/internal/llm"
	"askdb/internal/metrics"
	"askdb/internal/plot"
	"askdb/internal/router"
)

// Sentinel results of the Answer branch.
const (
	NoAnswerResult    = "No response from Answer agent."
	AnswerErrorResult = "An error occurred in Answer."
)

// FailureKind classifies why a branch produced no result.
type FailureKind string

const (
	NoData       FailureKind = "no_data"
	ToolFailure  FailureKind = "tool_failure"
	ModelFailure FailureKind = "model_failure"
)

// Branch stages reported in BranchError.
const (
	StageQuery   = "query"
	StageRender  = "render"
	StageRecover = "recover"
)

// BranchError records a branch that ended with a sentinel result.
type BranchError struct {
	Node  router.Node
	Stage string
	Kind  FailureKind
	Err   error
}

func (e *BranchError) Error() string {
	return fmt.Sprintf("%s branch failed at %s (%s): %v", e.Node, e.Stage, e.Kind, e.Err)
}

func (e *BranchError) Unwrap() error { return e.Err }

// Session is the state of one question. It is owned by the goroutine
// handling the request.
type Session struct {
	UserQuery string
	Node      router.Node
	Result    *string
	Kind      plot.Kind
	MIME      string
	Err       *BranchError
	Calls     []agent.Call
}

// Response is what callers of Handle receive.
type Response struct {
	Result *string     `json:"result"`
	Node   router.Node `json:"node"`
	Kind   plot.Kind   `json:"kind,omitempty"`
	MIME   string      `json:"mime,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Plotter renders a chart from a question and its data.
type Plotter interface {
	Render(ctx context.Context, question string, data *plot.Data) (plot.Payload, error)
}

// Config wires a Workflow. DB, Router, Runner and Plotter are required.
type Config struct {
	DB      agent.DB
	Router  *router.Router
	Runner  agent.Runner
	Plotter Plotter
	Nouns   agent.Searcher
	NounsK  int
	Checker llm.Client
	Logger  *slog.Logger
}

// Workflow answers questions about one database.
type Workflow struct {
	cfg    Config
	logger *slog.Logger
}

// New validates cfg and returns a Workflow.
func New(cfg Config) (*Workflow, error) {
	switch {
	case cfg.DB == nil:
		return nil, errors.New("workflow: database is required")
	case cfg.Router == nil:
		return nil, errors.New("workflow: router is required")
	case cfg.Runner == nil:
		return nil, errors.New("workflow: agent runner is required")
	case cfg.Plotter == nil:
		return nil, errors.New("workflow: plotter is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{cfg: cfg, logger: logger}, nil
}

// Handle answers question and never fails: branch failures are reported
// through a nil or sentinel Result and the Error field.
func (w *Workflow) Handle(ctx context.Context, question string) Response {
	s := w.Run(ctx, question)
	resp := Response{Result: s.Result, Node: s.Node, Kind: s.Kind, MIME: s.MIME}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	return resp
}

// Run executes the state machine START -> {Plot, Answer} and returns the
// finished session.
func (w *Workflow) Run(ctx context.Context, question string) *Session {
	start := time.Now()
	s := &Session{UserQuery: question}

	s.Node = w.cfg.Router.Route(ctx, question)
	logger := w.logger.With("node", s.Node)
	logger.Info("Question routed", "question", llm.Truncate(question, 200))

	tools := w.toolset(logger)
	w.runBranch(ctx, s, tools, logger)
	s.Calls = tools.Calls()

	if s.Err != nil {
		logger.Warn("Branch failed",
			"stage", s.Err.Stage,
			"kind", s.Err.Kind,
			"error", s.Err.Err)
		metrics.RecordBranchFailure(string(s.Node), string(s.Err.Kind))
	}
	metrics.RecordRequest(string(s.Node), time.Since(start))
	logger.Info("Question handled",
		"kind", s.Kind,
		"tool_calls", len(s.Calls),
		"elapsed", time.Since(start))
	return s
}

func (w *Workflow) toolset(logger *slog.Logger) *agent.Toolset {
	opts := []agent.ToolsetOption{agent.WithToolLogger(logger)}
	if w.cfg.Nouns != nil {
		opts = append(opts, agent.WithNouns(w.cfg.Nouns, w.cfg.NounsK))
	}
	if w.cfg.Checker != nil {
		opts = append(opts, agent.WithChecker(w.cfg.Checker))
	}
	return agent.NewToolset(w.cfg.DB, opts...)
}

// runBranch runs the chosen branch. A panic inside it becomes a typed failure
// with the branch's sentinel result.
func (w *Workflow) runBranch(ctx context.Context, s *Session, tools *agent.Toolset, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Branch panicked", "panic", r)
			w.fail(s, StageRecover, ToolFailure, fmt.Errorf("panic: %v", r))
		}
	}()

	switch s.Node {
	case router.Plot:
		w.plot(ctx, s, tools)
	default:
		s.Node = router.Answer
		w.answer(ctx, s, tools)
	}
}

func (w *Workflow) answer(ctx context.Context, s *Session, tools *agent.Toolset) {
	text, err := w.cfg.Runner.Run(ctx, agent.AnswerPrompt(w.cfg.DB.Dialect()), s.UserQuery, tools)
	switch {
	case err != nil && !errors.Is(err, agent.ErrEmptyAnswer):
		w.fail(s, StageQuery, classify(err), err)
	case strings.TrimSpace(text) == "":
		if err == nil {
			err = agent.ErrEmptyAnswer
		}
		w.fail(s, StageQuery, NoData, err)
	default:
		s.Result = &text
		s.Kind = plot.KindText
	}
}

func (w *Workflow) plot(ctx context.Context, s *Session, tools *agent.Toolset) {
	if _, err := w.cfg.Runner.Run(ctx, agent.PlotPrompt(w.cfg.DB.Dialect()), s.UserQuery, tools); err != nil &&
		!errors.Is(err, agent.ErrEmptyAnswer) {
		w.fail(s, StageQuery, classify(err), err)
		return
	}

	var data *plot.Data
	if query, rows, ok := tools.Slot().Load(); ok {
		data = &plot.Data{Query: query, Columns: rows.Columns, Rows: rows.Values}
	}

	payload, err := w.cfg.Plotter.Render(ctx, s.UserQuery, data)
	if err != nil {
		kind := ModelFailure
		var se *plot.StageError
		switch {
		case errors.Is(err, plot.ErrEmptyPayload):
			kind = NoData
		case errors.As(err, &se) && se.Stage == plot.StageExecute:
			kind = ToolFailure
		}
		w.fail(s, StageRender, kind, err)
		return
	}

	s.Result = &payload.Data
	s.Kind = payload.Kind
	s.MIME = payload.MIME
}

// fail records a branch failure and sets the branch's sentinel result.
func (w *Workflow) fail(s *Session, stage string, kind FailureKind, err error) {
	s.Err = &BranchError{Node: s.Node, Stage: stage, Kind: kind, Err: err}
	s.Kind = ""
	s.MIME = ""
	if s.Node == router.Plot {
		s.Result = nil
		return
	}
	sentinel := AnswerErrorResult
	if kind == NoData {
		sentinel = NoAnswerResult
	}
	s.Result = &sentinel
	s.Kind = plot.KindText
}

func classify(err error) FailureKind {
	var te *agent.ToolError
	if errors.As(err, &te) {
		return ToolFailure
	}
	return ModelFailure
}
