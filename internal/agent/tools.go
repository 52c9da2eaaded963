package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"charm.land/fantasy"
	"github.com/goccy/go-json"

	"askdb/internal/database"
	"askdb/internal/llm"
	"askdb/internal/metrics"
)

// Tool names exposed to the model. The model selects tools by name and
// description, so both are fixed.
const (
	ToolListTables        = "list_tables"
	ToolTablesSchema      = "tables_schema"
	ToolCheckSQL          = "check_sql"
	ToolExecuteSQL        = "execute_sql"
	ToolSearchProperNouns = "search_proper_nouns"
)

const (
	descListTables = "Input is an empty string, output is a comma-separated list of tables in the database."

	descTablesSchema = "Input to this tool is a comma-separated list of tables, output is the schema and sample rows for those tables. " +
		"Be sure that the tables actually exist by calling list_tables first! Example Input: table1, table2, table3"

	descCheckSQL = "Use this tool to double check if your query is correct before executing it. " +
		"Always use this tool before executing a query with execute_sql!"

	descExecuteSQL = "Input to this tool is a detailed and correct SQL query, output is a result from the database. " +
		"If the query is not correct, an error message will be returned. " +
		"If an error is returned, rewrite the query, check the query, and try again."

	descSearchProperNouns = "Use to look up proper nouns. Input can be any approximate spelling, " +
		"output is valid proper nouns from the database. Search is case-insensitive."
)

// ErrInvalidInput is wrapped by tool errors caused by malformed arguments.
var ErrInvalidInput = errors.New("invalid tool input")

// ToolError is returned by every Toolset operation. Fatal errors come from
// faults outside the model's control and abort the run; the others are sent
// back to the model so it can correct itself.
type ToolError struct {
	Tool  string
	Err   error
	Fatal bool
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// DB is the database surface used by the tools.
type DB interface {
	Dialect() string
	ListTables() string
	TableInfo(ctx context.Context, tables []string) (string, error)
	Query(ctx context.Context, query string) (*database.Rows, error)
}

// Searcher finds indexed proper nouns close to a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
}

// Call is one recorded tool invocation.
type Call struct {
	Tool  string
	Input string
	Err   string
	At    time.Time
}

// Toolset binds the agent tools to one database and one run. It is not
// shared between requests.
type Toolset struct {
	db      DB
	nouns   Searcher
	checker llm.Client
	slot    *ResultSlot
	nounsK  int
	logger  *slog.Logger

	mu    sync.Mutex
	calls []Call
	fault *ToolError
}

// ToolsetOption configures a Toolset.
type ToolsetOption func(*Toolset)

// WithNouns enables search_proper_nouns.
func WithNouns(s Searcher, k int) ToolsetOption {
	return func(t *Toolset) {
		t.nouns = s
		t.nounsK = k
	}
}

// WithChecker sets the model used by check_sql. Without one, check_sql only
// applies the read-only guard.
func WithChecker(c llm.Client) ToolsetOption {
	return func(t *Toolset) { t.checker = c }
}

// WithToolLogger sets the logger for tool calls.
func WithToolLogger(logger *slog.Logger) ToolsetOption {
	return func(t *Toolset) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewToolset creates the tools for one run against db.
func NewToolset(db DB, opts ...ToolsetOption) *Toolset {
	t := &Toolset{
		db:     db,
		slot:   &ResultSlot{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Slot returns the result slot written by ExecuteSQL.
func (t *Toolset) Slot() *ResultSlot { return t.slot }

// Calls returns the tool invocations recorded so far, in order.
func (t *Toolset) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// Fault returns the first fatal tool error of the run, if any.
func (t *Toolset) Fault() *ToolError {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fault
}

// run records and guards one tool invocation. Panics become fatal tool errors.
func (t *Toolset) run(tool, input string, fn func() (string, error)) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ToolError{Tool: tool, Err: fmt.Errorf("panic: %v", r), Fatal: true}
		}

		status := "ok"
		call := Call{Tool: tool, Input: input, At: time.Now()}
		if err != nil {
			var te *ToolError
			if !errors.As(err, &te) {
				te = &ToolError{Tool: tool, Err: err}
				err = te
			}
			status = "error"
			if te.Fatal {
				status = "fault"
			}
			call.Err = te.Err.Error()
			t.logger.Warn("Tool call failed", "tool", tool, "error", te.Err, "fatal", te.Fatal)
		} else {
			t.logger.Debug("Tool call", "tool", tool, "input", llm.Truncate(input, 200))
		}
		metrics.RecordToolCall(tool, status)

		t.mu.Lock()
		t.calls = append(t.calls, call)
		var te *ToolError
		if t.fault == nil && errors.As(err, &te) && te.Fatal {
			t.fault = te
		}
		t.mu.Unlock()
	}()
	return fn()
}

func (t *Toolset) ListTables(ctx context.Context) (string, error) {
	return t.run(ToolListTables, "", func() (string, error) {
		return t.db.ListTables(), nil
	})
}

// TablesSchemaInput names the tables to describe.
type TablesSchemaInput struct {
	Tables string `json:"tables" description:"Comma-separated list of table names, e.g. Track, Genre"`
}

func (t *Toolset) TablesSchema(ctx context.Context, in TablesSchemaInput) (string, error) {
	return t.run(ToolTablesSchema, in.Tables, func() (string, error) {
		var names []string
		for _, n := range strings.Split(in.Tables, ",") {
			if n = strings.Trim(strings.TrimSpace(n), `"'`+"`"); n != "" {
				names = append(names, n)
			}
		}
		if len(names) == 0 {
			return "", fmt.Errorf("%w: at least one table name is required", ErrInvalidInput)
		}
		return t.db.TableInfo(ctx, names)
	})
}

// SQLInput carries one SQL statement.
type SQLInput struct {
	Query string `json:"query" description:"A single read-only SQL query"`
}

func (t *Toolset) CheckSQL(ctx context.Context, in SQLInput) (string, error) {
	return t.run(ToolCheckSQL, in.Query, func() (string, error) {
		query := strings.TrimSpace(in.Query)
		if query == "" {
			return "", fmt.Errorf("%w: query is required", ErrInvalidInput)
		}
		if err := database.CheckReadOnly(query); err != nil {
			return "", err
		}
		if t.checker == nil {
			return query, nil
		}

		dialect := DialectName(t.db.Dialect())
		checked, err := t.checker.Complete(ctx,
			fmt.Sprintf(checkerSystemPrompt, dialect),
			fmt.Sprintf(checkerPromptTemplate, dialect, query))
		if err != nil {
			return "", &ToolError{Tool: ToolCheckSQL, Err: err, Fatal: ctx.Err() != nil}
		}
		checked = llm.StripCodeFences(checked)
		if err := database.CheckReadOnly(checked); err != nil {
			return "", err
		}
		return checked, nil
	})
}

func (t *Toolset) ExecuteSQL(ctx context.Context, in SQLInput) (string, error) {
	return t.run(ToolExecuteSQL, in.Query, func() (string, error) {
		query := llm.StripCodeFences(in.Query)
		if query == "" {
			return "", fmt.Errorf("%w: query is required", ErrInvalidInput)
		}
		rows, err := t.db.Query(ctx, query)
		if err != nil {
			if ctx.Err() != nil {
				return "", &ToolError{Tool: ToolExecuteSQL, Err: err, Fatal: true}
			}
			return "", err
		}
		t.slot.Store(query, rows)
		return rows.String(), nil
	})
}

// SearchInput is an approximate spelling to resolve.
type SearchInput struct {
	Query string `json:"query" description:"Approximate spelling of a proper noun"`
}

func (t *Toolset) SearchProperNouns(ctx context.Context, in SearchInput) ([]string, error) {
	var matches []string
	_, err := t.run(ToolSearchProperNouns, in.Query, func() (string, error) {
		if t.nouns == nil {
			return "", errors.New("proper noun index is not available")
		}
		if strings.TrimSpace(in.Query) == "" {
			return "", fmt.Errorf("%w: query is required", ErrInvalidInput)
		}
		var err error
		matches, err = t.nouns.Search(ctx, in.Query, t.nounsK)
		return "", err
	})
	return matches, err
}

// ListTablesInput takes no arguments.
type ListTablesInput struct{}

// AgentTools adapts the toolset to fantasy tools. Recoverable errors are
// returned to the model as error responses.
func (t *Toolset) AgentTools() []fantasy.AgentTool {
	tools := []fantasy.AgentTool{
		fantasy.NewAgentTool(ToolListTables, descListTables,
			func(ctx context.Context, _ ListTablesInput, _ fantasy.ToolCall) (fantasy.ToolResponse, error) {
				return respond(t.ListTables(ctx))
			}),
		fantasy.NewAgentTool(ToolTablesSchema, descTablesSchema,
			func(ctx context.Context, in TablesSchemaInput, _ fantasy.ToolCall) (fantasy.ToolResponse, error) {
				return respond(t.TablesSchema(ctx, in))
			}),
		fantasy.NewAgentTool(ToolCheckSQL, descCheckSQL,
			func(ctx context.Context, in SQLInput, _ fantasy.ToolCall) (fantasy.ToolResponse, error) {
				return respond(t.CheckSQL(ctx, in))
			}),
		fantasy.NewAgentTool(ToolExecuteSQL, descExecuteSQL,
			func(ctx context.Context, in SQLInput, _ fantasy.ToolCall) (fantasy.ToolResponse, error) {
				return respond(t.ExecuteSQL(ctx, in))
			}),
	}
	if t.nouns != nil {
		tools = append(tools, fantasy.NewAgentTool(ToolSearchProperNouns, descSearchProperNouns,
			func(ctx context.Context, in SearchInput, _ fantasy.ToolCall) (fantasy.ToolResponse, error) {
				matches, err := t.SearchProperNouns(ctx, in)
				if err != nil {
					return respond("", err)
				}
				b, err := json.Marshal(matches)
				if err != nil {
					return respond("", err)
				}
				return fantasy.NewTextResponse(string(b)), nil
			}))
	}
	return tools
}

func respond(out string, err error) (fantasy.ToolResponse, error) {
	if err == nil {
		return fantasy.NewTextResponse(out), nil
	}
	var te *ToolError
	if errors.As(err, &te) && te.Fatal {
		return fantasy.NewTextErrorResponse(te.Error()), err
	}
	return fantasy.NewTextErrorResponse("Error: " + err.Error()), nil
}
