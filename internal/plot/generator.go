package plot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tiktoken-go/tokenizer"

	"askdb/internal/llm"
)

const (
	StageGenerate = "generate"
	StageExecute  = "execute"

	defaultDataTokens = 3000
)

// ErrEmptyPayload is returned when rendering produced no output.
var ErrEmptyPayload = errors.New("chart rendering produced no output")

// StageError tells which stage of chart rendering failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("plot %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Executor runs generated code and returns its standard output.
type Executor interface {
	Execute(ctx context.Context, code string) (string, error)
}

// Data is the query result a chart is drawn from.
type Data struct {
	Query   string     `json:"query,omitempty"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

const codePrompt = `You write Python that renders a chart from query results.

Rules:
1. A pandas DataFrame named df is already defined with the query results; never redefine it or read files. The columns and a preview of the rows are given after "DataFrame:". If it says None, there is no data: print nothing.
2. Convert numeric-looking columns with pd.to_numeric(errors="ignore") before plotting.
3. Always use Plotly Express (plotly.express) to create the visualization.
4. Always label the chart with a descriptive title, xaxis.title = the actual x column name and yaxis.title = the actual y column name.
5. For scatter plots, always use mode="markers" only (never connect points with lines unless explicitly requested).
6. Convert the figure with fig.to_html(full_html=True, include_plotlyjs="cdn") and print only that HTML string. Print nothing else.

Chart Type Guidelines:
- Trend over time: line chart
- Comparison across categories: bar chart
- Distribution of values: histogram
- Part-to-whole relationship: pie chart
- Correlation between two numeric variables: scatter plot

Return only Python code. Do NOT include explanations, text or Markdown fences.`

// Generator asks the model for chart code and runs it.
type Generator struct {
	model      llm.Client
	exec       Executor
	codec      tokenizer.Codec
	dataTokens int
	logger     *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithDataTokens caps the data preview sent to the model.
func WithDataTokens(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.dataTokens = n
		}
	}
}

func WithLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGenerator returns a Generator using model for code and exec to run it.
func NewGenerator(model llm.Client, exec Executor, opts ...GeneratorOption) (*Generator, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}
	g := &Generator{
		model:      model,
		exec:       exec,
		codec:      codec,
		dataTokens: defaultDataTokens,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Render produces a chart for question from data. data may be nil, in which
// case the model is told there is no data.
func (g *Generator) Render(ctx context.Context, question string, data *Data) (Payload, error) {
	preview := "None"
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Payload{}, &StageError{Stage: StageGenerate, Err: err}
		}
		preview = g.truncate(string(b))
	}

	prompt := fmt.Sprintf("User Question: %s\nDataFrame: %s", question, preview)
	out, err := g.model.Complete(ctx, codePrompt, prompt)
	if err != nil {
		return Payload{}, &StageError{Stage: StageGenerate, Err: err}
	}

	// some models answer with the finished document
	if IsHTML(out) {
		g.logger.Debug("Model returned HTML directly, skipping executor")
		return Classify(out), nil
	}

	code := llm.StripCodeFences(out)
	if code == "" {
		return Payload{}, &StageError{Stage: StageGenerate, Err: ErrEmptyPayload}
	}

	script, err := wrapCode(code, data)
	if err != nil {
		return Payload{}, &StageError{Stage: StageGenerate, Err: err}
	}

	stdout, err := g.exec.Execute(ctx, script)
	if err != nil {
		return Payload{}, &StageError{Stage: StageExecute, Err: err}
	}
	if strings.TrimSpace(stdout) == "" {
		return Payload{}, &StageError{Stage: StageExecute, Err: ErrEmptyPayload}
	}

	payload := Classify(stdout)
	g.logger.Info("Chart rendered", "kind", payload.Kind, "bytes", len(payload.Data))
	return payload, nil
}

// truncate cuts s to the configured token budget.
func (g *Generator) truncate(s string) string {
	ids, _, err := g.codec.Encode(s)
	if err != nil || len(ids) <= g.dataTokens {
		return s
	}
	cut, err := g.codec.Decode(ids[:g.dataTokens])
	if err != nil {
		return s
	}
	return cut + " ...(truncated)"
}

// wrapCode prepends a preamble that loads data into df. The data travels as
// base64 so no quoting is needed.
func wrapCode(code string, data *Data) (string, error) {
	var b strings.Builder
	b.WriteString("import base64\nimport json\nimport pandas as pd\n\n")
	if data == nil {
		b.WriteString("df = None\n")
	} else {
		raw, err := json.Marshal(data)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "_result = json.loads(base64.b64decode(%q).decode(\"utf-8\"))\n",
			base64.StdEncoding.EncodeToString(raw))
		b.WriteString("df = pd.DataFrame(_result[\"rows\"], columns=_result[\"columns\"])\n")
	}
	b.WriteString("\n")
	b.WriteString(code)
	b.WriteString("\n")
	return b.String(), nil
}
