package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"askdb/internal/agent"
	"askdb/internal/database"
	"askdb/internal/llm"
	"askdb/internal/nouns"
	"askdb/internal/plot"
	"askdb/internal/router"
	"askdb/internal/testutil"
)

const chartHTML = "<!DOCTYPE html>\n<html><body><div id=\"chart\"></div></body></html>\n"

// fakeModel routes on chart keywords and writes a fixed chart script.
type fakeModel struct {
	code      string
	routeErr  error
	completes int
}

func (m *fakeModel) Complete(ctx context.Context, system, prompt string) (string, error) {
	m.completes++
	return m.code, nil
}

func (m *fakeModel) Choose(ctx context.Context, system, prompt string, choices []llm.Choice) (string, error) {
	if m.routeErr != nil {
		return "", m.routeErr
	}
	q := strings.ToLower(prompt)
	for _, w := range []string{"plot", "chart", "graph"} {
		if strings.Contains(q, w) {
			return string(router.Plot), nil
		}
	}
	return string(router.Answer), nil
}

type fakeExecutor struct {
	out     string
	err     error
	scripts []string
}

func (e *fakeExecutor) Execute(ctx context.Context, code string) (string, error) {
	e.scripts = append(e.scripts, code)
	return e.out, e.err
}

// scriptRunner plays the role of the model: it drives the real tools in a
// fixed order.
type scriptRunner func(ctx context.Context, system, prompt string, tools *agent.Toolset) (string, error)

func (f scriptRunner) Run(ctx context.Context, system, prompt string, tools *agent.Toolset) (string, error) {
	return f(ctx, system, prompt, tools)
}

// panicDB fails every query with a panic.
type panicDB struct{ *database.Handle }

func (panicDB) Query(ctx context.Context, query string) (*database.Rows, error) {
	panic("connection lost")
}

func openChinook(t *testing.T) *database.Handle {
	t.Helper()
	h, err := database.Open(testutil.ChinookDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func newWorkflow(t *testing.T, cfg Config, model *fakeModel, exec *fakeExecutor) *Workflow {
	t.Helper()
	if cfg.Router == nil {
		cfg.Router = router.New(model, nil)
	}
	if cfg.Plotter == nil {
		gen, err := plot.NewGenerator(model, exec)
		require.NoError(t, err)
		cfg.Plotter = gen
	}
	w, err := New(cfg)
	require.NoError(t, err)
	return w
}

const genreCountQuery = `SELECT g.Name AS Genre, COUNT(t.TrackId) AS Tracks
FROM Track t JOIN Genre g ON g.GenreId = t.GenreId
GROUP BY g.Name ORDER BY Tracks DESC`

func TestPlotBranchRendersHTML(t *testing.T) {
	db := openChinook(t)
	model := &fakeModel{code: "import plotly.express as px\nfig = px.pie(df, names='Genre', values='Tracks')\nprint(fig.to_html())"}
	exec := &fakeExecutor{out: chartHTML}

	runner := scriptRunner(func(ctx context.Context, system, prompt string, tools *agent.Toolset) (string, error) {
		assert.Contains(t, system, "SQLite")
		if _, err := tools.ListTables(ctx); err != nil {
			return "", err
		}
		if _, err := tools.TablesSchema(ctx, agent.TablesSchemaInput{Tables: "Track, Genre"}); err != nil {
			return "", err
		}
		checked, err := tools.CheckSQL(ctx, agent.SQLInput{Query: genreCountQuery})
		if err != nil {
			return "", err
		}
		_, err = tools.ExecuteSQL(ctx, agent.SQLInput{Query: checked})
		return "Query executed.", err
	})

	w := newWorkflow(t, Config{DB: db, Runner: runner}, model, exec)
	resp := w.Handle(context.Background(), "Plot a pie chart showing the distribution of tracks by genre")

	assert.Equal(t, router.Plot, resp.Node)
	require.NotNil(t, resp.Result)
	assert.True(t, strings.HasPrefix(*resp.Result, "<!DOCTYPE html>"))
	assert.Equal(t, plot.KindHTML, resp.Kind)
	assert.Empty(t, resp.Error)

	require.Len(t, exec.scripts, 1)
	assert.Contains(t, exec.scripts[0], "df = pd.DataFrame(")
	assert.Contains(t, exec.scripts[0], "px.pie")
}

func TestAnswerBranchResolvesProperNouns(t *testing.T) {
	ctx := context.Background()
	db := openChinook(t)

	index := nouns.NewIndex(&testutil.TrigramEmbedder{})
	_, err := index.Rebuild(ctx, db, true)
	require.NoError(t, err)

	runner := scriptRunner(func(ctx context.Context, system, prompt string, tools *agent.Toolset) (string, error) {
		if _, err := tools.ListTables(ctx); err != nil {
			return "", err
		}
		if _, err := tools.TablesSchema(ctx, agent.TablesSchemaInput{Tables: "Artist, Album"}); err != nil {
			return "", err
		}
		matches, err := tools.SearchProperNouns(ctx, agent.SearchInput{Query: "Alis in Chains"})
		if err != nil {
			return "", err
		}
		require.NotEmpty(t, matches)

		query := "SELECT COUNT(*) FROM Album a JOIN Artist ar ON ar.ArtistId = a.ArtistId WHERE ar.Name = '" + matches[0] + "'"
		checked, err := tools.CheckSQL(ctx, agent.SQLInput{Query: query})
		if err != nil {
			return "", err
		}
		out, err := tools.ExecuteSQL(ctx, agent.SQLInput{Query: checked})
		if err != nil {
			return "", err
		}
		lines := strings.Split(strings.TrimSpace(out), "\n")
		return matches[0] + " has " + lines[len(lines)-1] + " album.", nil
	})

	w := newWorkflow(t, Config{DB: db, Runner: runner, Nouns: index, NounsK: 5}, &fakeModel{}, &fakeExecutor{})
	s := w.Run(ctx, "How many albums does Alis in Chains have?")

	assert.Equal(t, router.Answer, s.Node)
	require.NotNil(t, s.Result)
	assert.Contains(t, *s.Result, "1")
	assert.Contains(t, *s.Result, "Alice In Chains")
	assert.Equal(t, plot.KindText, s.Kind)
	assert.Nil(t, s.Err)

	searchAt, execAt := -1, -1
	for i, c := range s.Calls {
		switch c.Tool {
		case agent.ToolSearchProperNouns:
			searchAt = i
		case agent.ToolExecuteSQL:
			execAt = i
			assert.Contains(t, c.Input, "Alice In Chains")
		}
	}
	require.GreaterOrEqual(t, searchAt, 0)
	require.GreaterOrEqual(t, execAt, 0)
	assert.Less(t, searchAt, execAt)
}

func TestPlotBranchToolPanic(t *testing.T) {
	db := panicDB{openChinook(t)}
	model := &fakeModel{code: "print('unused')"}
	exec := &fakeExecutor{out: chartHTML}

	runner := scriptRunner(func(ctx context.Context, system, prompt string, tools *agent.Toolset) (string, error) {
		_, err := tools.ExecuteSQL(ctx, agent.SQLInput{Query: genreCountQuery})
		return "", err
	})

	w := newWorkflow(t, Config{DB: db, Runner: runner}, model, exec)
	s := w.Run(context.Background(), "Plot tracks per genre")

	assert.Equal(t, router.Plot, s.Node)
	assert.Nil(t, s.Result)
	require.NotNil(t, s.Err)
	assert.Equal(t, ToolFailure, s.Err.Kind)
	assert.Equal(t, StageQuery, s.Err.Stage)
	assert.Empty(t, exec.scripts)
	assert.Zero(t, model.completes)
}

func TestRunnerPanicIsRecovered(t *testing.T) {
	db := openChinook(t)
	runner := scriptRunner(func(ctx context.Context, system, prompt string, tools *agent.Toolset) (string, error) {
		panic("model client crashed")
	})

	w := newWorkflow(t, Config{DB: db, Runner: runner}, &fakeModel{}, &fakeExecutor{})

	s := w.Run(context.Background(), "Which genre has the most tracks?")
	assert.Equal(t, router.Answer, s.Node)
	require.NotNil(t, s.Result)
	assert.Equal(t, AnswerErrorResult, *s.Result)
	require.NotNil(t, s.Err)
	assert.Equal(t, StageRecover, s.Err.Stage)

	s = w.Run(context.Background(), "Draw a bar chart of tracks per genre")
	assert.Equal(t, router.Plot, s.Node)
	assert.Nil(t, s.Result)
	require.NotNil(t, s.Err)
}

func TestRouterFailureFallsBackToAnswer(t *testing.T) {
	db := openChinook(t)
	model := &fakeModel{routeErr: errors.New("rate limited")}
	runner := scriptRunner(func(ctx context.Context, system, prompt string, tools *agent.Toolset) (string, error) {
		return "There are 4 genres.", nil
	})

	w := newWorkflow(t, Config{DB: db, Runner: runner}, model, &fakeExecutor{})
	resp := w.Handle(context.Background(), "Plot the number of genres")

	assert.Equal(t, router.Answer, resp.Node)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "There are 4 genres.", *resp.Result)
}

func TestAnswerSentinels(t *testing.T) {
	db := openChinook(t)

	tests := []struct {
		name string
		text string
		err  error
		want string
		kind FailureKind
	}{
		{"empty text", "", nil, NoAnswerResult, NoData},
		{"blank text", "  \n", nil, NoAnswerResult, NoData},
		{"empty answer error", "", agent.ErrEmptyAnswer, NoAnswerResult, NoData},
		{"model error", "", errors.New("overloaded"), AnswerErrorResult, ModelFailure},
		{"tool error", "", &agent.ToolError{Tool: agent.ToolExecuteSQL, Err: errors.New("closed"), Fatal: true}, AnswerErrorResult, ToolFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := scriptRunner(func(ctx context.Context, system, prompt string, tools *agent.Toolset) (string, error) {
				return tt.text, tt.err
			})
			w := newWorkflow(t, Config{DB: db, Runner: runner}, &fakeModel{}, &fakeExecutor{})

			resp := w.Handle(context.Background(), "Which artist has the most albums?")
			assert.Equal(t, router.Answer, resp.Node)
			require.NotNil(t, resp.Result)
			assert.Equal(t, tt.want, *resp.Result)
			assert.NotEmpty(t, resp.Error)

			s := w.Run(context.Background(), "Which artist has the most albums?")
			require.NotNil(t, s.Err)
			assert.Equal(t, tt.kind, s.Err.Kind)
		})
	}
}

func TestPlotWithoutData(t *testing.T) {
	db := openChinook(t)
	model := &fakeModel{code: ""}
	exec := &fakeExecutor{}
	runner := scriptRunner(func(ctx context.Context, system, prompt string, tools *agent.Toolset) (string, error) {
		return "", agent.ErrEmptyAnswer
	})

	w := newWorkflow(t, Config{DB: db, Runner: runner}, model, exec)
	s := w.Run(context.Background(), "Plot revenue by planet")

	assert.Equal(t, router.Plot, s.Node)
	assert.Nil(t, s.Result)
	require.NotNil(t, s.Err)
	assert.Equal(t, NoData, s.Err.Kind)
	assert.Equal(t, StageRender, s.Err.Stage)
	assert.Empty(t, exec.scripts)
}

func TestPlotExecutorFailure(t *testing.T) {
	db := openChinook(t)
	model := &fakeModel{code: "raise SystemExit(1)"}
	exec := &fakeExecutor{err: errors.New("exit status 1")}
	runner := scriptRunner(func(ctx context.Context, system, prompt string, tools *agent.Toolset) (string, error) {
		_, err := tools.ExecuteSQL(ctx, agent.SQLInput{Query: genreCountQuery})
		return "", err
	})

	w := newWorkflow(t, Config{DB: db, Runner: runner}, model, exec)
	s := w.Run(context.Background(), "Chart tracks per genre")

	assert.Nil(t, s.Result)
	require.NotNil(t, s.Err)
	assert.Equal(t, ToolFailure, s.Err.Kind)
}

func TestNewValidation(t *testing.T) {
	db := openChinook(t)
	model := &fakeModel{}
	gen, err := plot.NewGenerator(model, &fakeExecutor{})
	require.NoError(t, err)
	runner := scriptRunner(func(ctx context.Context, system, prompt string, tools *agent.Toolset) (string, error) {
		return "", nil
	})
	r := router.New(model, nil)

	_, err = New(Config{Router: r, Runner: runner, Plotter: gen})
	assert.Error(t, err)
	_, err = New(Config{DB: db, Runner: runner, Plotter: gen})
	assert.Error(t, err)
	_, err = New(Config{DB: db, Router: r, Plotter: gen})
	assert.Error(t, err)
	_, err = New(Config{DB: db, Router: r, Runner: runner})
	assert.Error(t, err)
	_, err = New(Config{DB: db, Router: r, Runner: runner, Plotter: gen})
	assert.NoError(t, err)
}
