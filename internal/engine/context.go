// Package engine is the runtime: scheduler, hook dispatcher, cache,
// store coherence, event channel, action executor and event-triggered
// start (§4.3-§4.10), grounded on the teacher's expr-lang-backed
// TemplateProcessor (internal/application/executor/template.go) for
// the expression bridge and on the original engine's scheduler for
// everything else.
package engine

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"

	"github.com/flowkit/flowcore/internal/acterr"
	"github.com/flowkit/flowcore/internal/domain"
)

// Context is the per-task expression bridge (§4.4). It resolves a
// variable name by walking, in order: the task's own data, each
// ancestor task's data (following Task.Prev, the spawning lineage),
// the owning process's local env, then the model's declared env.
type Context struct {
	task    *domain.Task
	process *domain.Process
}

func NewContext(task *domain.Task, process *domain.Process) *Context {
	return &Context{task: task, process: process}
}

// Var resolves a single variable by name through the four-tier scope
// chain (§4.4).
func (c *Context) Var(name string) (any, bool) {
	if v, ok := c.task.Data.Get(name); ok {
		return v, true
	}

	cur := c.task
	for cur.Prev != "" {
		parent, ok := c.process.Task(cur.Prev)
		if !ok {
			break
		}
		if v, ok := parent.Data.Get(name); ok {
			return v, true
		}
		cur = parent
	}

	if v, ok := c.process.LocalEnv.Get(name); ok {
		return v, true
	}

	if c.process.Tree() != nil && c.process.Tree().Model.Env != nil {
		if v, ok := c.process.Tree().Model.Env[name]; ok {
			return v, true
		}
	}

	return nil, false
}

// env flattens the whole visible scope chain into one map for
// expr-lang, outer scopes first so task-local bindings win on
// conflict, matching Var's resolution order (§4.4).
func (c *Context) env() map[string]any {
	out := map[string]any{}

	if c.process.Tree() != nil {
		for k, v := range c.process.Tree().Model.Env {
			out[k] = v
		}
	}
	for k, v := range c.process.LocalEnv.All() {
		out[k] = v
	}

	var chain []*domain.Task
	cur := c.task
	for cur.Prev != "" {
		parent, ok := c.process.Task(cur.Prev)
		if !ok {
			break
		}
		chain = append(chain, parent)
		cur = parent
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].Data.All() {
			out[k] = v
		}
	}

	for k, v := range c.task.Data.All() {
		out[k] = v
	}

	return out
}

// Eval compiles and runs a single expr-lang expression against the
// scope chain, e.g. a step/branch/act's `if` condition (§4.4).
func (c *Context) Eval(expression string) (any, error) {
	program, err := expr.Compile(expression, expr.Env(c.env()))
	if err != nil {
		return nil, acterr.Script("compile %q: %v", expression, err)
	}
	out, err := expr.Run(program, c.env())
	if err != nil {
		return nil, acterr.Script("run %q: %v", expression, err)
	}
	return out, nil
}

// EvalBool runs Eval and coerces the result to bool, used for
// if/else-branch guards. A non-bool result is a script error: the
// model declared a condition that does not resolve to a predicate.
func (c *Context) EvalBool(expression string) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return true, nil
	}
	v, err := c.Eval(expression)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, acterr.Script("condition %q did not evaluate to a bool (got %T)", expression, v)
	}
	return b, nil
}

const (
	templateOpen  = "{{"
	templateClose = "}}"
)

// Render substitutes every `{{ expr }}` span in tmpl with the string
// form of its evaluated result (§4.4). Plain text outside `{{ }}` is
// copied through unchanged.
func (c *Context) Render(tmpl string) (string, error) {
	var b strings.Builder
	rest := tmpl
	for {
		start := strings.Index(rest, templateOpen)
		if start < 0 {
			b.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], templateClose)
		if end < 0 {
			return "", acterr.Script("unterminated %q in template %q", templateOpen, tmpl)
		}
		end += start

		b.WriteString(rest[:start])
		expression := strings.TrimSpace(rest[start+len(templateOpen) : end])
		val, err := c.Eval(expression)
		if err != nil {
			return "", err
		}
		b.WriteString(stringify(val))
		rest = rest[end+len(templateClose):]
	}
	return b.String(), nil
}

// RenderValue walks v, rendering every string it finds (recursing into
// maps and slices) and leaving other types untouched. Used to render
// an act's params/options wholesale before execution. A string that is
// itself a single standalone `{{ expr }}` template evaluates to its
// raw typed result instead of a stringified one (§4.4).
func (c *Context) RenderValue(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return c.renderTyped(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			rv, err := c.RenderValue(val)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			rv, err := c.RenderValue(val)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// renderTyped evaluates tmpl the way §4.4 distinguishes: a standalone
// template (the whole string, once trimmed, is exactly one `{{ expr }}`
// span) evaluates to the expression's raw result untouched; anything
// else, literal text around or between placeholders, falls back to
// Render's stringify-and-substitute behavior.
func (c *Context) renderTyped(tmpl string) (any, error) {
	if expression, ok := standaloneExpr(tmpl); ok {
		return c.Eval(expression)
	}
	return c.Render(tmpl)
}

// standaloneExpr reports whether tmpl, once trimmed, is nothing but a
// single `{{ expr }}` span, returning the trimmed expression inside.
func standaloneExpr(tmpl string) (string, bool) {
	t := strings.TrimSpace(tmpl)
	if !strings.HasPrefix(t, templateOpen) || !strings.HasSuffix(t, templateClose) {
		return "", false
	}
	inner := t[len(templateOpen) : len(t)-len(templateClose)]
	if strings.Contains(inner, templateOpen) || strings.Contains(inner, templateClose) {
		return "", false
	}
	return strings.TrimSpace(inner), true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
