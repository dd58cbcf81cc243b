package packages

import (
	"context"

	"github.com/flowkit/flowcore/internal/acterr"
	"github.com/flowkit/flowcore/internal/domain"
	"github.com/flowkit/flowcore/internal/engine"
)

// TransformSet is transform.set: writes a value into the task's own
// data bag, making it visible to every descendant task's expression
// bridge lookups (§4.4, §4.6).
type TransformSet struct{}

func NewTransformSet() *TransformSet { return &TransformSet{} }

func (TransformSet) Meta() domain.PackageMeta {
	return domain.PackageMeta{Name: "transform.set", Desc: "sets a task-local variable", RunAs: domain.RunAsFunc}
}
func (TransformSet) Start(*engine.Runtime, map[string]any) error { return nil }

func (TransformSet) Execute(_ context.Context, rc *engine.RunContext) (map[string]any, error) {
	key, _ := rc.Params["key"].(string)
	if key == "" {
		return nil, acterr.Package("transform.set requires a \"key\" param")
	}
	value := rc.Params["value"]
	rc.Task.Data.Set(key, value)
	return map[string]any{key: value}, nil
}

// TransformCode is transform.code: evaluates an expr-lang snippet
// against the task's full scope chain and returns its result, the
// engine-native analogue of the teacher's TemplateProcessor evaluating
// `${expression}` spans (internal/application/executor/template.go).
type TransformCode struct{}

func NewTransformCode() *TransformCode { return &TransformCode{} }

func (TransformCode) Meta() domain.PackageMeta {
	return domain.PackageMeta{Name: "transform.code", Desc: "evaluates an expression", RunAs: domain.RunAsFunc}
}
func (TransformCode) Start(*engine.Runtime, map[string]any) error { return nil }

func (TransformCode) Execute(_ context.Context, rc *engine.RunContext) (map[string]any, error) {
	code, _ := rc.Params["code"].(string)
	if code == "" {
		return nil, acterr.Package("transform.code requires a \"code\" param")
	}
	result, err := rc.Ctx.Eval(code)
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": result}, nil
}
