package engine

import (
	"github.com/samcharles93/locus/internal/model"
	"github.com/samcharles93/locus/pkg/quant"
)

// TensorInfo describes a bound input or output tensor.
type TensorInfo struct {
	Name  string        `json:"name"`
	DType model.DType   `json:"dtype"`
	Shape []int         `json:"shape"`
	Quant *quant.Params `json:"quant,omitempty"`
}

// Info summarizes the loaded model and its arena usage.
type Info struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	SchemaVersion uint32     `json:"schema_version"`
	State         string     `json:"state"`
	Layers        int        `json:"layers"`
	Parameters    int        `json:"parameters"`
	ArenaSize     int        `json:"arena_size"`
	ArenaUsed     int        `json:"arena_used"`
	Input         TensorInfo `json:"input"`
	Output        TensorInfo `json:"output"`
}

func (e *Engine) Info() Info {
	if e == nil || e.model == nil {
		return Info{State: StateUninitialized.String()}
	}
	g := e.model.Graph
	return Info{
		ID:            g.ID,
		Name:          g.Name,
		Description:   g.Description,
		SchemaVersion: e.model.SchemaVersion,
		State:         e.state.String(),
		Layers:        len(e.model.Layers),
		Parameters:    e.model.Parameters(),
		ArenaSize:     len(e.arena),
		ArenaUsed:     e.runner.ArenaUsed(),
		Input:         tensorInfo(e.input.Name, e.input.DType, e.input.Shape, e.input.Quant),
		Output:        tensorInfo(e.output.Name, e.output.DType, e.output.Shape, e.output.Quant),
	}
}

// Inputs is the feature vector length the engine accepts.
func (e *Engine) Inputs() int { return e.cfg.Inputs }

func tensorInfo(name string, dt model.DType, shape []int, q *quant.Params) TensorInfo {
	ti := TensorInfo{Name: name, DType: dt, Shape: append([]int(nil), shape...)}
	if q != nil {
		c := *q
		ti.Quant = &c
	}
	return ti
}
