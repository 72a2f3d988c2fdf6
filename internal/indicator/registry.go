package indicator

import (
	"fmt"

	"github.com/rxtech-lab/argo-backtest/pkg/errors"
)

// Handle is a registered indicator. It reads as its first line; Line(k) gives the others.
type Handle struct {
	name  string
	lines []*Line
}

func (h *Handle) Name() string {
	return h.name
}

func (h *Handle) values() []float64 {
	return h.lines[0].values()
}

// Lines returns every output line of the indicator.
func (h *Handle) Lines() []*Line {
	return h.lines
}

// Line returns output k, or nil if the indicator has fewer outputs.
func (h *Handle) Line(k int) *Line {
	if k < 0 || k >= len(h.lines) {
		return nil
	}

	return h.lines[k]
}

func (h *Handle) At(i int) float64 {
	return h.lines[0].At(i)
}

func (h *Handle) Last() float64 {
	return h.lines[0].Last()
}

func (h *Handle) Get(i int) (float64, error) {
	return h.lines[0].Get(i)
}

func (h *Handle) Len() int {
	return h.lines[0].Len()
}

func (h *Handle) Slice() []float64 {
	return h.lines[0].Slice()
}

// Warmup returns the longest warm-up across all output lines.
func (h *Handle) Warmup() int {
	warmup := 0
	for _, line := range h.lines {
		warmup = max(warmup, line.Warmup())
	}

	return warmup
}

// Registry runs indicator functions once over the full series and keeps the results.
// A registry belongs to a single run.
type Registry struct {
	clock   *Clock
	length  int
	handles map[string]*Handle
	order   []string
}

// NewRegistry creates an empty registry for a series of length bars.
func NewRegistry(clock *Clock, length int) *Registry {
	return &Registry{
		clock:   clock,
		length:  length,
		handles: make(map[string]*Handle),
		order:   nil,
	}
}

// Register computes fn over the full inputs and stores the result under name.
// An empty name is replaced by a generated one.
func (r *Registry) Register(name string, fn Func, inputs ...Source) (*Handle, error) {
	if fn == nil {
		return nil, errors.New(errors.ErrCodeIndicatorRegistration, "indicator function is nil")
	}

	if name == "" {
		name = fmt.Sprintf("I%d", len(r.order))
	}

	if _, exists := r.handles[name]; exists {
		return nil, errors.Newf(errors.ErrCodeIndicatorAlreadyExists, "indicator %s already registered", name)
	}

	arrays := make([][]float64, len(inputs))

	for i, input := range inputs {
		if input == nil {
			return nil, errors.Newf(errors.ErrCodeIndicatorRegistration, "indicator %s: input %d is nil", name, i)
		}

		values := input.values()
		if len(values) != r.length {
			return nil, errors.Newf(errors.ErrCodeIndicatorShape,
				"indicator %s: input %s has %d values, expected %d", name, input.Name(), len(values), r.length)
		}

		// functions get their own copy so they cannot corrupt bar columns
		arrays[i] = append([]float64(nil), values...)
	}

	outputs, err := fn(arrays...)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeIndicatorCalculation, err, "indicator %s failed", name)
	}

	if len(outputs) == 0 {
		return nil, errors.Newf(errors.ErrCodeIndicatorShape, "indicator %s returned no output", name)
	}

	lines := make([]*Line, len(outputs))

	for k, output := range outputs {
		if len(output) != r.length {
			return nil, errors.Newf(errors.ErrCodeIndicatorShape,
				"indicator %s: output %d has %d values, expected %d", name, k, len(output), r.length)
		}

		lineName := name
		if len(outputs) > 1 {
			lineName = fmt.Sprintf("%s[%d]", name, k)
		}

		lines[k] = NewLine(lineName, append([]float64(nil), output...), r.clock)
	}

	handle := &Handle{name: name, lines: lines}
	r.handles[name] = handle
	r.order = append(r.order, name)

	return handle, nil
}

// Get returns the indicator registered under name.
func (r *Registry) Get(name string) (*Handle, error) {
	handle, exists := r.handles[name]
	if !exists {
		return nil, errors.Newf(errors.ErrCodeIndicatorNotFound, "indicator %s not found", name)
	}

	return handle, nil
}

// Names returns the registered indicator names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Warmup returns the number of leading bars on which at least one indicator is undefined.
func (r *Registry) Warmup() int {
	warmup := 0
	for _, handle := range r.handles {
		warmup = max(warmup, handle.Warmup())
	}

	return warmup
}
