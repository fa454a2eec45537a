package reader

import (
	"sort"

	"github.com/bp5io/bp5/format"
	"github.com/bp5io/bp5/operator"
	"github.com/bp5io/bp5/section"
)

// writerBlock is one writer's contribution to a variable for one step: the
// decoded scalar bytes (scalar shape kinds) or the decoded block geometry
// (array shape kinds). Exactly one of the two is set.
type writerBlock struct {
	scalar []byte
	meta   *section.MetaArray
}

// VarRec is the reader-side record for one variable name, shared across
// every format handle whose field list names it — a variable first seen
// under one schema and later seen, unchanged, under a schema that added an
// unrelated field links back to the same VarRec rather than creating a
// second one.
type VarRec struct {
	Name        string
	Type        format.ElementType
	ShapeKind   format.ShapeKind
	Dims        int // discovered from the first decoded block; 0 until then for arrays
	ElemSize    int
	HasOperator bool
	HasStats    bool
	Operator    operator.Type

	// GlobalShape is the authoritative shape: the first non-null Shape this
	// variable's blocks ever reported. Later Shapes, null or not, leave it
	// unchanged.
	GlobalShape []uint64

	haveFirstStep bool
	FirstStep     uint64
	LastStepAdded uint64
	absSteps      []uint64 // sorted ascending, unique

	steps map[uint64]map[int]*writerBlock // step -> writerRank -> block
}

func newVarRec(name string) *VarRec {
	return &VarRec{
		Name:  name,
		steps: make(map[uint64]map[int]*writerBlock),
	}
}

func (v *VarRec) noteStep(step uint64) {
	if !v.haveFirstStep {
		v.FirstStep = step
		v.LastStepAdded = step
		v.haveFirstStep = true
	} else if step > v.LastStepAdded {
		v.LastStepAdded = step
	}

	i := sort.Search(len(v.absSteps), func(i int) bool { return v.absSteps[i] >= step })
	if i < len(v.absSteps) && v.absSteps[i] == step {
		return
	}
	v.absSteps = append(v.absSteps, 0)
	copy(v.absSteps[i+1:], v.absSteps[i:])
	v.absSteps[i] = step
}

func (v *VarRec) applyShape(shape []uint64) {
	if len(shape) == 0 || v.GlobalShape != nil {
		return
	}
	v.GlobalShape = append([]uint64(nil), shape...)
}

func (v *VarRec) writerBlockFor(step uint64, writerRank int) *writerBlock {
	byWriter, ok := v.steps[step]
	if !ok {
		byWriter = make(map[int]*writerBlock)
		v.steps[step] = byWriter
	}
	wb, ok := byWriter[writerRank]
	if !ok {
		wb = &writerBlock{}
		byWriter[writerRank] = wb
	}
	return wb
}

// GetAbsoluteSteps returns the sorted, de-duplicated absolute step numbers on
// which this variable was ever written by any writer.
func (v *VarRec) GetAbsoluteSteps() []uint64 {
	return append([]uint64(nil), v.absSteps...)
}

// writersAt returns the writer ranks that wrote this variable on step, in
// ascending rank order (the order GenerateReadRequests' NodeFirstBlock walk
// and MinBlocksInfo's output both depend on).
func (v *VarRec) writersAt(step uint64) []int {
	byWriter, ok := v.steps[step]
	if !ok {
		return nil
	}
	ranks := make([]int, 0, len(byWriter))
	for r := range byWriter {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	return ranks
}
