package reader

import (
	"fmt"

	"github.com/bp5io/bp5/errs"
	"github.com/bp5io/bp5/format"
)

// BlockInfo describes one writer block's geometry and (if tracked) folded
// statistics, as returned by MinBlocksInfo. BlockID numbers blocks the same
// way GenerateReadRequests' Local addressing does: a running count across
// writers in rank order.
type BlockInfo struct {
	WriterRank int
	BlockID    int
	Count      []uint64
	Offsets    []uint64
	MinMax     format.MinMax
}

// GetAbsoluteSteps returns the sorted, de-duplicated absolute step numbers on
// which name was ever written by any writer in the installed cohort.
func (d *Deserializer) GetAbsoluteSteps(name string) ([]uint64, error) {
	v, _, ok := d.varByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownVariable, name)
	}
	return v.GetAbsoluteSteps(), nil
}

// VarShape returns name's global shape: the first non-null Shape installed
// for it (see VarRec.GlobalShape). relStep must index GetAbsoluteSteps, but
// the shape returned is the same for every step.
func (d *Deserializer) VarShape(name string, relStep int) ([]uint64, error) {
	v, _, ok := d.varByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownVariable, name)
	}
	if relStep < 0 || relStep >= len(v.absSteps) {
		return nil, fmt.Errorf("%w: relStep %d exceeds %d available for %q", errs.ErrStepRangeOutOfBounds, relStep, len(v.absSteps), name)
	}
	if v.GlobalShape == nil {
		return nil, fmt.Errorf("%w: %q has no global shape (local array or scalar)", errs.ErrInvalidArgument, name)
	}
	return append([]uint64(nil), v.GlobalShape...), nil
}

// MinBlocksInfo returns every writer's block geometry (and stats, if
// tracked) for name at step, ordered by writer rank then block index.
func (d *Deserializer) MinBlocksInfo(name string, step uint64) ([]BlockInfo, error) {
	v, _, ok := d.varByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnknownVariable, name)
	}

	var out []BlockInfo
	blockID := 0
	for _, w := range v.writersAt(step) {
		wb := v.steps[step][w]
		if wb == nil || wb.meta == nil {
			continue
		}
		for b := 0; b < wb.meta.BlockCount; b++ {
			info := BlockInfo{
				WriterRank: w,
				BlockID:    blockID,
				Count:      wb.meta.BlockCountAt(b),
				Offsets:    wb.meta.BlockOffsetsAt(b),
			}
			if wb.meta.HasStats() {
				info.MinMax = wb.meta.MinMax[b]
			}
			out = append(out, info)
			blockID++
		}
	}
	return out, nil
}

// VariableMinMax folds the per-block statistics (arrays) or scalar values
// recorded for name into a single MinMax, either for one step or — when
// allSteps is set — across every step the variable was ever written.
func (d *Deserializer) VariableMinMax(name string, step uint64, allSteps bool) (format.MinMax, error) {
	v, _, ok := d.varByName(name)
	if !ok {
		return format.MinMax{}, fmt.Errorf("%w: %q", errs.ErrUnknownVariable, name)
	}

	steps := []uint64{step}
	if allSteps {
		steps = v.absSteps
	}

	mm := format.NewMinMax(v.Type)
	any := false

	for _, s := range steps {
		byWriter, ok := v.steps[s]
		if !ok {
			continue
		}
		for _, wb := range byWriter {
			switch {
			case wb.meta != nil:
				if !wb.meta.HasStats() {
					continue
				}
				for _, bmm := range wb.meta.MinMax {
					mm.Merge(bmm)
					any = true
				}
			case wb.scalar != nil:
				val, err := format.DecodeAsFloat64(v.Type, wb.scalar)
				if err != nil {
					return format.MinMax{}, err
				}
				mm.ApplyElementMinMax(val)
				any = true
			}
		}
	}

	if !any {
		return format.MinMax{}, fmt.Errorf("%w: no statistics available for %q", errs.ErrInvalidArgument, name)
	}
	return mm, nil
}
