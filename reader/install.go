package reader

import (
	"fmt"

	"github.com/bp5io/bp5/errs"
	"github.com/bp5io/bp5/format"
	"github.com/bp5io/bp5/section"
	"github.com/bp5io/bp5/writer"
)

// InstallMetaData decodes one writer's metadata record for one step and
// folds its per-variable block geometry into this reader's index.
func (d *Deserializer) InstallMetaData(blob []byte, writerRank int, step uint64) error {
	handle, err := d.fc.IdentifyIncoming(blob)
	if err != nil {
		return err
	}

	ci, err := d.buildControlInfo(handle)
	if err != nil {
		return err
	}

	rec, err := d.fc.DecodeInPlace(handle, blob)
	if err != nil {
		return err
	}

	bf, err := reconstructBitfield(rec)
	if err != nil {
		return err
	}

	for fieldID, cs := range ci.controls {
		if !bf.Test(fieldID) {
			continue
		}

		slotBytes, ok := rec.Field(cs.fieldName)
		if !ok {
			return fmt.Errorf("%w: metadata record missing slot for field %q", errs.ErrRecordLayoutMismatch, cs.fieldName)
		}
		slot := engine.Uint64(slotBytes)
		if slot == 0 || int(slot) >= len(blob) {
			return fmt.Errorf("%w: field %q has a set bit but no slot payload", errs.ErrRecordLayoutMismatch, cs.fieldName)
		}

		v := d.vars[cs.varIdx]
		v.noteStep(step)
		wb := v.writerBlockFor(step, writerRank)

		if v.ShapeKind.IsArray() {
			ma, _, _, err := section.DecodeMetaArray(blob[slot:])
			if err != nil {
				return err
			}
			if v.Dims == 0 {
				v.Dims = ma.Dims
			}
			v.applyShape(ma.Shape)
			wb.meta = ma
		} else {
			raw, _, err := section.DecodeScalar(blob[slot:])
			if err != nil {
				return err
			}
			wb.scalar = append([]byte(nil), raw...)
		}
	}

	return nil
}

// InstallAttributeData decodes an attribute table emitted by a writer's
// CloseTimestep. Installing a blob for a step different from the last one
// seen discards the previous step's attributes first, matching the
// write-side contract that attributes are current-step snapshots, not an
// accumulating history.
func (d *Deserializer) InstallAttributeData(blob []byte, step uint64) error {
	if !d.haveAttrStep || step != d.attrStep {
		d.attrs = make(map[string]writer.Attribute)
		d.attrOrder = nil
		d.attrStep = step
		d.haveAttrStep = true
	}

	attrs, order, err := writer.DecodeAttributes(blob)
	if err != nil {
		return err
	}
	for _, name := range order {
		if _, ok := d.attrs[name]; !ok {
			d.attrOrder = append(d.attrOrder, name)
		}
		d.attrs[name] = attrs[name]
	}
	return nil
}

// Attribute returns a previously-installed attribute's value by name.
func (d *Deserializer) Attribute(name string) (format.ElementType, int, []byte, bool) {
	a, ok := d.attrs[name]
	if !ok {
		return 0, 0, nil, false
	}
	return a.Type, a.ElemCount, a.Data, true
}
