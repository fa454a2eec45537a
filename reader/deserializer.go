// Package reader implements the Deserializer: the per-reader engine that
// installs a writer cohort's per-step metadata, plans block-intersecting
// reads against their data buffers, and scatters the results into a
// caller's destination array via ndcopy.NdCopy.
//
// Grounded on a multi-source decode-and-index skeleton (absolute-from-delta
// index reconstruction, sorted multi-source aggregation) generalized from
// one fixed schema to any FormatContext-registered layout.
package reader

import (
	"github.com/bp5io/bp5/endian"
	"github.com/bp5io/bp5/formatctx"
	"github.com/bp5io/bp5/operator"
	"github.com/bp5io/bp5/writer"
)

var engine = endian.GetLittleEndianEngine()

// Deserializer is the per-reader-instance engine. Not safe for concurrent
// use, matching the Serializer's single-threaded-per-engine model; distinct
// readers may run concurrently provided each owns its own FormatContext or
// carefully shares a read-mostly one.
type Deserializer struct {
	fc *formatctx.FormatContext

	// rowMajor is this reader's own array majorness; writerRowMajor is the
	// majorness every installed writer record's bytes are stored in. Both
	// flags travel straight through to ndcopy.NdCopy at Get time — a
	// mismatch is resolved there, by giving each side the strides for its
	// own majorness over the same (unreordered) dimension geometry.
	rowMajor       bool
	writerRowMajor bool

	// defaultOperator is the one compression codec this reader assumes for
	// every HasOperator variable (see Deserializer.operatorTypeOf).
	defaultOperator operator.Type

	vars   []*VarRec
	byName map[string]int

	controls map[formatctx.FormatHandle]*controlInfo

	haveStep    bool
	curStep     uint64
	writerCount int

	attrs        map[string]writer.Attribute
	attrOrder    []string
	attrStep     uint64
	haveAttrStep bool

	pending []*pendingGet
}

// New returns a Deserializer reading a cohort that writes in writerRowMajor
// order, presenting arrays to the caller in rowMajor order, decompressing
// HasOperator variables with defaultOperator.
func New(fc *formatctx.FormatContext, rowMajor, writerRowMajor bool, defaultOperator operator.Type) *Deserializer {
	return &Deserializer{
		fc:              fc,
		rowMajor:        rowMajor,
		writerRowMajor:  writerRowMajor,
		defaultOperator: defaultOperator,
		byName:          make(map[string]int),
		controls:        make(map[formatctx.FormatHandle]*controlInfo),
		attrs:           make(map[string]writer.Attribute),
	}
}

// SetupForStep declares the step QueueGet's streaming-mode requests target
// and how many writers contributed to it.
func (d *Deserializer) SetupForStep(step uint64, writerCount int) {
	d.curStep = step
	d.writerCount = writerCount
	d.haveStep = true
}

// InstallMetaMetaData registers a (id, info) schema descriptor pair emitted
// by a writer's CloseTimestep, the same way the writer's own FormatContext
// registered it locally.
func (d *Deserializer) InstallMetaMetaData(idBlob, infoBlob []byte) error {
	_, err := d.fc.InstallMetaMeta(idBlob, infoBlob)
	return err
}

// varByName looks up a previously-installed variable by name.
func (d *Deserializer) varByName(name string) (*VarRec, int, bool) {
	idx, ok := d.byName[name]
	if !ok {
		return nil, 0, false
	}
	return d.vars[idx], idx, true
}
