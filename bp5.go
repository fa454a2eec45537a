// Package bp5 provides a self-describing binary step engine for parallel
// scientific and HPC workloads: writers stage labeled multi-dimensional
// arrays and scalars per simulation step, readers merge a writer cohort's
// metadata and retrieve arbitrary subregions.
//
// # Core Features
//
//   - Self-describing metadata: field names encode shape kind, operator and
//     stats presence, so a schema change (adding a variable) never requires a
//     format version bump
//   - Columnar, bitfield-gated metadata records: a step that only writes a
//     subset of variables pays only for the ones it touched
//   - Pluggable per-variable compression operators (zstd, S2, LZ4)
//   - Local, Global and Joined array shape kinds, with N-dimensional
//     bounding-box retrieval and majorness-aware scatter on read
//   - Cohort metadata aggregation: many writers' per-step metadata blobs fold
//     into one contiguous buffer a reader can install in one pass
//
// # Basic Usage
//
// Writing a step:
//
//	fc := bp5.NewFormatContext()
//	w := bp5.NewWriter(fc)
//	w.InitStep(nil)
//	w.Marshal(writer.MarshalInput{
//	    Name: "temperature", Type: format.TypeDouble, Shape: format.ShapeGlobalValue,
//	    Data: encodedFloat64,
//	})
//	info, err := w.CloseTimestep(0, true)
//
// Reading it back:
//
//	r := bp5.NewReader(bp5.NewFormatContext(), true, true, operator.TypeNone)
//	for _, mm := range info.NewMetaMeta {
//	    r.InstallMetaMetaData(mm.ID, mm.Info)
//	}
//	r.InstallMetaData(info.MetadataBlob, 0, 0)
//	r.SetupForStep(0, 1)
//	deferred, err := r.QueueGet(reader.GetRequest{VarName: "temperature", Dst: dst})
//
// # Package Structure
//
// This file provides convenient top-level wrappers around the writer,
// reader and formatctx packages for the most common construction paths. For
// fine-grained control — custom layouts, aggregation across a writer
// cohort, attribute handling — use those packages directly.
package bp5

import (
	"github.com/bp5io/bp5/formatctx"
	"github.com/bp5io/bp5/operator"
	"github.com/bp5io/bp5/reader"
	"github.com/bp5io/bp5/writer"
)

// NewFormatContext returns an empty schema registry. One FormatContext is
// shared by every writer rank in a cohort; a reader merging that cohort's
// output owns a separate FormatContext of its own, populated via
// InstallMetaMetaData from the blobs CloseTimestep hands back.
func NewFormatContext() *formatctx.FormatContext {
	return formatctx.New()
}

// NewWriter returns a Serializer for one writer rank, registering new
// layouts into fc as variables are first seen.
func NewWriter(fc *formatctx.FormatContext) *writer.Serializer {
	return writer.New(fc)
}

// NewReader returns a Deserializer that merges a writer cohort sharing a
// FormatContext lineage with fc.
//
// rowMajor is the majorness this reader presents arrays to its caller in;
// writerRowMajor is the majorness the cohort's writers actually stored
// bytes in. They may differ — a reader can request row-major delivery of a
// column-major-written cohort — and QueueGet/FinalizeGet resolve the
// mismatch per request via ndcopy.NdCopy.
//
// defaultOperator is the one compression codec this reader assumes for
// every variable whose field name reports an operator present; see
// reader.Deserializer for the limitation this implies on heterogeneous
// per-variable codecs.
func NewReader(fc *formatctx.FormatContext, rowMajor, writerRowMajor bool, defaultOperator operator.Type) *reader.Deserializer {
	return reader.New(fc, rowMajor, writerRowMajor, defaultOperator)
}
