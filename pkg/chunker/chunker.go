// Package chunker defines the shapes the external code-chunking/AST
// collaborator constructs when indexing a source tree. Chunking and AST
// extraction themselves are out of scope: this package is a narrow
// boundary, not an implementation.
package chunker

import "github.com/denizumutdereli/neuralrag/pkg/core"

// FileChunks is the batch an indexer produces for one file: the neurons
// extracted from it, and any structural synapses (imports, calls,
// type_reference, extends, proximity, semantic) discovered among them
// or against previously-indexed files.
type FileChunks struct {
	Path     string
	Language string
	Neurons  []core.NeuronCreateInput
	Synapses []core.SynapseCreateInput
	Hash     string // content hash, for incremental reindex comparison
}

// Indexer is implemented by the external chunker/AST-extraction
// collaborator. The retrieval core never calls into it directly; a
// daemon or CLI front end (also out of scope here) is expected to drive
// Indexer output into pkg/store's batch write operations.
type Indexer interface {
	// ChunkFile parses path's content into neurons and structural
	// synapses, keyed for incremental reindex.
	ChunkFile(path string, content []byte) (FileChunks, error)
}
