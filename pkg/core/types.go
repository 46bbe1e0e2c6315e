// Package core defines the neuron/synapse data model shared by the store,
// vector index, walker, retrieval engine, and learner.
package core

import (
	"time"

	"github.com/google/uuid"
)

// NeuronID is an opaque unique identifier for a neuron, stable across
// sessions.
type NeuronID string

// SynapseID is an opaque unique identifier for a synapse.
type SynapseID string

// NewNeuronID generates a new unique neuron id.
func NewNeuronID() NeuronID {
	return NeuronID(uuid.New().String())
}

// NewSynapseID generates a new unique synapse id.
func NewSynapseID() SynapseID {
	return SynapseID(uuid.New().String())
}

// NewQueryID generates a new unique query log id.
func NewQueryID() string {
	return uuid.New().String()
}

// NeuronType is the closed classification set for a neuron's content.
type NeuronType string

const (
	NeuronFunction  NeuronType = "function"
	NeuronClass     NeuronType = "class"
	NeuronMethod    NeuronType = "method"
	NeuronType_     NeuronType = "type"
	NeuronInterface NeuronType = "interface"
	NeuronModule    NeuronType = "module"
	NeuronConfig    NeuronType = "config"
	NeuronDoc       NeuronType = "doc"
	NeuronVariable  NeuronType = "variable"
	NeuronExport    NeuronType = "export"
)

// ValidNeuronTypes is the closed set a neuron's Type must belong to.
var ValidNeuronTypes = map[NeuronType]bool{
	NeuronFunction:  true,
	NeuronClass:     true,
	NeuronMethod:    true,
	NeuronType_:     true,
	NeuronInterface: true,
	NeuronModule:    true,
	NeuronConfig:    true,
	NeuronDoc:       true,
	NeuronVariable:  true,
	NeuronExport:    true,
}

// SynapseType is the closed classification set for a synapse's relation
// kind. Only SynapseCoActivation is ever created or mutated by the
// Learner; the rest are structural and come from the external indexer.
type SynapseType string

const (
	SynapseImports       SynapseType = "imports"
	SynapseCalls         SynapseType = "calls"
	SynapseTypeReference SynapseType = "type_reference"
	SynapseExtends       SynapseType = "extends"
	SynapseProximity     SynapseType = "proximity"
	SynapseCoActivation  SynapseType = "co_activation"
	SynapseSemantic      SynapseType = "semantic"
)

// ValidSynapseTypes is the closed set a synapse's Type must belong to.
var ValidSynapseTypes = map[SynapseType]bool{
	SynapseImports:       true,
	SynapseCalls:         true,
	SynapseTypeReference: true,
	SynapseExtends:       true,
	SynapseProximity:     true,
	SynapseCoActivation:  true,
	SynapseSemantic:      true,
}

// Neuron is a semantic code chunk: a stored neuron with location,
// content, classification, and activation dynamics.
type Neuron struct {
	ID NeuronID

	Content   string
	Summary   string
	Embedding []float32 // nil/empty means "no embedding"

	FilePath  string
	StartLine int
	EndLine   int

	Type     NeuronType
	Name     string
	Language string

	ActivationCount int64
	LastActivated   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NeuronCreateInput is the shape the external chunker/indexer constructs
// when writing a neuron. Ids and timestamps are assigned by the Store.
type NeuronCreateInput struct {
	Content   string
	Summary   string
	Embedding []float32

	FilePath  string
	StartLine int
	EndLine   int

	Type     NeuronType
	Name     string
	Language string
}

// Synapse is a weighted directed edge between two distinct neurons.
type Synapse struct {
	ID SynapseID

	SourceID NeuronID
	TargetID NeuronID

	Weight   float64
	Type     SynapseType
	Metadata map[string]any // arbitrary structured metadata, round-trips via JSON

	FireCount  int64
	LastFired  *time.Time
	CreatedAt  time.Time
}

// SynapseCreateInput is the shape the external indexer (or the Learner)
// constructs to insert a synapse.
type SynapseCreateInput struct {
	SourceID NeuronID
	TargetID NeuronID
	Weight   float64
	Type     SynapseType
	Metadata map[string]any
}

// IndexedFile is a manifest entry for an indexed source file.
type IndexedFile struct {
	Path         string
	Language     string
	NeuronCount  int
	ContentHash  string
	LastIndexed  time.Time
}

// QueryLogEntry records one retrieval call and its outcome.
type QueryLogEntry struct {
	ID                 string
	Query              string
	ActivatedNeuronIDs []NeuronID
	UsedNeuronIDs      []NeuronID // nil until report_used is called
	Timestamp          time.Time
}

// Stats summarizes store-wide counters. AvgActivationDepth is computed by
// the Retrieval Engine, not the Store, per spec.
type Stats struct {
	NeuronCount      int
	SynapseCount     int
	IndexedFileCount int
	Languages        []string
	LastIndexed      *time.Time
	TotalQueries     int
}
