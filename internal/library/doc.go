// Package library models the folder taxonomy and media items an export reads.
//
// The Taxonomy interface is the read-only view the pipeline and API depend on:
// folder lookup, nearest-first ancestor chains, transitive descendants, item
// membership, and a flat folder listing. Catalog is the in-memory
// implementation, loaded from a YAML file by LoadCatalog or assembled directly
// with NewCatalog in tests.
package library
