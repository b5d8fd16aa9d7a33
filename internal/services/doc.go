// Package services provides the centralized service registry for
// docrouter.
//
// Registry pattern for accessing the core services (pipeline, conflict
// gate, knowledge database, review queue, similarity store). Use Build()
// to construct the full object graph from configuration, or
// NewRegistry() to assemble one from existing instances.
package services
