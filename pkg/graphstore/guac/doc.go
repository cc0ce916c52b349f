// Package guac implements the graph store contract against a GUAC-style
// supply-chain graph HTTP API.
//
// Two endpoints are used:
//
//	GET  /query/packages?purl=...   resolve a coordinate to graph nodes
//	POST /query/neighbors           expand one traversal level, batched
//
// Lookup responses are cached (they are hot for popular roots); neighbor
// expansion is not, since the engine already batches it per level and
// closures change as the graph is ingested.
package guac
