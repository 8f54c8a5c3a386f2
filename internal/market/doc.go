// Package market defines the core types and interfaces shared across the
// listing-ingestion pipeline: the Listing data model, partial extraction
// results, the renderer and store contracts, and the fetch error taxonomy.
package market
