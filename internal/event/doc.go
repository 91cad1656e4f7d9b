// Package event defines the canonical message event and the error
// taxonomy for inbound event handling.
//
// Every provider adapter normalizes its wire payload into an Event;
// everything downstream of normalization (session resolution, the
// runtime call, memory commits) sees only this shape.
package event
