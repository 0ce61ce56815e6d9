// Package memstore is test support: in-memory repositories that stand in for
// the Postgres ones in the booking, slots, catalog, contact and handlers tests.
// The service binary never wires it. Slots and Appointments share a lock order
// (slots before appointments) so slot claims stay atomic like the SQL claim.
package memstore
