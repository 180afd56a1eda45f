// Package cassette defines the persisted artifact of a recorded request
// and its (de)serialization contract.
//
// A Cassette is constructed once at the end of a record pass and is
// immutable from then on. The ordered Events slice is the authoritative
// replay order; event IDs are contiguous from 1 and strictly increasing
// in call order, which is what the replay cursor relies on.
//
// Serialization uses explicit per-entity converters rather than
// reflection so optional fields are omitted (not null-padded) and so
// deserialization never trusts arbitrary extra keys. Schema evolution
// goes through an ordered migration table keyed by version.
//
// This package depends on redact and hashing only for the values it
// stores (body snapshots), never for its own logic.
package cassette
