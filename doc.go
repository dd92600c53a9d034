// Package courier provides a typed-argument marshalling layer between
// application code and a job broker. Callers declare an argument schema per
// task, submit keyword arguments that are validated strictly, and courier
// serializes them into a string-keyed wire payload the broker can carry.
// On the consuming side courier deserializes the payload back into typed
// arguments with permissive coercion and invokes the task body.
//
// Courier is designed as a library, not a service. Import it, configure a
// broker, and register tasks as ordinary Go functions.
//
// # Quick Start
//
//	eng, err := engine.New(
//	    engine.WithBroker(memory.New()),
//	)
//
// # Architecture
//
// Courier keeps two validation regimes deliberately separate: submission
// validates strictly (unknown keys, missing required fields, and type
// mismatches are errors), while dispatch coerces permissively (wire formats
// lose type fidelity, so "42" is an acceptable integer on the way in).
// Serialization never coerces; deserialization always does.
//
// All job IDs use TypeID: type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package courier
