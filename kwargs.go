package courier

import "maps"

// Kwargs carries the caller-supplied named arguments for one task
// invocation. Keys are field names from the task's declared schema.
type Kwargs map[string]any

// Clone returns a shallow copy of k. A nil receiver yields nil.
func (k Kwargs) Clone() Kwargs {
	if k == nil {
		return nil
	}
	return maps.Clone(k)
}

// Has reports whether the named argument is present.
func (k Kwargs) Has(name string) bool {
	_, ok := k[name]
	return ok
}
