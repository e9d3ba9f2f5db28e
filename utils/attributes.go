package utils

import "sort"

// AttributeMap is a loosely typed set of named settings, as decoded from a JSON config file or
// assembled from command line arguments.
type AttributeMap map[string]interface{}

// Has returns whether the given attribute exists.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// Keys returns the attribute names in sorted order.
func (am AttributeMap) Keys() []string {
	keys := make([]string, 0, len(am))
	for k := range am {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
