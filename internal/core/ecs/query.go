package ecs

// GetAttribute returns the first attribute of the entity assignable to T.
// T may be a concrete pointer type or an interface.
func GetAttribute[T any](en *Entity) (T, bool) {
	for _, a := range en.attributes {
		if t, ok := a.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// GetAttributes returns every attribute assignable to T, in attribute order.
func GetAttributes[T any](en *Entity) []T {
	var out []T
	for _, a := range en.attributes {
		if t, ok := a.(T); ok {
			out = append(out, t)
		}
	}
	return out
}
