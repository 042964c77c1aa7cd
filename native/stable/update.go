package stable

type updateKind uint8

const (
	updateKeep updateKind = iota
	updateClear
	updateSet
)

// Update is a three-state instruction for an optional field: leave it alone,
// clear it, or set it to a new value. The zero value keeps the field.
type Update[T any] struct {
	kind  updateKind
	value T
}

// Keep leaves the field unchanged.
func Keep[T any]() Update[T] { return Update[T]{kind: updateKeep} }

// Clear removes the field's value.
func Clear[T any]() Update[T] { return Update[T]{kind: updateClear} }

// Set replaces the field's value.
func Set[T any](value T) Update[T] { return Update[T]{kind: updateSet, value: value} }

// IsKeep reports whether the instruction leaves the field untouched.
func (u Update[T]) IsKeep() bool { return u.kind == updateKeep }

// IsClear reports whether the instruction clears the field.
func (u Update[T]) IsClear() bool { return u.kind == updateClear }

// Value returns the new value and true when the instruction sets the field.
func (u Update[T]) Value() (T, bool) {
	return u.value, u.kind == updateSet
}

// Apply resolves the instruction against the current optional value.
func (u Update[T]) Apply(current *T) *T {
	switch u.kind {
	case updateClear:
		return nil
	case updateSet:
		v := u.value
		return &v
	default:
		return current
	}
}
