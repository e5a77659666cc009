package extract

// Option is a value that may be absent.
type Option[T any] struct {
	value T
	ok    bool
}

func Some[T any](v T) Option[T] { return Option[T]{value: v, ok: true} }

func None[T any]() Option[T] { return Option[T]{} }

// FromPtr lifts a nil-able pointer into an Option.
func FromPtr[T any](p *T) Option[T] {
	if p == nil {
		return None[T]()
	}
	return Some(*p)
}

func (o Option[T]) Get() (T, bool) { return o.value, o.ok }

func (o Option[T]) IsSome() bool { return o.ok }

// OrDefault returns the held value or def.
func (o Option[T]) OrDefault(def T) T {
	if o.ok {
		return o.value
	}
	return def
}

// Or returns o when present, else other.
func (o Option[T]) Or(other Option[T]) Option[T] {
	if o.ok {
		return o
	}
	return other
}

// OrElse evaluates next only when o is empty.
func (o Option[T]) OrElse(next func() Option[T]) Option[T] {
	if o.ok {
		return o
	}
	return next()
}

// Ptr returns a pointer to a copy of the value, or nil.
func (o Option[T]) Ptr() *T {
	if !o.ok {
		return nil
	}
	v := o.value
	return &v
}

// Map applies fn to a present value.
func Map[T, U any](o Option[T], fn func(T) U) Option[U] {
	if !o.ok {
		return None[U]()
	}
	return Some(fn(o.value))
}

// First runs tiers in order and returns the first present result. Later tiers
// are never evaluated once one succeeds.
func First[T any](tiers ...func() Option[T]) Option[T] {
	for _, tier := range tiers {
		if o := tier(); o.ok {
			return o
		}
	}
	return None[T]()
}

// NonEmpty treats an empty slice as absent.
func NonEmpty[T any](s []T) Option[[]T] {
	if len(s) == 0 {
		return None[[]T]()
	}
	return Some(s)
}

// NonBlank treats an empty string as absent.
func NonBlank(s string) Option[string] {
	if s == "" {
		return None[string]()
	}
	return Some(s)
}
