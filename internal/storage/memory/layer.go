package memory

// layer is a write overlay over a committed map. Reads see pending writes;
// commit folds them into the base map.
type layer[K comparable, V any] struct {
	base    map[K]V
	dirty   map[K]V
	deleted map[K]struct{}
}

func newLayer[K comparable, V any](base map[K]V) *layer[K, V] {
	return &layer[K, V]{base: base, dirty: map[K]V{}, deleted: map[K]struct{}{}}
}

func (l *layer[K, V]) get(k K) (V, bool) {
	if _, gone := l.deleted[k]; gone {
		var zero V
		return zero, false
	}
	if v, ok := l.dirty[k]; ok {
		return v, true
	}
	v, ok := l.base[k]
	return v, ok
}

func (l *layer[K, V]) put(k K, v V) {
	delete(l.deleted, k)
	l.dirty[k] = v
}

func (l *layer[K, V]) del(k K) {
	delete(l.dirty, k)
	l.deleted[k] = struct{}{}
}

// each visits every live entry in unspecified order.
func (l *layer[K, V]) each(fn func(K, V)) {
	for k, v := range l.base {
		if _, gone := l.deleted[k]; gone {
			continue
		}
		if _, shadowed := l.dirty[k]; shadowed {
			continue
		}
		fn(k, v)
	}
	for k, v := range l.dirty {
		fn(k, v)
	}
}

func (l *layer[K, V]) len() int {
	n := 0
	l.each(func(K, V) { n++ })
	return n
}

func (l *layer[K, V]) commit() {
	for k := range l.deleted {
		delete(l.base, k)
	}
	for k, v := range l.dirty {
		l.base[k] = v
	}
}
