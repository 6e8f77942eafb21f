// Package memory ties the three memory layers together: an in-process working
// set per task, the episodic table, and the permanent semantic table.
package memory

// Working is a task-scoped scratch space. It lives and dies with one task and
// is never shared across tasks, so it carries no lock by contract.
type Working struct {
	values map[string]any
}

func NewWorking() *Working {
	return &Working{values: make(map[string]any)}
}

func (w *Working) Set(key string, value any) {
	w.values[key] = value
}

func (w *Working) Get(key string) (any, bool) {
	v, ok := w.values[key]
	return v, ok
}

func (w *Working) Remove(key string) {
	delete(w.values, key)
}

func (w *Working) Contains(key string) bool {
	_, ok := w.values[key]
	return ok
}

func (w *Working) Len() int {
	return len(w.values)
}

func (w *Working) Clear() {
	clear(w.values)
}

// Keys returns the stored keys in unspecified order.
func (w *Working) Keys() []string {
	keys := make([]string, 0, len(w.values))
	for k := range w.values {
		keys = append(keys, k)
	}
	return keys
}
