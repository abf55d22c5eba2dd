package worldmap

import "container/list"

type queueEntry[K comparable, V any] struct {
	key   K
	value V
}

// DictionaryQueue is a FIFO keyed by K. Enqueueing a key that is already
// queued replaces its value and keeps its place in line. It is not safe
// for concurrent use.
type DictionaryQueue[K comparable, V any] struct {
	order *list.List
	index map[K]*list.Element
}

func NewDictionaryQueue[K comparable, V any]() *DictionaryQueue[K, V] {
	return &DictionaryQueue[K, V]{order: list.New(), index: make(map[K]*list.Element)}
}

func (q *DictionaryQueue[K, V]) Len() int { return len(q.index) }

func (q *DictionaryQueue[K, V]) Enqueue(key K, value V) {
	if e, ok := q.index[key]; ok {
		e.Value.(*queueEntry[K, V]).value = value
		return
	}
	q.index[key] = q.order.PushBack(&queueEntry[K, V]{key: key, value: value})
}

// Dequeue pops the oldest entry. ok is false when the queue is empty.
func (q *DictionaryQueue[K, V]) Dequeue() (key K, value V, ok bool) {
	e := q.order.Front()
	if e == nil {
		return key, value, false
	}
	entry := q.order.Remove(e).(*queueEntry[K, V])
	delete(q.index, entry.key)
	return entry.key, entry.value, true
}

func (q *DictionaryQueue[K, V]) Get(key K) (V, bool) {
	if e, ok := q.index[key]; ok {
		return e.Value.(*queueEntry[K, V]).value, true
	}
	var zero V
	return zero, false
}

func (q *DictionaryQueue[K, V]) Remove(key K) bool {
	e, ok := q.index[key]
	if !ok {
		return false
	}
	q.order.Remove(e)
	delete(q.index, key)
	return true
}

func (q *DictionaryQueue[K, V]) Clear() {
	q.order.Init()
	clear(q.index)
}

// All walks the queue in FIFO order.
func (q *DictionaryQueue[K, V]) All(fn func(key K, value V)) {
	for e := q.order.Front(); e != nil; e = e.Next() {
		entry := e.Value.(*queueEntry[K, V])
		fn(entry.key, entry.value)
	}
}
