package events

import "sync"

type message struct {
	Kind string
	Data []byte
}

// buffer is a mutex-guarded FIFO of pending events. The producer drains it
// from a single goroutine; writers only append.
type buffer struct {
	lock sync.Mutex
	msgs []*message
}

func newBuffer() *buffer {
	return &buffer{}
}

func (b *buffer) PushBack(msg *message) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.msgs = append(b.msgs, msg)
	return nil
}

func (b *buffer) Pop() *message {
	b.lock.Lock()
	defer b.lock.Unlock()

	if len(b.msgs) == 0 {
		return nil
	}
	msg := b.msgs[0]
	b.msgs = b.msgs[1:]
	return msg
}

func (b *buffer) Size() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return len(b.msgs)
}
