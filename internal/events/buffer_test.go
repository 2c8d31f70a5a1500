package events

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("buffer", Ordered, func() {
	Context("buffer", func() {
		It("keeps insertion order", func() {
			buffer := newBuffer()

			Expect(buffer.PushBack(&message{Kind: BatchFinalizedKind, Data: []byte("msg1")})).To(Succeed())
			Expect(buffer.Size()).To(Equal(1))

			Expect(buffer.PushBack(&message{Kind: BatchFinalizedKind, Data: []byte("msg2")})).To(Succeed())
			Expect(buffer.PushBack(&message{Kind: BatchFinalizedKind, Data: []byte("msg3")})).To(Succeed())
			Expect(buffer.Size()).To(Equal(3))

			m := buffer.Pop()
			Expect(m).NotTo(BeNil())
			Expect(m.Data).To(Equal([]byte("msg1")))
			Expect(buffer.Size()).To(Equal(2))

			m = buffer.Pop()
			Expect(m).NotTo(BeNil())
			Expect(m.Data).To(Equal([]byte("msg2")))

			m = buffer.Pop()
			Expect(m).NotTo(BeNil())
			Expect(m.Data).To(Equal([]byte("msg3")))
			Expect(buffer.Size()).To(Equal(0))
		})

		It("pops nil when empty", func() {
			buffer := newBuffer()
			Expect(buffer.Pop()).To(BeNil())

			Expect(buffer.PushBack(&message{Kind: BatchFinalizedKind, Data: []byte("msg")})).To(Succeed())
			Expect(buffer.Pop()).NotTo(BeNil())
			Expect(buffer.Pop()).To(BeNil())
			Expect(buffer.Size()).To(Equal(0))
		})
	})
})
