package events

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("producer", Ordered, func() {
	Context("write", func() {
		It("delivers events to the writer with the default topic", func() {
			w := newTestWriter()
			ep := NewEventProducer(w)

			body, err := json.Marshal(BatchFinalizedEvent{
				BatchID: "batch-1",
				RunID:   "run-1",
				Status:  "completed",
				Total:   3,
				Success: 3,
			})
			Expect(err).To(BeNil())

			Expect(ep.Write(context.TODO(), BatchFinalizedKind, bytes.NewReader(body))).To(Succeed())
			Eventually(w.count, 2*time.Second).Should(Equal(1))

			e, topic := w.message(0)
			Expect(topic).To(Equal(defaultTopic))
			Expect(e.Type()).To(Equal(BatchFinalizedKind))
			Expect(e.Source()).To(Equal(eventSource))

			var decoded BatchFinalizedEvent
			Expect(json.Unmarshal(e.Data(), &decoded)).To(Succeed())
			Expect(decoded.BatchID).To(Equal("batch-1"))
			Expect(decoded.Total).To(Equal(int64(3)))

			Expect(ep.Close()).To(Succeed())
		})

		It("honors a custom topic and keeps event order", func() {
			w := newTestWriter()
			ep := NewEventProducer(w, WithOutputTopic("extraction.custom"))

			Expect(ep.Write(context.TODO(), BatchFinalizedKind, bytes.NewReader([]byte(`{"batch_id":"a"}`)))).To(Succeed())
			Expect(ep.Write(context.TODO(), BatchFinalizedKind, bytes.NewReader([]byte(`{"batch_id":"b"}`)))).To(Succeed())

			Eventually(w.count, 2*time.Second).Should(Equal(2))

			first, topic := w.message(0)
			Expect(topic).To(Equal("extraction.custom"))
			Expect(string(first.Data())).To(ContainSubstring(`"a"`))

			second, _ := w.message(1)
			Expect(string(second.Data())).To(ContainSubstring(`"b"`))

			Expect(ep.Close()).To(Succeed())
		})
	})
})

type written struct {
	event cloudevents.Event
	topic string
}

type testwriter struct {
	mu       sync.Mutex
	messages []written
}

func newTestWriter() *testwriter {
	return &testwriter{}
}

func (t *testwriter) Write(_ context.Context, topic string, e cloudevents.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, written{event: e, topic: topic})
	return nil
}

func (t *testwriter) Close(_ context.Context) error { return nil }

func (t *testwriter) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func (t *testwriter) message(i int) (cloudevents.Event, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.messages[i].event, t.messages[i].topic
}
