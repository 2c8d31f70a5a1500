package worker_test

import (
	"context"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/tenderhub/extraction-pipeline/internal/config"
	"github.com/tenderhub/extraction-pipeline/internal/extraction"
	"github.com/tenderhub/extraction-pipeline/internal/store"
	"github.com/tenderhub/extraction-pipeline/internal/store/model"
	"github.com/tenderhub/extraction-pipeline/internal/worker"
)

var _ = Describe("finalizer", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
		q      *fakeQueue
		f      *worker.Finalizer
	)

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())

		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration()).To(Succeed())
	})

	AfterAll(func() {
		s.Close()
	})

	BeforeEach(func() {
		q = newFakeQueue()
		f = worker.NewFinalizer(s, q, extraction.NewAggregator(s), nil, 3, 10*time.Millisecond)
	})

	AfterEach(func() {
		gormdb.Exec("DELETE from run_summaries;")
		gormdb.Exec("DELETE from file_extractions;")
		gormdb.Exec("DELETE from batches;")
	})

	createBatch := func(batchID, runID string, total int) {
		_, err := s.Batch().Create(context.TODO(), model.Batch{
			ID:         uuid.New(),
			BatchID:    batchID,
			RunID:      runID,
			TotalFiles: total,
			Status:     model.BatchStatusProcessing,
		})
		Expect(err).To(BeNil())
	}

	createFile := func(docID, runID, status string) {
		_, _, err := s.File().GetOrCreate(context.TODO(), model.FileExtraction{
			ID:       uuid.New(),
			DocID:    docID,
			RunID:    runID,
			Filename: docID + ".txt",
			Status:   status,
		})
		Expect(err).To(BeNil())
	}

	It("does nothing while files are still pending", func() {
		createBatch("batch-1", "run-1", 2)
		createFile("doc-1", "run-1", model.FileStatusSuccess)
		createFile("doc-2", "run-1", model.FileStatusProcessing)

		Expect(f.MaybeFinalize(context.TODO(), "batch-1")).To(Succeed())

		batch, err := s.Batch().Get(context.TODO(), "batch-1")
		Expect(err).To(BeNil())
		Expect(batch.Status).To(Equal(model.BatchStatusProcessing))
		Expect(batch.CompletedAt).To(BeNil())
	})

	It("seals an all-success batch as completed and aggregates", func() {
		createBatch("batch-1", "run-1", 2)
		createFile("doc-1", "run-1", model.FileStatusSuccess)
		createFile("doc-2", "run-1", model.FileStatusSuccess)

		Expect(f.MaybeFinalize(context.TODO(), "batch-1")).To(Succeed())

		batch, err := s.Batch().Get(context.TODO(), "batch-1")
		Expect(err).To(BeNil())
		Expect(batch.Status).To(Equal(model.BatchStatusCompleted))
		Expect(batch.CompletedAt).ToNot(BeNil())

		summary, err := s.Summary().Get(context.TODO(), "run-1")
		Expect(err).To(BeNil())
		Expect(summary.TotalFiles).To(Equal(2))
		Expect(summary.SuccessFiles).To(Equal(2))
		Expect(summary.Status).To(Equal(model.RunSummaryStatusCompleted))
	})

	It("seals a mixed batch as completed_with_errors", func() {
		createBatch("batch-1", "run-1", 5)
		createFile("doc-1", "run-1", model.FileStatusSuccess)
		createFile("doc-2", "run-1", model.FileStatusSuccess)
		createFile("doc-3", "run-1", model.FileStatusSuccess)
		createFile("doc-4", "run-1", model.FileStatusFailed)
		createFile("doc-5", "run-1", model.FileStatusFailed)

		Expect(f.MaybeFinalize(context.TODO(), "batch-1")).To(Succeed())

		batch, err := s.Batch().Get(context.TODO(), "batch-1")
		Expect(err).To(BeNil())
		Expect(batch.Status).To(Equal(model.BatchStatusCompletedWithErrors))

		summary, err := s.Summary().Get(context.TODO(), "run-1")
		Expect(err).To(BeNil())
		Expect(summary.SuccessFiles).To(Equal(3))
		Expect(summary.FailedFiles).To(Equal(2))
	})

	It("is idempotent: a second call leaves the sealed batch untouched", func() {
		createBatch("batch-1", "run-1", 1)
		createFile("doc-1", "run-1", model.FileStatusSuccess)

		Expect(f.MaybeFinalize(context.TODO(), "batch-1")).To(Succeed())

		batch, err := s.Batch().Get(context.TODO(), "batch-1")
		Expect(err).To(BeNil())
		firstCompletedAt := batch.CompletedAt
		Expect(firstCompletedAt).ToNot(BeNil())

		Expect(f.MaybeFinalize(context.TODO(), "batch-1")).To(Succeed())

		batch, err = s.Batch().Get(context.TODO(), "batch-1")
		Expect(err).To(BeNil())
		Expect(batch.Status).To(Equal(model.BatchStatusCompleted))
		Expect(batch.CompletedAt.Unix()).To(Equal(firstCompletedAt.Unix()))

		count := 0
		Expect(gormdb.Raw("SELECT COUNT(*) from run_summaries;").Scan(&count).Error).To(BeNil())
		Expect(count).To(Equal(1))
	})

	It("skips finalization for an unknown batch without error", func() {
		Expect(f.MaybeFinalize(context.TODO(), "no-such-batch")).To(Succeed())
	})

	It("backfills a zero total from the observed file count", func() {
		createBatch("batch-1", "run-1", 0)
		createFile("doc-1", "run-1", model.FileStatusSuccess)
		createFile("doc-2", "run-1", model.FileStatusFailed)

		Expect(f.MaybeFinalize(context.TODO(), "batch-1")).To(Succeed())

		batch, err := s.Batch().Get(context.TODO(), "batch-1")
		Expect(err).To(BeNil())
		Expect(batch.TotalFiles).To(Equal(2))
		Expect(batch.Status).To(Equal(model.BatchStatusCompletedWithErrors))
	})

	It("finalizes through the run-id/batch-id alias", func() {
		createBatch("batch-1", "", 1)
		createFile("doc-1", "batch-1", model.FileStatusSuccess)

		Expect(f.MaybeFinalize(context.TODO(), "batch-1")).To(Succeed())

		batch, err := s.Batch().Get(context.TODO(), "batch-1")
		Expect(err).To(BeNil())
		Expect(batch.Status).To(Equal(model.BatchStatusCompleted))

		summary, err := s.Summary().Get(context.TODO(), "batch-1")
		Expect(err).To(BeNil())
		Expect(summary.SuccessFiles).To(Equal(1))
	})

	It("re-dispatches pending files when nothing is in flight", func() {
		createBatch("batch-1", "run-1", 2)
		createFile("doc-1", "run-1", model.FileStatusSuccess)
		createFile("doc-2", "run-1", model.FileStatusPending)

		Expect(f.MaybeFinalize(context.TODO(), "batch-1")).To(Succeed())

		batch, err := s.Batch().Get(context.TODO(), "batch-1")
		Expect(err).To(BeNil())
		Expect(batch.Status).To(Equal(model.BatchStatusProcessing))

		msgs := q.liveMessages()
		Expect(msgs).To(HaveLen(1))
		Expect(msgs[0].DocID).To(Equal("doc-2"))
		Expect(msgs[0].BatchID).To(Equal("batch-1"))
	})

	It("leaves pending files alone while a sibling is processing", func() {
		createBatch("batch-1", "run-1", 3)
		createFile("doc-1", "run-1", model.FileStatusSuccess)
		createFile("doc-2", "run-1", model.FileStatusPending)
		createFile("doc-3", "run-1", model.FileStatusProcessing)

		Expect(f.MaybeFinalize(context.TODO(), "batch-1")).To(Succeed())
		Expect(q.liveLen()).To(Equal(0))
	})
})
