package store_test

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/tenderhub/extraction-pipeline/internal/config"
	"github.com/tenderhub/extraction-pipeline/internal/store"
	"github.com/tenderhub/extraction-pipeline/internal/store/model"
)

var _ = Describe("file store", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
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

	AfterEach(func() {
		gormdb.Exec("DELETE from file_extractions;")
	})

	Context("get or create", func() {
		It("creates a missing record", func() {
			file, created, err := s.File().GetOrCreate(context.TODO(), model.FileExtraction{
				ID:       uuid.New(),
				DocID:    "doc-1",
				RunID:    "run-1",
				Filename: "a.txt",
			})
			Expect(err).To(BeNil())
			Expect(created).To(BeTrue())
			Expect(file.Status).To(Equal(model.FileStatusPending))
		})

		It("returns the existing record without error on re-registration", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-1", "run-1", "a.txt", "SUCCESS"))
			Expect(tx.Error).To(BeNil())

			file, created, err := s.File().GetOrCreate(context.TODO(), model.FileExtraction{
				ID:       uuid.New(),
				DocID:    "doc-1",
				RunID:    "run-other",
				Filename: "renamed.txt",
			})
			Expect(err).To(BeNil())
			Expect(created).To(BeFalse())
			// the original record wins, untouched
			Expect(file.RunID).To(Equal("run-1"))
			Expect(file.Status).To(Equal(model.FileStatusSuccess))
		})

		It("absorbs a collision inside a caller-owned transaction", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-1", "run-1", "a.txt", "SUCCESS"))
			Expect(tx.Error).To(BeNil())

			txCtx, err := s.NewTransactionContext(context.TODO())
			Expect(err).To(BeNil())

			file, created, err := s.File().GetOrCreate(txCtx, model.FileExtraction{
				ID:       uuid.New(),
				DocID:    "doc-1",
				RunID:    "run-1",
				Filename: "a.txt",
			})
			Expect(err).To(BeNil())
			Expect(created).To(BeFalse())
			Expect(file.DocID).To(Equal("doc-1"))

			// the transaction must survive the collision: later work on the
			// same tx still commits
			_, created, err = s.File().GetOrCreate(txCtx, model.FileExtraction{
				ID:       uuid.New(),
				DocID:    "doc-2",
				RunID:    "run-1",
				Filename: "b.txt",
			})
			Expect(err).To(BeNil())
			Expect(created).To(BeTrue())

			_, err = store.Commit(txCtx)
			Expect(err).To(BeNil())

			count := 0
			Expect(gormdb.Raw("SELECT COUNT(*) from file_extractions;").Scan(&count).Error).To(BeNil())
			Expect(count).To(Equal(2))
		})
	})

	Context("state transitions", func() {
		It("marks a file processing with a start time", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-1", "run-1", "a.txt", "pending"))
			Expect(tx.Error).To(BeNil())

			file, err := s.File().MarkProcessing(context.TODO(), "doc-1")
			Expect(err).To(BeNil())
			Expect(file.Status).To(Equal(model.FileStatusProcessing))
			Expect(file.ProcessingStartedAt).ToNot(BeNil())
		})

		It("marks a file successful and stores its payload", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-1", "run-1", "a.txt", "pending"))
			Expect(tx.Error).To(BeNil())

			_, err := s.File().MarkProcessing(context.TODO(), "doc-1")
			Expect(err).To(BeNil())

			err = s.File().MarkSuccess(context.TODO(), "doc-1", map[string]any{"supplier": "acme"})
			Expect(err).To(BeNil())

			file, err := s.File().Get(context.TODO(), "doc-1")
			Expect(err).To(BeNil())
			Expect(file.Status).To(Equal(model.FileStatusSuccess))
			Expect(file.Payload()).To(HaveKeyWithValue("supplier", "acme"))
			Expect(file.ProcessingCompletedAt).ToNot(BeNil())
		})

		It("marks a file failed with its fault kind", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-1", "run-1", "a.txt", "processing"))
			Expect(tx.Error).To(BeNil())

			err := s.File().MarkFailed(context.TODO(), "doc-1", "TIMEOUT", "deadline exceeded")
			Expect(err).To(BeNil())

			file, err := s.File().Get(context.TODO(), "doc-1")
			Expect(err).To(BeNil())
			Expect(file.Status).To(Equal(model.FileStatusFailed))
			Expect(file.ErrorKind).To(Equal("TIMEOUT"))
			Expect(file.Error).To(Equal("deadline exceeded"))
		})

		It("success clears a previous failure", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-1", "run-1", "a.txt", "processing"))
			Expect(tx.Error).To(BeNil())

			Expect(s.File().MarkFailed(context.TODO(), "doc-1", "RETRYABLE", "boom")).To(Succeed())
			Expect(s.File().MarkSuccess(context.TODO(), "doc-1", map[string]any{"ok": true})).To(Succeed())

			file, err := s.File().Get(context.TODO(), "doc-1")
			Expect(err).To(BeNil())
			Expect(file.Status).To(Equal(model.FileStatusSuccess))
			Expect(file.Error).To(BeEmpty())
			Expect(file.ErrorKind).To(BeEmpty())
		})
	})

	Context("retry count", func() {
		It("increments atomically and returns the new value", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-1", "run-1", "a.txt", "FAILED"))
			Expect(tx.Error).To(BeNil())

			n, err := s.File().IncrementRetryCount(context.TODO(), "doc-1")
			Expect(err).To(BeNil())
			Expect(n).To(Equal(1))

			n, err = s.File().IncrementRetryCount(context.TODO(), "doc-1")
			Expect(err).To(BeNil())
			Expect(n).To(Equal(2))
		})

		It("returns ErrRecordNotFound for an unknown doc id", func() {
			_, err := s.File().IncrementRetryCount(context.TODO(), "no-such-doc")
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("counts", func() {
		It("aggregates per-status counts for a run", func() {
			for i, status := range []string{"pending", "processing", "SUCCESS", "SUCCESS", "FAILED"} {
				tx := gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), fmt.Sprintf("doc-%d", i), "run-1", "a.txt", status))
				Expect(tx.Error).To(BeNil())
			}
			tx := gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-other", "run-2", "b.txt", "SUCCESS"))
			Expect(tx.Error).To(BeNil())

			counts, err := s.File().CountsForRun(context.TODO(), "run-1")
			Expect(err).To(BeNil())
			Expect(counts.Total).To(Equal(int64(5)))
			Expect(counts.Pending).To(Equal(int64(1)))
			Expect(counts.Processing).To(Equal(int64(1)))
			Expect(counts.Success).To(Equal(int64(2)))
			Expect(counts.Failed).To(Equal(int64(1)))
			Expect(counts.Complete(5)).To(BeFalse())
		})

		It("returns zero counts for an unknown run", func() {
			counts, err := s.File().CountsForRun(context.TODO(), "no-such-run")
			Expect(err).To(BeNil())
			Expect(counts.Total).To(Equal(int64(0)))
			Expect(counts.Complete(0)).To(BeFalse())
		})
	})

	Context("pending doc ids", func() {
		It("returns the pending files of a run", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-1", "run-1", "a.txt", "pending"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-2", "run-1", "b.txt", "SUCCESS"))
			Expect(tx.Error).To(BeNil())

			docIDs, err := s.File().PendingDocIDs(context.TODO(), "run-1")
			Expect(err).To(BeNil())
			Expect(docIDs).To(Equal([]string{"doc-1"}))
		})
	})

	Context("list", func() {
		It("filters by run id and status", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-1", "run-1", "a.txt", "SUCCESS"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-2", "run-1", "b.txt", "FAILED"))
			Expect(tx.Error).To(BeNil())

			files, err := s.File().List(context.TODO(), store.NewFileQueryFilter().ByRunID("run-1").ByStatus(model.FileStatusSuccess))
			Expect(err).To(BeNil())
			Expect(files).To(HaveLen(1))
			Expect(files[0].DocID).To(Equal("doc-1"))
		})
	})
})
