package store_test

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/tenderhub/extraction-pipeline/internal/config"
	"github.com/tenderhub/extraction-pipeline/internal/store"
	"github.com/tenderhub/extraction-pipeline/internal/store/model"
)

const (
	insertBatchStm       = "INSERT INTO batches (id, batch_id, run_id, total_files, status, uploaded_by) VALUES ('%s', '%s', '%s', %d, '%s', '%s');"
	insertFileStm        = "INSERT INTO file_extractions (id, doc_id, run_id, filename, status, source) VALUES ('%s', '%s', '%s', '%s', '%s', 'upload');"
	insertSettledFileStm = "INSERT INTO file_extractions (id, doc_id, run_id, filename, status, source, processing_completed_at) VALUES ('%s', '%s', '%s', '%s', '%s', 'upload', '%s');"

	sqliteTimeLayout = "2006-01-02 15:04:05"
)

var _ = Describe("batch store", Ordered, func() {
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
		gormdb.Exec("DELETE from batches;")
	})

	Context("create", func() {
		It("creates a batch successfully", func() {
			batch, err := s.Batch().Create(context.TODO(), model.Batch{
				ID:         uuid.New(),
				BatchID:    "batch-1",
				RunID:      "run-1",
				TotalFiles: 3,
			})
			Expect(err).To(BeNil())
			Expect(batch.BatchID).To(Equal("batch-1"))
			Expect(batch.Status).To(Equal(model.BatchStatusPending))
		})

		It("refuses a duplicate batch id", func() {
			_, err := s.Batch().Create(context.TODO(), model.Batch{ID: uuid.New(), BatchID: "batch-1"})
			Expect(err).To(BeNil())

			_, err = s.Batch().Create(context.TODO(), model.Batch{ID: uuid.New(), BatchID: "batch-1"})
			Expect(err).To(MatchError(store.ErrDuplicateKey))
		})
	})

	Context("get", func() {
		It("finds a batch by batch id", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-1", "run-1", 2, "processing", "tester"))
			Expect(tx.Error).To(BeNil())

			batch, err := s.Batch().Get(context.TODO(), "batch-1")
			Expect(err).To(BeNil())
			Expect(batch.RunID).To(Equal("run-1"))
			Expect(batch.TotalFiles).To(Equal(2))
		})

		It("returns ErrRecordNotFound for an unknown batch", func() {
			_, err := s.Batch().Get(context.TODO(), "no-such-batch")
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("list", func() {
		It("lists all batches", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-1", "", 1, "pending", "tester"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-2", "", 1, "processing", "tester"))
			Expect(tx.Error).To(BeNil())

			batches, err := s.Batch().List(context.TODO(), store.NewBatchQueryFilter())
			Expect(err).To(BeNil())
			Expect(batches).To(HaveLen(2))
		})

		It("filters batches by status", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-1", "", 1, "pending", "tester"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-2", "", 1, "processing", "tester"))
			Expect(tx.Error).To(BeNil())

			batches, err := s.Batch().List(context.TODO(), store.NewBatchQueryFilter().ByStatus(model.BatchStatusProcessing))
			Expect(err).To(BeNil())
			Expect(batches).To(HaveLen(1))
			Expect(batches[0].BatchID).To(Equal("batch-2"))
		})

		It("filters batches by uploader", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-1", "", 1, "pending", "alice"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-2", "", 1, "pending", "bob"))
			Expect(tx.Error).To(BeNil())

			batches, err := s.Batch().List(context.TODO(), store.NewBatchQueryFilter().ByUploadedBy("bob"))
			Expect(err).To(BeNil())
			Expect(batches).To(HaveLen(1))
			Expect(batches[0].BatchID).To(Equal("batch-2"))
		})
	})

	Context("update status", func() {
		It("seals the batch with a completion time", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-1", "", 1, "processing", "tester"))
			Expect(tx.Error).To(BeNil())

			now := time.Now().UTC()
			err := s.Batch().UpdateStatus(context.TODO(), "batch-1", model.BatchStatusCompleted, &now)
			Expect(err).To(BeNil())

			batch, err := s.Batch().Get(context.TODO(), "batch-1")
			Expect(err).To(BeNil())
			Expect(batch.Status).To(Equal(model.BatchStatusCompleted))
			Expect(batch.CompletedAt).ToNot(BeNil())
			Expect(batch.Finalized()).To(BeTrue())
		})

		It("returns ErrRecordNotFound for an unknown batch", func() {
			err := s.Batch().UpdateStatus(context.TODO(), "no-such-batch", model.BatchStatusCompleted, nil)
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})

	Context("set total files", func() {
		It("backfills the total", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-1", "", 0, "processing", "tester"))
			Expect(tx.Error).To(BeNil())

			err := s.Batch().SetTotalFiles(context.TODO(), "batch-1", 4)
			Expect(err).To(BeNil())

			batch, err := s.Batch().Get(context.TODO(), "batch-1")
			Expect(err).To(BeNil())
			Expect(batch.TotalFiles).To(Equal(4))
		})
	})

	Context("status summary", func() {
		It("counts file states through the run id", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-1", "run-1", 3, "processing", "tester"))
			Expect(tx.Error).To(BeNil())

			tx = gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-1", "run-1", "a.txt", "SUCCESS"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-2", "run-1", "b.txt", "FAILED"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-3", "run-1", "c.txt", "pending"))
			Expect(tx.Error).To(BeNil())

			summary, err := s.Batch().StatusSummary(context.TODO(), "batch-1")
			Expect(err).To(BeNil())
			Expect(summary.FileCount).To(Equal(int64(3)))
			Expect(summary.SuccessFiles).To(Equal(int64(1)))
			Expect(summary.FailedFiles).To(Equal(int64(1)))
			Expect(summary.PendingFiles).To(Equal(int64(1)))
			Expect(summary.Complete()).To(BeFalse())
		})

		It("aliases the run id to the batch id when unset", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-1", "", 1, "processing", "tester"))
			Expect(tx.Error).To(BeNil())

			tx = gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-1", "batch-1", "a.txt", "SUCCESS"))
			Expect(tx.Error).To(BeNil())

			summary, err := s.Batch().StatusSummary(context.TODO(), "batch-1")
			Expect(err).To(BeNil())
			Expect(summary.FileCount).To(Equal(int64(1)))
			Expect(summary.SuccessFiles).To(Equal(int64(1)))
			Expect(summary.Complete()).To(BeTrue())
		})

		It("falls back to the observed file count when total is zero", func() {
			tx := gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-1", "run-1", 0, "processing", "tester"))
			Expect(tx.Error).To(BeNil())

			tx = gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-1", "run-1", "a.txt", "SUCCESS"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-2", "run-1", "b.txt", "FAILED"))
			Expect(tx.Error).To(BeNil())

			summary, err := s.Batch().StatusSummary(context.TODO(), "batch-1")
			Expect(err).To(BeNil())
			Expect(summary.Total()).To(Equal(int64(2)))
			Expect(summary.Complete()).To(BeTrue())
		})
	})

	Context("stuck", func() {
		It("returns processing batches whose files settled before the threshold", func() {
			old := time.Now().UTC().Add(-time.Hour).Format(sqliteTimeLayout)

			tx := gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-1", "run-1", 1, "processing", "tester"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertSettledFileStm, uuid.NewString(), "doc-1", "run-1", "a.txt", "SUCCESS", old))
			Expect(tx.Error).To(BeNil())

			stuck, err := s.Batch().Stuck(context.TODO(), time.Now().UTC().Add(-time.Minute), 10)
			Expect(err).To(BeNil())
			Expect(stuck).To(HaveLen(1))
			Expect(stuck[0].BatchID).To(Equal("batch-1"))
			Expect(stuck[0].Complete()).To(BeTrue())
		})

		It("returns queued batches that never left their creation status", func() {
			old := time.Now().UTC().Add(-time.Hour).Format(sqliteTimeLayout)

			tx := gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-1", "run-1", 1, "queued", "tester"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertSettledFileStm, uuid.NewString(), "doc-1", "run-1", "a.txt", "SUCCESS", old))
			Expect(tx.Error).To(BeNil())

			stuck, err := s.Batch().Stuck(context.TODO(), time.Now().UTC().Add(-time.Minute), 10)
			Expect(err).To(BeNil())
			Expect(stuck).To(HaveLen(1))
			Expect(stuck[0].BatchID).To(Equal("batch-1"))
		})

		It("skips batches with files still in flight", func() {
			old := time.Now().UTC().Add(-time.Hour).Format(sqliteTimeLayout)

			tx := gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-1", "run-1", 2, "processing", "tester"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertSettledFileStm, uuid.NewString(), "doc-1", "run-1", "a.txt", "SUCCESS", old))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertFileStm, uuid.NewString(), "doc-2", "run-1", "b.txt", "processing"))
			Expect(tx.Error).To(BeNil())

			stuck, err := s.Batch().Stuck(context.TODO(), time.Now().UTC().Add(-time.Minute), 10)
			Expect(err).To(BeNil())
			Expect(stuck).To(BeEmpty())
		})

		It("skips batches whose last completion is inside the grace window", func() {
			recent := time.Now().UTC().Format(sqliteTimeLayout)

			tx := gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-1", "run-1", 1, "processing", "tester"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertSettledFileStm, uuid.NewString(), "doc-1", "run-1", "a.txt", "SUCCESS", recent))
			Expect(tx.Error).To(BeNil())

			stuck, err := s.Batch().Stuck(context.TODO(), time.Now().UTC().Add(-time.Minute), 10)
			Expect(err).To(BeNil())
			Expect(stuck).To(BeEmpty())
		})

		It("skips batches already finalized", func() {
			old := time.Now().UTC().Add(-time.Hour).Format(sqliteTimeLayout)

			tx := gormdb.Exec(fmt.Sprintf(insertBatchStm, uuid.NewString(), "batch-1", "run-1", 1, "completed", "tester"))
			Expect(tx.Error).To(BeNil())
			tx = gormdb.Exec(fmt.Sprintf(insertSettledFileStm, uuid.NewString(), "doc-1", "run-1", "a.txt", "SUCCESS", old))
			Expect(tx.Error).To(BeNil())

			stuck, err := s.Batch().Stuck(context.TODO(), time.Now().UTC().Add(-time.Minute), 10)
			Expect(err).To(BeNil())
			Expect(stuck).To(BeEmpty())
		})
	})
})
