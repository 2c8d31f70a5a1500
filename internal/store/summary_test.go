package store_test

import (
	"context"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"github.com/tenderhub/extraction-pipeline/internal/config"
	"github.com/tenderhub/extraction-pipeline/internal/store"
	"github.com/tenderhub/extraction-pipeline/internal/store/model"
)

var _ = Describe("summary store", Ordered, func() {
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
		gormdb.Exec("DELETE from run_summaries;")
	})

	Context("upsert", func() {
		It("creates a summary for a new run id", func() {
			summary, err := s.Summary().Upsert(context.TODO(), model.RunSummary{
				ID:           uuid.New(),
				RunID:        "run-1",
				UIData:       model.MakeJSONField(map[string]any{"supplier": "acme"}),
				Status:       model.RunSummaryStatusCompleted,
				TotalFiles:   2,
				SuccessFiles: 2,
			})
			Expect(err).To(BeNil())
			Expect(summary.RunID).To(Equal("run-1"))
			Expect(summary.Status).To(Equal(model.RunSummaryStatusCompleted))
			Expect(summary.UIData.Data).To(HaveKeyWithValue("supplier", "acme"))
		})

		It("overwrites the previous row for the same run id", func() {
			_, err := s.Summary().Upsert(context.TODO(), model.RunSummary{
				ID:           uuid.New(),
				RunID:        "run-1",
				Status:       model.RunSummaryStatusProcessing,
				TotalFiles:   2,
				SuccessFiles: 1,
			})
			Expect(err).To(BeNil())

			summary, err := s.Summary().Upsert(context.TODO(), model.RunSummary{
				ID:           uuid.New(),
				RunID:        "run-1",
				Status:       model.RunSummaryStatusCompleted,
				TotalFiles:   2,
				SuccessFiles: 2,
			})
			Expect(err).To(BeNil())
			Expect(summary.Status).To(Equal(model.RunSummaryStatusCompleted))
			Expect(summary.SuccessFiles).To(Equal(2))

			count := 0
			err = gormdb.Raw("SELECT COUNT(*) from run_summaries;").Scan(&count).Error
			Expect(err).To(BeNil())
			Expect(count).To(Equal(1))
		})
	})

	Context("get", func() {
		It("returns ErrRecordNotFound for an unknown run", func() {
			_, err := s.Summary().Get(context.TODO(), "no-such-run")
			Expect(err).To(MatchError(store.ErrRecordNotFound))
		})
	})
})
