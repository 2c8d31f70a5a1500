// Package extraction implements the per-file processing task and the
// batch-level aggregation of its results.
package extraction

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tenderhub/extraction-pipeline/internal/fault"
	"github.com/tenderhub/extraction-pipeline/internal/llm"
	"github.com/tenderhub/extraction-pipeline/internal/parser"
	"github.com/tenderhub/extraction-pipeline/internal/storage"
	"github.com/tenderhub/extraction-pipeline/internal/store/model"
)

// Task orchestrates parse, chunk, select, extract and merge for one file.
// All collaborators are injected; the task owns no persistent state.
type Task struct {
	storage   storage.Storage
	extractor llm.Extractor
	selector  llm.Selector
	chunker   *SlidingChunker
	maxChunks int
}

func NewTask(st storage.Storage, extractor llm.Extractor, selector llm.Selector, chunker *SlidingChunker, maxChunks int) *Task {
	return &Task{
		storage:   st,
		extractor: extractor,
		selector:  selector,
		chunker:   chunker,
		maxChunks: maxChunks,
	}
}

// Run processes one file and returns its outcome as data. It never panics
// out and never returns an error: any failure is classified and absorbed
// into the Result so the consumer loop always observes a definite state.
func (t *Task) Run(ctx context.Context, file *model.FileExtraction) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			zap.S().Named("extraction").Errorw("file processing panicked", "doc_id", file.DocID, "panic", r)
			result = Failure(fmt.Errorf("processing panicked: %v", r))
		}
	}()

	if file.FilePath == "" {
		return Failure(fault.Errorf(fault.KindPermanent, "file %s has no storage path", file.DocID))
	}

	data, err := t.storage.Read(ctx, file.FilePath)
	if err != nil {
		return Failure(err)
	}

	p, err := parser.ForFile(file.Filename, file.FileType)
	if err != nil {
		return Failure(err)
	}

	text, err := p.Parse(data)
	if err != nil {
		return Failure(err)
	}
	if text == "" {
		return Failure(fault.Errorf(fault.KindParse, "no text extracted from %s", file.Filename))
	}

	chunks := t.chunker.Chunk(text)
	if t.selector != nil {
		if selected := t.selector.Select(chunks, contextHints(file)); selected != nil {
			chunks = selected
		}
	}
	if t.maxChunks > 0 && len(chunks) > t.maxChunks {
		chunks = chunks[:t.maxChunks]
	}

	payloads := make([]map[string]any, 0, len(chunks))
	for i, chunk := range chunks {
		payload, err := t.extractor.Extract(ctx, chunk, file.Filename)
		if err != nil {
			return Failure(err)
		}
		zap.S().Named("extraction").Debugw("chunk extracted", "doc_id", file.DocID, "chunk", i, "fields", len(payload))
		payloads = append(payloads, payload)
	}

	return Success(MergePayloads(payloads))
}

// contextHints gives the relevance selector something to match on. Nothing
// fancier than the filename for now.
func contextHints(file *model.FileExtraction) []string {
	if file.Filename == "" {
		return nil
	}
	return []string{file.Filename}
}
