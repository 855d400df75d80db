package pipeline

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/pdfanalysisflow/internal/models"
)

const (
	emptyPageMarker = "[no text recognized]"
	pageSeparator   = "\n\n"
)

// MergeChunks groups the pages of one document into chunks of at most k
// pages, walking pages in index order. Failed pages stay in place as an
// explicit gap marker so later pages keep their position. The result depends
// only on its inputs.
func MergeChunks(doc models.Document, docIndex, k int) ([]models.Chunk, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, k)
	}

	var chunks []models.Chunk
	for start := 0; start < len(doc.Pages); start += k {
		end := min(start+k, len(doc.Pages))
		pages := doc.Pages[start:end]

		sourcePages := make([]int, 0, len(pages))
		blocks := make([]string, 0, len(pages))
		for _, p := range pages {
			sourcePages = append(sourcePages, p.Index)
			blocks = append(blocks, pageBlock(doc.Filename, p))
		}

		chunks = append(chunks, models.Chunk{
			ID:             fmt.Sprintf("%d-%d", docIndex, len(chunks)),
			DocumentID:     doc.ID,
			SourcePages:    sourcePages,
			CombinedText:   strings.Join(blocks, pageSeparator),
			AnalysisStatus: models.StatusPending,
		})
	}
	return chunks, nil
}

// MergeTask chunks every document of the task, in upload order.
func MergeTask(t models.Task, k int) ([]models.Chunk, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidChunkSize, k)
	}
	var all []models.Chunk
	for i, doc := range t.Documents {
		chunks, err := MergeChunks(doc, i, k)
		if err != nil {
			return nil, err
		}
		all = append(all, chunks...)
	}
	return all, nil
}

func pageBlock(filename string, p models.Page) string {
	header := fmt.Sprintf("==== %s page %d ====", filename, p.Index+1)
	switch {
	case p.OCRStatus == models.StatusFailed:
		return fmt.Sprintf("%s\n[OCR failed: %s]", header, p.Error)
	case strings.TrimSpace(p.Text) == "":
		return header + "\n" + emptyPageMarker
	default:
		return header + "\n" + p.Text
	}
}
