package models

import "time"

// These structs define the JSON payloads exchanged with polling clients over
// the HTTP API.

// UploadResponse is returned once a batch has been accepted.
type UploadResponse struct {
	TaskID  string   `json:"taskId"`
	Message string   `json:"message"`
	Files   []string `json:"files"`
}

// AnalyzeRequest asks for chunked analysis of a task's OCR output.
type AnalyzeRequest struct {
	KPages *int `json:"kPages"`
}

// ChunkRef identifies a chunk without its text.
type ChunkRef struct {
	ChunkID     string `json:"chunkId"`
	DocumentID  string `json:"documentId"`
	SourcePages []int  `json:"sourcePages"`
}

// AnalyzeResponse is returned once analysis has been dispatched.
type AnalyzeResponse struct {
	TaskID      string     `json:"taskId"`
	ChunkSize   int        `json:"chunkSize"`
	ChunksCount int        `json:"chunksCount"`
	Chunks      []ChunkRef `json:"chunks"`
}

// PageStatusView is the per-page line of a status response.
type PageStatusView struct {
	Index  int        `json:"index"`
	Status UnitStatus `json:"status"`
	Error  string     `json:"error,omitempty"`
}

// DocumentStatusView summarizes OCR progress for one document.
type DocumentStatusView struct {
	DocumentID string           `json:"documentId"`
	Filename   string           `json:"filename"`
	Status     DocumentStatus   `json:"status"`
	PageCount  int              `json:"pageCount"`
	Error      string           `json:"error,omitempty"`
	Pages      StatusCounts     `json:"pages"`
	PageStatus []PageStatusView `json:"pageStatus"`
}

// StatusResponse is the polling view of a task.
type StatusResponse struct {
	TaskID    string               `json:"taskId"`
	Phase     Phase                `json:"phase"`
	Progress  float64              `json:"progress"`
	Pages     StatusCounts         `json:"pages"`
	Chunks    StatusCounts         `json:"chunks"`
	ChunkSize int                  `json:"chunkSize,omitempty"`
	Documents []DocumentStatusView `json:"documents"`
	Error     string               `json:"error,omitempty"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// NewStatusResponse builds the status view from a task snapshot. Progress
// follows the analysis chunks once they exist, the OCR pages before that.
func NewStatusResponse(t Task) StatusResponse {
	pages := t.PageTotals()
	chunks := t.ChunkTotals()
	progress := pages.Progress()
	if chunks.Total > 0 {
		progress = chunks.Progress()
	}

	docs := make([]DocumentStatusView, 0, len(t.Documents))
	for _, d := range t.Documents {
		view := DocumentStatusView{
			DocumentID: d.ID,
			Filename:   d.Filename,
			Status:     d.Status,
			PageCount:  d.PageCount,
			Error:      d.Error,
			PageStatus: make([]PageStatusView, 0, len(d.Pages)),
		}
		for _, p := range d.Pages {
			view.Pages.add(p.OCRStatus)
			view.PageStatus = append(view.PageStatus, PageStatusView{Index: p.Index, Status: p.OCRStatus, Error: p.Error})
		}
		docs = append(docs, view)
	}

	return StatusResponse{
		TaskID:    t.ID,
		Phase:     t.Phase,
		Progress:  progress,
		Pages:     pages,
		Chunks:    chunks,
		ChunkSize: t.ChunkSize,
		Documents: docs,
		Error:     t.Error,
		UpdatedAt: t.UpdatedAt,
	}
}

// ResultsResponse carries full OCR text and, once available, analysis text.
type ResultsResponse struct {
	TaskID    string     `json:"taskId"`
	Phase     Phase      `json:"phase"`
	ChunkSize int        `json:"chunkSize,omitempty"`
	Documents []Document `json:"documents"`
	Chunks    []Chunk    `json:"chunks"`
}

// NewResultsResponse builds the results view from a task snapshot.
func NewResultsResponse(t Task) ResultsResponse {
	chunks := t.Chunks
	if chunks == nil {
		chunks = []Chunk{}
	}
	return ResultsResponse{
		TaskID:    t.ID,
		Phase:     t.Phase,
		ChunkSize: t.ChunkSize,
		Documents: t.Documents,
		Chunks:    chunks,
	}
}

// TaskSummary is one row of the task listing.
type TaskSummary struct {
	TaskID    string       `json:"taskId"`
	Phase     Phase        `json:"phase"`
	Documents int          `json:"documents"`
	Pages     StatusCounts `json:"pages"`
	Chunks    StatusCounts `json:"chunks"`
	CreatedAt time.Time    `json:"createdAt"`
}

// NewTaskSummary builds a listing row from a task snapshot.
func NewTaskSummary(t Task) TaskSummary {
	return TaskSummary{
		TaskID:    t.ID,
		Phase:     t.Phase,
		Documents: len(t.Documents),
		Pages:     t.PageTotals(),
		Chunks:    t.ChunkTotals(),
		CreatedAt: t.CreatedAt,
	}
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StorageEvent is the data payload of a Cloud Storage object event.
type StorageEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        string `json:"size,omitempty"`
}
