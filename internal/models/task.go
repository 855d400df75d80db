package models

import "time"

// Phase is the task-level position in the processing state machine.
type Phase string

const (
	PhaseCreated         Phase = "CREATED"
	PhaseOCRRunning      Phase = "OCR_RUNNING"
	PhaseOCRDone         Phase = "OCR_DONE"
	PhaseAnalysisRunning Phase = "ANALYSIS_RUNNING"
	PhaseAnalysisDone    Phase = "ANALYSIS_DONE"
	PhaseFailed          Phase = "FAILED"
)

// Terminal reports whether no background work is running for the phase.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseOCRDone, PhaseAnalysisDone, PhaseFailed:
		return true
	}
	return false
}

// UnitStatus is the state of a single page OCR call or chunk analysis call.
type UnitStatus string

const (
	StatusPending UnitStatus = "PENDING"
	StatusRunning UnitStatus = "RUNNING"
	StatusDone    UnitStatus = "DONE"
	StatusFailed  UnitStatus = "FAILED"
)

// Terminal reports whether the unit has finished, successfully or not.
func (s UnitStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// DocumentStatus tracks rendering of one uploaded PDF.
type DocumentStatus string

const (
	DocumentPending   DocumentStatus = "PENDING"
	DocumentRendering DocumentStatus = "RENDERING"
	DocumentRendered  DocumentStatus = "RENDERED"
	DocumentFailed    DocumentStatus = "FAILED"
)

// Task is one upload batch tracked through OCR and analysis.
type Task struct {
	ID        string     `json:"taskId" firestore:"taskId"`
	Phase     Phase      `json:"phase" firestore:"phase"`
	Documents []Document `json:"documents" firestore:"-"`
	ChunkSize int        `json:"chunkSize,omitempty" firestore:"chunkSize,omitempty"`
	Chunks    []Chunk    `json:"chunks,omitempty" firestore:"-"`
	Error     string     `json:"error,omitempty" firestore:"errorDetails,omitempty"`
	CreatedAt time.Time  `json:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt" firestore:"updatedAt"`
}

// Document represents one uploaded PDF and its pages.
type Document struct {
	ID        string         `json:"documentId"`
	Filename  string         `json:"filename"`
	Checksum  string         `json:"checksum,omitempty"`
	Status    DocumentStatus `json:"status"`
	PageCount int            `json:"pageCount"`
	Error     string         `json:"error,omitempty"`
	Pages     []Page         `json:"pages"`
}

// Page is the unit of OCR work.
type Page struct {
	Index       int        `json:"index"`
	OCRStatus   UnitStatus `json:"ocrStatus"`
	Text        string     `json:"text,omitempty"`
	Error       string     `json:"error,omitempty"`
	Attempts    int        `json:"attempts,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Chunk is up to K consecutive pages of one document, the unit of analysis work.
type Chunk struct {
	ID             string     `json:"chunkId"`
	DocumentID     string     `json:"documentId"`
	SourcePages    []int      `json:"sourcePages"`
	CombinedText   string     `json:"combinedText"`
	AnalysisStatus UnitStatus `json:"analysisStatus"`
	AnalysisText   string     `json:"analysisText,omitempty"`
	Error          string     `json:"error,omitempty"`
	Attempts       int        `json:"attempts,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy that shares no slices with t.
func (t Task) Clone() Task {
	out := t
	if t.Documents != nil {
		out.Documents = make([]Document, len(t.Documents))
		for i, d := range t.Documents {
			d.Pages = append([]Page(nil), d.Pages...)
			for j := range d.Pages {
				d.Pages[j].CompletedAt = cloneTime(d.Pages[j].CompletedAt)
			}
			out.Documents[i] = d
		}
	}
	if t.Chunks != nil {
		out.Chunks = make([]Chunk, len(t.Chunks))
		for i, c := range t.Chunks {
			c.SourcePages = append([]int(nil), c.SourcePages...)
			c.CompletedAt = cloneTime(c.CompletedAt)
			out.Chunks[i] = c
		}
	}
	return out
}

// PageTotals counts pages across all documents by OCR status.
func (t Task) PageTotals() StatusCounts {
	var c StatusCounts
	for _, d := range t.Documents {
		for _, p := range d.Pages {
			c.add(p.OCRStatus)
		}
	}
	return c
}

// ChunkTotals counts chunks by analysis status.
func (t Task) ChunkTotals() StatusCounts {
	var c StatusCounts
	for _, ch := range t.Chunks {
		c.add(ch.AnalysisStatus)
	}
	return c
}

// StatusCounts aggregates unit statuses for progress reporting.
type StatusCounts struct {
	Total   int `json:"total" firestore:"total"`
	Pending int `json:"pending" firestore:"pending"`
	Running int `json:"running" firestore:"running"`
	Done    int `json:"done" firestore:"done"`
	Failed  int `json:"failed" firestore:"failed"`
}

func (c *StatusCounts) add(s UnitStatus) {
	c.Total++
	switch s {
	case StatusPending:
		c.Pending++
	case StatusRunning:
		c.Running++
	case StatusDone:
		c.Done++
	case StatusFailed:
		c.Failed++
	}
}

// Progress is the finished share of units in percent.
func (c StatusCounts) Progress() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Done+c.Failed) * 100 / float64(c.Total)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
