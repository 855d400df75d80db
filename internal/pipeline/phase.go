package pipeline

import "github.com/Lllllllleong/pdfanalysisflow/internal/models"

// transitions lists the legal forward moves of the task state machine.
var transitions = map[models.Phase][]models.Phase{
	models.PhaseCreated:         {models.PhaseOCRRunning},
	models.PhaseOCRRunning:      {models.PhaseOCRDone, models.PhaseFailed},
	models.PhaseOCRDone:         {models.PhaseAnalysisRunning},
	models.PhaseAnalysisRunning: {models.PhaseAnalysisDone, models.PhaseFailed},
}

// advance moves t to phase to, or returns a PhaseError naming op.
func advance(t *models.Task, to models.Phase, op string, from models.Phase) error {
	if t.Phase != from {
		return &PhaseError{Op: op, Want: from, Got: t.Phase}
	}
	for _, next := range transitions[from] {
		if next == to {
			t.Phase = to
			return nil
		}
	}
	return &PhaseError{Op: op, Want: from, Got: t.Phase}
}
