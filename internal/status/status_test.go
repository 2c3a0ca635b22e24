package status

import "testing"

func TestStageClassification(t *testing.T) {
	tests := []struct {
		stage    Stage
		failure  bool
		terminal bool
	}{
		{StageQueued, false, false},
		{StageFetchStart, false, false},
		{StageFetchError, true, true},
		{StageAIError, true, true},
		{StageDBError, true, true},
		{StageMerge, false, false},
		{StageCompleted, false, true},
		{StageError, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			if got := tt.stage.IsFailure(); got != tt.failure {
				t.Errorf("IsFailure() = %v, expected %v", got, tt.failure)
			}
			if got := tt.stage.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, expected %v", got, tt.terminal)
			}
		})
	}
}

func TestMultiPreservesOrder(t *testing.T) {
	a := &Recorder{}
	b := &Recorder{}
	var seen []Stage
	sink := Multi(a, nil, b, SinkFunc(func(e Event) { seen = append(seen, e.Stage) }))

	sink.Emit(Event{Stage: StageQueued})
	sink.Emit(Event{Stage: StageFetchStart})

	for _, r := range []*Recorder{a, b} {
		stages := r.Stages()
		if len(stages) != 2 || stages[0] != StageQueued || stages[1] != StageFetchStart {
			t.Errorf("Unexpected stages %v", stages)
		}
	}
	if len(seen) != 2 {
		t.Errorf("Expected func sink to see 2 events, got %d", len(seen))
	}
}
