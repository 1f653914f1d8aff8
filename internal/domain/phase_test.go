package domain

import "testing"

func TestParsePhase(t *testing.T) {
	tests := []struct {
		in      string
		want    Phase
		wantErr bool
	}{
		{"planning", PhasePlanning, false},
		{" Phase3 ", PhaseAnalysis, false},
		{"phase5", PhaseConsolidation, false},
		{"phase6", PhaseFinal, false},
		{"final_analysis", PhaseFinal, false},
		{"FINAL", PhaseFinal, false},
		{"phase7", "", true},
		{"review", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePhase(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePhase(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePhase(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPhase_NumberAndTitle(t *testing.T) {
	for i, p := range Phases {
		if got := p.Number(); got != i+1 {
			t.Errorf("%s.Number() = %d, want %d", p, got, i+1)
		}
		if p.Title() == string(p) {
			t.Errorf("%s has no title", p)
		}
	}
	if Phase("other").Number() != 0 {
		t.Error("unknown phase should be numbered 0")
	}
	if got := PhaseAnalysis.Title(); got != "Phase 3: Deep Analysis" {
		t.Errorf("Title() = %q", got)
	}
}

func TestStatus_Terminal(t *testing.T) {
	tests := []struct {
		s    Status
		want bool
	}{
		{StatusPending, false},
		{StatusRunning, false},
		{StatusSucceeded, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.s.Terminal(); got != tt.want {
			t.Errorf("%s.Terminal() = %v, want %v", tt.s, got, tt.want)
		}
	}
	if got := Status(42).String(); got != "status(42)" {
		t.Errorf("String() = %q", got)
	}
}

func TestExitCode_String(t *testing.T) {
	if ExitInterrupted.Int() != 130 {
		t.Errorf("ExitInterrupted = %d", ExitInterrupted.Int())
	}
	if got := ExitPartial.String(); got != "some analysis agents failed" {
		t.Errorf("String() = %q", got)
	}
	if got := ExitCode(7).String(); got != "exit code 7" {
		t.Errorf("String() = %q", got)
	}
}
