package ops

import (
	"bytes"
	"testing"
	"time"
)

func TestProfileWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	pw := NewProfileWriter(&buf)

	for i := 0; i < 3; i++ {
		p := &Profile{
			InstanceID: uint64(i),
			Batch:      1,
			Rows:       128,
			Cols:       4096,
			Total:      5 * time.Millisecond,
			Runs:       1,
			RunTime:    3 * time.Millisecond,
		}
		if err := pw.Write(p); err != nil {
			t.Fatalf("Write record %d failed: %v", i, err)
		}
	}

	records, err := ReadProfiles(&buf)
	if err != nil {
		t.Fatalf("ReadProfiles failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	fields := records[2].GetFields()
	if got := fields["id"].GetNumberValue(); got != 2 {
		t.Errorf("expected id 2, got %v", got)
	}
	if got := fields["rows"].GetNumberValue(); got != 128 {
		t.Errorf("expected rows 128, got %v", got)
	}
	if got := fields["run_ns"].GetNumberValue(); got != float64((3 * time.Millisecond).Nanoseconds()) {
		t.Errorf("expected run_ns %d, got %v", (3 * time.Millisecond).Nanoseconds(), got)
	}
	if got := fields["avg_run_ns"].GetNumberValue(); got != float64((3 * time.Millisecond).Nanoseconds()) {
		t.Errorf("expected avg_run_ns for a single run to equal run_ns, got %v", got)
	}
}

func TestReadProfilesEmpty(t *testing.T) {
	records, err := ReadProfiles(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("ReadProfiles on empty stream failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %d", len(records))
	}
}

func TestAvgRunTimeNoRuns(t *testing.T) {
	p := &Profile{}
	if got := p.AvgRunTime(); got != 0 {
		t.Errorf("expected 0 average with no runs, got %v", got)
	}
}

func TestProfileLogValuesPaired(t *testing.T) {
	p := &Profile{InstanceID: 7, Rows: 256, Cols: 4096}
	values := p.LogValues()
	if len(values)%2 != 0 {
		t.Fatalf("LogValues must be key/value pairs, got %d items", len(values))
	}
	if values[0] != "id" || values[1] != uint64(7) {
		t.Errorf("expected leading id pair, got %v %v", values[0], values[1])
	}
}

func TestArgRoleString(t *testing.T) {
	if RoleInput.String() != "input" {
		t.Errorf("expected input, got %q", RoleInput.String())
	}
	if RoleOutput.String() != "output" {
		t.Errorf("expected output, got %q", RoleOutput.String())
	}
	if ArgRole(9).String() != "unknown" {
		t.Errorf("expected unknown, got %q", ArgRole(9).String())
	}
}
