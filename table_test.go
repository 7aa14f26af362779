package casjobs

import (
	"bytes"
	"strings"
	"testing"
)

func TestJobInfoTable(t *testing.T) {
	jobs := []JobInfo{
		{
			JobID:      17,
			Status:     StatusFinished,
			TaskName:   "extract MyTable",
			Context:    "MYDB",
			Rows:       120,
			TimeSubmit: "1/1/2012 12:00:00 AM",
			OutputLoc:  "http://example.com/out/17.csv",
		},
		{
			JobID:    18,
			Status:   StatusStarted,
			TaskName: "casjobs",
			Context:  "DR7",
		},
	}

	var buf bytes.Buffer
	JobInfoTable(&buf, jobs)
	out := buf.String()

	for _, want := range []string{"17", "extract MyTable", "finished", "18", "started"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected table output to contain %q:\n%s", want, out)
		}
	}
}

func TestJobInfoTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	JobInfoTable(&buf, nil)
	if buf.Len() == 0 {
		t.Error("expected header row even for an empty listing")
	}
}
