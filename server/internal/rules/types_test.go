package rules

import (
	"encoding/json"
	"testing"
)

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"pump":    CategoryPump,
		"Tank":    CategoryTank,
		"tap":     CategoryTap,
		"quality": CategoryTap,
		" valve ": CategoryValve,
	}
	for in, want := range cases {
		got, err := ParseCategory(in)
		if err != nil {
			t.Errorf("ParseCategory(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseCategory(%q): got %q, want %q", in, got, want)
		}
	}
	if _, err := ParseCategory("reservoir"); err == nil {
		t.Error("ParseCategory(reservoir): expected error, got nil")
	}
}

func TestStatus_Raise(t *testing.T) {
	if got := StatusCritical.Raise(StatusWarning); got != StatusCritical {
		t.Errorf("CRITICAL.Raise(WARNING): got %v", got)
	}
	if got := StatusOK.Raise(StatusWarning); got != StatusWarning {
		t.Errorf("OK.Raise(WARNING): got %v", got)
	}
}

func TestSeverity_Status(t *testing.T) {
	if SeverityHigh.Status() != StatusCritical {
		t.Error("high should imply CRITICAL")
	}
	if SeverityMedium.Status() != StatusWarning {
		t.Error("medium should imply WARNING")
	}
	if SeverityLow.Status() != StatusOK {
		t.Error("low should imply OK")
	}
	if !(SeverityLow < SeverityMedium && SeverityMedium < SeverityHigh) {
		t.Error("severities must be ordered low < medium < high")
	}
}

func TestStatusAndSeverity_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		S Status   `json:"s"`
		V Severity `json:"v"`
	}{StatusWarning, SeverityHigh})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `{"s":"WARNING","v":"high"}` {
		t.Errorf("json: got %s", b)
	}

	var out struct {
		S Status   `json:"s"`
		V Severity `json:"v"`
	}
	if err := json.Unmarshal([]byte(`{"s":"CRITICAL","v":"medium"}`), &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.S != StatusCritical || out.V != SeverityMedium {
		t.Errorf("decoded: got %+v", out)
	}
}
