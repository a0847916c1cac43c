package rules

import (
	"strings"
	"testing"
)

func kinds(fs []Finding) []Kind {
	out := make([]Kind, len(fs))
	for i, f := range fs {
		out[i] = f.Kind
	}
	return out
}

func TestEvaluate_EmptySnapshot_AllCategoriesOK(t *testing.T) {
	for _, c := range []Category{CategoryPump, CategoryTank, CategoryValve, CategoryTap} {
		status, findings := Evaluate(c, Snapshot{})
		if status != StatusOK {
			t.Errorf("%s: status got %v, want OK", c, status)
		}
		if len(findings) != 0 {
			t.Errorf("%s: got %d findings, want 0: %+v", c, len(findings), findings)
		}
	}
}

func TestEvaluate_UnknownCategory_OK(t *testing.T) {
	status, findings := Evaluate(Category("reservoir"), Snapshot{KeyTankLevel: 1})
	if status != StatusOK || len(findings) != 0 {
		t.Errorf("got (%v, %d findings), want (OK, 0)", status, len(findings))
	}
}

func TestPump_DryRun(t *testing.T) {
	status, findings := Evaluate(CategoryPump, Snapshot{
		KeyPowerConsumption:  8.0,
		KeyPumpDischargeRate: 10,
	})
	if status != StatusCritical {
		t.Errorf("status: got %v, want CRITICAL", status)
	}
	if len(findings) != 1 {
		t.Fatalf("findings: got %d, want 1: %+v", len(findings), findings)
	}
	f := findings[0]
	if f.Kind != KindPump || f.Severity != SeverityHigh {
		t.Errorf("finding: got kind=%s severity=%s, want pump/high", f.Kind, f.Severity)
	}
	if !strings.Contains(f.Message, "8.0kW") || !strings.Contains(f.Message, "10.0L/min") {
		t.Errorf("message %q should mention both measured values", f.Message)
	}
}

func TestPump_DryRun_DischargeDefaultsToZero(t *testing.T) {
	_, findings := Evaluate(CategoryPump, Snapshot{KeyPowerConsumption: 9})
	if len(findings) != 1 || !strings.Contains(findings[0].Message, "0.0L/min") {
		t.Fatalf("expected dry-run finding with default discharge, got %+v", findings)
	}
}

func TestPump_EfficiencyOnlyWhenPresent(t *testing.T) {
	_, findings := Evaluate(CategoryPump, Snapshot{KeyVoltage: 230})
	if len(findings) != 0 {
		t.Errorf("absent efficiency must not fire, got %+v", findings)
	}

	status, findings := Evaluate(CategoryPump, Snapshot{KeyPumpEfficiency: 55})
	if status != StatusWarning || len(findings) != 1 {
		t.Fatalf("got (%v, %+v), want one WARNING finding", status, findings)
	}
	if findings[0].Severity != SeverityMedium {
		t.Errorf("severity: got %s, want medium", findings[0].Severity)
	}
}

func TestPump_MotorTemp_MutuallyExclusive(t *testing.T) {
	cases := []struct {
		temp   float64
		status Status
		n      int
	}{
		{60, StatusOK, 0},
		{65, StatusOK, 0},
		{70, StatusWarning, 1},
		{75, StatusWarning, 1},
		{80, StatusCritical, 1},
	}
	for _, tc := range cases {
		status, findings := Evaluate(CategoryPump, Snapshot{KeyMotorTemperature: tc.temp})
		if status != tc.status || len(findings) != tc.n {
			t.Errorf("motorTemp=%v: got (%v, %d findings), want (%v, %d)",
				tc.temp, status, len(findings), tc.status, tc.n)
		}
	}
}

func TestPump_Voltage(t *testing.T) {
	for _, v := range []float64{199.9, 250.1} {
		status, _ := Evaluate(CategoryPump, Snapshot{KeyVoltage: v})
		if status != StatusWarning {
			t.Errorf("voltage=%v: status got %v, want WARNING", v, status)
		}
	}
	for _, v := range []float64{200, 230, 250} {
		status, _ := Evaluate(CategoryPump, Snapshot{KeyVoltage: v})
		if status != StatusOK {
			t.Errorf("voltage=%v: status got %v, want OK", v, status)
		}
	}
}

func TestPump_Leak(t *testing.T) {
	for _, snap := range []Snapshot{
		{KeyFlowDropIndicator: 1},
		{KeyLeakProbabilityScore: 71},
	} {
		status, findings := Evaluate(CategoryPump, snap)
		if status != StatusCritical || len(findings) != 1 || findings[0].Kind != KindLeak {
			t.Errorf("%v: got (%v, %v), want CRITICAL leak", snap, status, kinds(findings))
		}
	}
}

func TestPump_ServiceDue(t *testing.T) {
	status, findings := Evaluate(CategoryPump, Snapshot{KeyPumpRunningHours: 451})
	if status != StatusWarning || len(findings) != 1 {
		t.Fatalf("got (%v, %+v), want one WARNING", status, findings)
	}
	if !strings.Contains(findings[0].Message, "451") {
		t.Errorf("message %q should carry the running hours", findings[0].Message)
	}
}

func TestPump_WarningDoesNotDowngradeCritical(t *testing.T) {
	// Dry-run (CRITICAL) is declared before the efficiency and service rules.
	status, findings := Evaluate(CategoryPump, Snapshot{
		KeyPowerConsumption: 8,
		KeyPumpEfficiency:   50,
		KeyPumpRunningHours: 500,
	})
	if status != StatusCritical {
		t.Errorf("status: got %v, want CRITICAL", status)
	}
	if len(findings) != 3 {
		t.Fatalf("findings: got %d, want 3", len(findings))
	}
	wantSev := []Severity{SeverityHigh, SeverityMedium, SeverityMedium}
	for i, f := range findings {
		if f.Severity != wantSev[i] {
			t.Errorf("findings[%d].Severity: got %s, want %s", i, f.Severity, wantSev[i])
		}
	}
}

func TestPump_DeclarationOrder(t *testing.T) {
	_, findings := Evaluate(CategoryPump, Snapshot{
		KeyPumpRunningHours:  500,
		KeyFlowDropIndicator: 1,
		KeyVoltage:           100,
		KeyMotorTemperature:  90,
		KeyPumpEfficiency:    10,
		KeyPowerConsumption:  10,
	})
	want := []string{"dry-run", "efficiency", "overheating", "voltage", "LEAK", "service"}
	if len(findings) != len(want) {
		t.Fatalf("findings: got %d, want %d", len(findings), len(want))
	}
	for i, f := range findings {
		if !strings.Contains(f.Message, want[i]) {
			t.Errorf("findings[%d] = %q, want it to mention %q", i, f.Message, want[i])
		}
	}
}

func TestTank_CriticalThenWarningBands(t *testing.T) {
	status, findings := Evaluate(CategoryTank, Snapshot{KeyTankLevel: 10, KeyTankOverflow: 0})
	if status != StatusCritical || len(findings) != 1 {
		t.Fatalf("level=10: got (%v, %d findings), want (CRITICAL, 1)", status, len(findings))
	}

	status, findings = Evaluate(CategoryTank, Snapshot{KeyTankLevel: 30, KeyTankOverflow: 0})
	if status != StatusOK || len(findings) != 0 {
		t.Errorf("level=30: got (%v, %d findings), want (OK, 0)", status, len(findings))
	}

	status, findings = Evaluate(CategoryTank, Snapshot{KeyTankLevel: 20})
	if status != StatusWarning || len(findings) != 1 {
		t.Errorf("level=20: got (%v, %d findings), want (WARNING, 1)", status, len(findings))
	}
}

func TestTank_HighLevelIndependentOfLowLevel(t *testing.T) {
	status, findings := Evaluate(CategoryTank, Snapshot{KeyTankLevel: 97})
	if status != StatusWarning || len(findings) != 1 {
		t.Fatalf("level=97: got (%v, %d), want (WARNING, 1)", status, len(findings))
	}

	// Both level checks are separate catalog entries, evaluated one after the other.
	low, okLow := tankLowLevelRule(Snapshot{KeyTankLevel: 97})
	high, okHigh := tankHighLevelRule(Snapshot{KeyTankLevel: 97})
	if okLow {
		t.Errorf("low-level rule fired for 97%%: %+v", low)
	}
	if !okHigh || !strings.Contains(high.Message, "97.0%") {
		t.Errorf("high-level rule: got (%+v, %v)", high, okHigh)
	}
	_, okLow = tankLowLevelRule(Snapshot{KeyTankLevel: 5})
	_, okHigh = tankHighLevelRule(Snapshot{KeyTankLevel: 5})
	if !okLow || okHigh {
		t.Errorf("level=5: low=%v high=%v, want true/false", okLow, okHigh)
	}
}

func TestTank_DefaultedCounters(t *testing.T) {
	status, findings := Evaluate(CategoryTank, Snapshot{
		KeyTankOverflow:            1,
		KeyOverflowAlerts:          3,
		KeyUnexpectedFillingDelays: 3,
		KeyTankEmptinessHours:      12,
	})
	if status != StatusCritical {
		t.Errorf("status: got %v, want CRITICAL", status)
	}
	if len(findings) != 3 {
		t.Fatalf("findings: got %d, want 3", len(findings))
	}
	if !strings.Contains(findings[0].Message, "3 this week") {
		t.Errorf("overflow message %q should include the weekly count", findings[0].Message)
	}
}

func TestValve_Rules(t *testing.T) {
	status, findings := Evaluate(CategoryValve, Snapshot{
		KeyFaultyValveDetection: 1,
		KeyValveLeakage:         8,
		KeyValveOperationCount:  45,
	})
	if status != StatusCritical {
		t.Errorf("status: got %v, want CRITICAL", status)
	}
	got := kinds(findings)
	want := []Kind{KindPump, KindLeak, KindPump}
	if len(got) != len(want) {
		t.Fatalf("kinds: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("kinds[%d]: got %s, want %s", i, got[i], want[i])
		}
	}
	if !strings.Contains(findings[0].Message, "(45)") {
		t.Errorf("fault message %q should include the operation count", findings[0].Message)
	}
}

func TestTap_MultiViolation_SingleFindingInOrder(t *testing.T) {
	status, findings := Evaluate(CategoryTap, Snapshot{KeyPH: 5.0, KeyTurbidity: 10, KeyTDS: 1200})
	if status != StatusCritical {
		t.Errorf("status: got %v, want CRITICAL", status)
	}
	if len(findings) != 1 {
		t.Fatalf("findings: got %d, want 1: %+v", len(findings), findings)
	}
	msg := findings[0].Message
	iPH := strings.Index(msg, "pH=5.00")
	iTurb := strings.Index(msg, "Turbidity=10.00")
	iTDS := strings.Index(msg, "TDS=1200")
	if iPH < 0 || iTurb < 0 || iTDS < 0 {
		t.Fatalf("message %q missing a violation", msg)
	}
	if !(iPH < iTurb && iTurb < iTDS) {
		t.Errorf("violations out of order in %q", msg)
	}
	if strings.Count(msg, " | ") != 2 {
		t.Errorf("message %q should join three violations with \" | \"", msg)
	}
}

func TestTap_AllThreeQualityFindings(t *testing.T) {
	status, findings := Evaluate(CategoryTap, Snapshot{
		KeyNitrate:           50,
		KeyColiformPresent:   1,
		KeyQualityCompliance: 70,
	})
	if status != StatusCritical {
		t.Errorf("status: got %v, want CRITICAL", status)
	}
	if len(findings) != 3 {
		t.Fatalf("findings: got %d, want 3", len(findings))
	}
	for _, f := range findings {
		if f.Kind != KindQuality {
			t.Errorf("kind: got %s, want quality", f.Kind)
		}
	}
	if !strings.Contains(findings[1].Message, "COLIFORM") {
		t.Errorf("second finding should be coliform, got %q", findings[1].Message)
	}
	if findings[2].Severity != SeverityMedium {
		t.Errorf("compliance severity: got %s, want medium", findings[2].Severity)
	}
}

func TestTap_ComplianceDefaultsTo100(t *testing.T) {
	status, findings := Evaluate(CategoryTap, Snapshot{KeyPH: 7.2, KeyColiformPresent: 0})
	if status != StatusOK || len(findings) != 0 {
		t.Errorf("got (%v, %+v), want OK with no findings", status, findings)
	}
}

func TestTap_NegativePHIsAViolation(t *testing.T) {
	_, findings := Evaluate(CategoryTap, Snapshot{KeyPH: -1})
	if len(findings) != 1 || !strings.Contains(findings[0].Message, "pH=-1.00") {
		t.Errorf("negative pH should be reported as a violation, got %+v", findings)
	}
}

func TestEvaluate_Repeatable(t *testing.T) {
	snap := Snapshot{KeyTankLevel: 12, KeyTankEmptinessHours: 11}
	s1, f1 := Evaluate(CategoryTank, snap)
	s2, f2 := Evaluate(CategoryTank, snap)
	if s1 != s2 || len(f1) != len(f2) {
		t.Fatalf("evaluation not repeatable: (%v,%d) vs (%v,%d)", s1, len(f1), s2, len(f2))
	}
	for i := range f1 {
		if f1[i] != f2[i] {
			t.Errorf("findings[%d] differ: %+v vs %+v", i, f1[i], f2[i])
		}
	}
}
