package rules

import (
	"fmt"
	"strings"
)

// rule is one threshold check. It reports at most one finding.
type rule func(Snapshot) (Finding, bool)

// catalog holds each category's rules in evaluation order. Alert ids for a
// single ingestion are assigned in this order, so it must stay stable.
var catalog = map[Category][]rule{
	CategoryPump: {
		pumpDryRunRule,
		pumpEfficiencyRule,
		pumpMotorTempRule,
		pumpVoltageRule,
		pumpLeakRule,
		pumpServiceDueRule,
	},
	CategoryTank: {
		tankLowLevelRule,
		tankHighLevelRule,
		tankOverflowRule,
		tankFillingDelayRule,
		tankEmptyRule,
	},
	CategoryValve: {
		valveFaultRule,
		valveLeakageRule,
		valveOperationsRule,
	},
	CategoryTap: {
		tapQualityRule,
		tapColiformRule,
		tapComplianceRule,
	},
}

// Evaluate runs every rule for category against snap and returns the
// resulting node status together with the triggered findings in catalog
// order. The status is the highest status implied by any finding, or OK.
func Evaluate(category Category, snap Snapshot) (Status, []Finding) {
	status := StatusOK
	var findings []Finding
	for _, r := range catalog[category] {
		f, ok := r(snap)
		if !ok {
			continue
		}
		findings = append(findings, f)
		status = status.Raise(f.Severity.Status())
	}
	return status, findings
}

func critical(kind Kind, format string, args ...any) (Finding, bool) {
	return Finding{Kind: kind, Severity: SeverityHigh, Message: fmt.Sprintf(format, args...)}, true
}

func warning(kind Kind, format string, args ...any) (Finding, bool) {
	return Finding{Kind: kind, Severity: SeverityMedium, Message: fmt.Sprintf(format, args...)}, true
}

// --- pump -------------------------------------------------------------------

func pumpDryRunRule(s Snapshot) (Finding, bool) {
	power, _ := pumpPower.read(s)
	discharge, _ := pumpDischarge.read(s)
	if power > 7.5 && discharge < 15 {
		return critical(KindPump,
			"Possible dry-run: High power (%.1fkW) but low discharge (%.1fL/min)", power, discharge)
	}
	return Finding{}, false
}

func pumpEfficiencyRule(s Snapshot) (Finding, bool) {
	eff, ok := pumpEfficiency.read(s)
	if ok && eff < 60 {
		return warning(KindPump, "Pump efficiency dropped to %.1f%% (normal: 65-85%%)", eff)
	}
	return Finding{}, false
}

// pumpMotorTempRule checks the critical limit first; the warning band only
// applies below it.
func pumpMotorTempRule(s Snapshot) (Finding, bool) {
	temp, ok := pumpMotorTemp.read(s)
	switch {
	case !ok:
		return Finding{}, false
	case temp > 75:
		return critical(KindPump, "Motor overheating: %.1f°C (critical > 75°C)", temp)
	case temp > 65:
		return warning(KindPump, "Motor running hot: %.1f°C (warning > 65°C)", temp)
	}
	return Finding{}, false
}

func pumpVoltageRule(s Snapshot) (Finding, bool) {
	v, ok := pumpVoltage.read(s)
	if ok && (v < 200 || v > 250) {
		return warning(KindPump, "Abnormal voltage: %.1fV (safe: 220-240V)", v)
	}
	return Finding{}, false
}

func pumpLeakRule(s Snapshot) (Finding, bool) {
	flag, _ := pumpLeakFlag.read(s)
	score, _ := pumpLeakScore.read(s)
	if flag == 1 || score > 70 {
		return critical(KindLeak, "LEAK DETECTED: Score=%.0f%%, Flow indicator=%.0f (score limit: 70%%)", score, flag)
	}
	return Finding{}, false
}

func pumpServiceDueRule(s Snapshot) (Finding, bool) {
	hours, _ := pumpRunningTime.read(s)
	if hours > 450 {
		return warning(KindPump, "Pump service due: %.0f hours (limit: 450h, service every 300-400h)", hours)
	}
	return Finding{}, false
}

// --- tank -------------------------------------------------------------------

func tankLowLevelRule(s Snapshot) (Finding, bool) {
	level, ok := tankLevel.read(s)
	switch {
	case !ok:
		return Finding{}, false
	case level < 15:
		return critical(KindTank, "CRITICAL: Tank level %.1f%% (critical < 15%%) - Risk of supply interruption!", level)
	case level < 25:
		return warning(KindTank, "Tank level low: %.1f%% (warning < 25%%) - Monitor closely", level)
	}
	return Finding{}, false
}

// tankHighLevelRule is checked independently of tankLowLevelRule so the two
// bands may overlap if their limits ever change.
func tankHighLevelRule(s Snapshot) (Finding, bool) {
	level, ok := tankLevel.read(s)
	if ok && level > 95 {
		return warning(KindTank, "Tank near overflow: %.1f%% (limit: 95%%) - Check intake valve", level)
	}
	return Finding{}, false
}

func tankOverflowRule(s Snapshot) (Finding, bool) {
	flag, _ := tankOverflowFlag.read(s)
	if flag == 1 {
		count, _ := tankOverflowCount.read(s)
		return warning(KindTank, "OVERFLOW ALERT: Tank overflow detected - %.0f this week", count)
	}
	return Finding{}, false
}

func tankFillingDelayRule(s Snapshot) (Finding, bool) {
	delays, _ := tankFillingDelays.read(s)
	if delays > 2 {
		return warning(KindTank, "Filling delays detected: %.0f times (limit: 2) - Check pump/pipes", delays)
	}
	return Finding{}, false
}

func tankEmptyRule(s Snapshot) (Finding, bool) {
	hours, _ := tankEmptinessHours.read(s)
	if hours > 10 {
		return critical(KindTank, "Tank empty for %.1f hours (limit: 10h) - Supply interrupted!", hours)
	}
	return Finding{}, false
}

// --- valve ------------------------------------------------------------------

// valveFaultRule tags its finding as a pump alert. Existing dashboards filter
// valve faults under that kind.
func valveFaultRule(s Snapshot) (Finding, bool) {
	faulty, _ := valveFaultFlag.read(s)
	if faulty == 1 {
		ops, _ := valveOperationCount.read(s)
		return critical(KindPump, "FAULTY VALVE: Increased operations (%.0f) - Valve likely jammed", ops)
	}
	return Finding{}, false
}

func valveLeakageRule(s Snapshot) (Finding, bool) {
	leak, _ := valveLeakage.read(s)
	if leak > 5 {
		return warning(KindLeak, "Valve leakage: %.1f L/h (limit: 5 L/h) - Replacement recommended", leak)
	}
	return Finding{}, false
}

func valveOperationsRule(s Snapshot) (Finding, bool) {
	ops, _ := valveOperationCount.read(s)
	if ops > 40 {
		return warning(KindPump, "Excessive valve operations: %.0f/week (limit: 40) - Check control system", ops)
	}
	return Finding{}, false
}

// --- tap / water quality ----------------------------------------------------

// qualityLimit is one drinking-water parameter check. All violated limits are
// reported together in a single finding.
type qualityLimit struct {
	metric  metric
	violate func(v float64) bool
	format  string
}

var qualityLimits = []qualityLimit{
	{tapPH, func(v float64) bool { return v < 6.5 || v > 8.5 }, "pH=%.2f (normal: 6.5-8.5)"},
	{tapTurbidity, func(v float64) bool { return v > 5 }, "Turbidity=%.2f NTU (max: 1-5)"},
	{tapTDS, func(v float64) bool { return v > 1000 }, "TDS=%.0f mg/L (max: 500-1000)"},
	{tapChlorine, func(v float64) bool { return v < 0.2 || v > 0.8 }, "Chlorine=%.2f mg/L (safe: 0.2-0.8)"},
	{tapIron, func(v float64) bool { return v > 0.3 }, "Iron=%.3f mg/L (max: 0.3)"},
	{tapFluoride, func(v float64) bool { return v > 1.5 }, "Fluoride=%.2f mg/L (max: 1.5)"},
	{tapNitrate, func(v float64) bool { return v > 45 }, "Nitrate=%.1f mg/L (max: 45)"},
	{tapHardness, func(v float64) bool { return v > 600 }, "Hardness=%.0f mg/L (max: 600)"},
}

func tapQualityRule(s Snapshot) (Finding, bool) {
	var issues []string
	for _, l := range qualityLimits {
		v, ok := l.metric.read(s)
		if ok && l.violate(v) {
			issues = append(issues, fmt.Sprintf(l.format, v))
		}
	}
	if len(issues) == 0 {
		return Finding{}, false
	}
	return critical(KindQuality, "Water quality FAILED: %s", strings.Join(issues, " | "))
}

func tapColiformRule(s Snapshot) (Finding, bool) {
	v, ok := tapColiform.read(s)
	if ok && v == 1 {
		return critical(KindQuality, "COLIFORM DETECTED - MICROBIAL CONTAMINATION - WATER NOT SAFE!")
	}
	return Finding{}, false
}

func tapComplianceRule(s Snapshot) (Finding, bool) {
	pct, _ := tapCompliance.read(s)
	if pct < 80 {
		return warning(KindQuality, "Water quality compliance: %.0f%% (minimum: 80%%, target: >90%%)", pct)
	}
	return Finding{}, false
}
