package rules

// Wire keys of every metric the catalog reads, as reported by field devices.
const (
	KeyPowerConsumption        = "powerConsumption"
	KeyPumpDischargeRate       = "pumpDischargeRate"
	KeyPumpEfficiency          = "pumpEfficiency"
	KeyMotorTemperature        = "motorTemperature"
	KeyVoltage                 = "voltage"
	KeyFlowDropIndicator       = "flowDropIndicator"
	KeyLeakProbabilityScore    = "leakProbabilityScore"
	KeyPumpRunningHours        = "pumpRunningHours"
	KeyTankLevel               = "tankLevel"
	KeyTankOverflow            = "tankOverflow"
	KeyOverflowAlerts          = "overflowAlerts"
	KeyUnexpectedFillingDelays = "unexpectedFillingDelays"
	KeyTankEmptinessHours      = "tankEmptinessHours"
	KeyFaultyValveDetection    = "faultyValveDetection"
	KeyValveLeakage            = "valveLeakage"
	KeyValveOperationCount     = "valveOperationCount"
	KeyPH                      = "ph"
	KeyTurbidity               = "turbidity"
	KeyTDS                     = "tds"
	KeyFreeChlorine            = "freeChlorine"
	KeyIron                    = "iron"
	KeyFluoride                = "fluoride"
	KeyNitrate                 = "nitrate"
	KeyHardness                = "hardness"
	KeyColiformPresent         = "coliformPresent"
	KeyQualityCompliance       = "waterQualityCompliancePercent"
)

// metric declares how a rule reads one snapshot key. An optional metric that
// is absent makes the reading rule skip; otherwise Default stands in.
type metric struct {
	Key      string
	Default  float64
	Optional bool
}

// read returns the value a rule should evaluate and whether the rule applies.
func (m metric) read(s Snapshot) (float64, bool) {
	if v, ok := s.Lookup(m.Key); ok {
		return v, true
	}
	if m.Optional {
		return 0, false
	}
	return m.Default, true
}

// Pump metrics.
var (
	pumpPower       = metric{Key: KeyPowerConsumption, Default: 0}
	pumpDischarge   = metric{Key: KeyPumpDischargeRate, Default: 0}
	pumpEfficiency  = metric{Key: KeyPumpEfficiency, Optional: true}
	pumpMotorTemp   = metric{Key: KeyMotorTemperature, Optional: true}
	pumpVoltage     = metric{Key: KeyVoltage, Optional: true}
	pumpLeakFlag    = metric{Key: KeyFlowDropIndicator, Default: 0}
	pumpLeakScore   = metric{Key: KeyLeakProbabilityScore, Default: 0}
	pumpRunningTime = metric{Key: KeyPumpRunningHours, Default: 0}
)

// Tank metrics.
var (
	tankLevel          = metric{Key: KeyTankLevel, Optional: true}
	tankOverflowFlag   = metric{Key: KeyTankOverflow, Default: 0}
	tankOverflowCount  = metric{Key: KeyOverflowAlerts, Default: 0}
	tankFillingDelays  = metric{Key: KeyUnexpectedFillingDelays, Default: 0}
	tankEmptinessHours = metric{Key: KeyTankEmptinessHours, Default: 0}
)

// Valve metrics.
var (
	valveFaultFlag      = metric{Key: KeyFaultyValveDetection, Default: 0}
	valveLeakage        = metric{Key: KeyValveLeakage, Default: 0}
	valveOperationCount = metric{Key: KeyValveOperationCount, Default: 0}
)

// Tap / water-quality metrics.
var (
	tapPH         = metric{Key: KeyPH, Optional: true}
	tapTurbidity  = metric{Key: KeyTurbidity, Optional: true}
	tapTDS        = metric{Key: KeyTDS, Optional: true}
	tapChlorine   = metric{Key: KeyFreeChlorine, Optional: true}
	tapIron       = metric{Key: KeyIron, Optional: true}
	tapFluoride   = metric{Key: KeyFluoride, Optional: true}
	tapNitrate    = metric{Key: KeyNitrate, Optional: true}
	tapHardness   = metric{Key: KeyHardness, Optional: true}
	tapColiform   = metric{Key: KeyColiformPresent, Optional: true}
	tapCompliance = metric{Key: KeyQualityCompliance, Default: 100}
)
