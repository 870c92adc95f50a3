package recovery

import (
	"fmt"
	"time"
)

const (
	lowBatteryPct        = 20
	marginalBatteryPct   = 30
	hardwareFaultCount   = 3
	overheatFaultCount   = 2
	overheatClusterLimit = 60 * time.Second
)

// DiagnosisInput is the read-only view of a unit needed for a diagnosis.
type DiagnosisInput struct {
	UnitID    string
	Connected bool
	Battery   int
	State     State
	Now       time.Time
}

// Finding pairs a probable cause with the recommended operator action.
type Finding struct {
	Cause  string `json:"cause"`
	Action string `json:"action"`
}

// Diagnosis is an advisory report; nothing acts on it automatically.
type Diagnosis struct {
	UnitID   string    `json:"unit_id"`
	Mode     Mode      `json:"mode"`
	Findings []Finding `json:"findings"`
}

// Healthy reports whether no probable cause was found.
func (d Diagnosis) Healthy() bool { return len(d.Findings) == 0 }

// Diagnose inspects battery and error counters and lists probable causes.
func Diagnose(in DiagnosisInput) Diagnosis {
	d := Diagnosis{UnitID: in.UnitID, Mode: in.State.Mode()}
	add := func(cause, action string) {
		d.Findings = append(d.Findings, Finding{Cause: cause, Action: action})
	}

	if !in.Connected {
		add("link down", "check radio range and reconnect the unit")
	}
	switch {
	case in.Battery < lowBatteryPct:
		add(fmt.Sprintf("low battery (%d%%)", in.Battery), "land and replace the battery")
	case in.Battery < marginalBatteryPct:
		add(fmt.Sprintf("marginal battery (%d%%)", in.Battery), "avoid aggressive maneuvers and plan a landing")
	}

	st := in.State
	if st.MotorStopCount >= hardwareFaultCount {
		add(fmt.Sprintf("repeated motor stops (%d), suspected hardware fault", st.MotorStopCount),
			"inspect propellers, motors and the frame for damage")
	}
	if st.MotorStopCount >= overheatFaultCount && !st.LastErrorTime.IsZero() &&
		in.Now.Sub(st.LastErrorTime) <= overheatClusterLimit {
		add("faults clustered within the last minute, suspected overheating",
			"land and let the unit cool down before the next flight")
	}
	if st.Degraded {
		if st.InCooldown(in.Now) {
			add(fmt.Sprintf("degraded, commands refused for %s", st.CooldownUntil.Sub(in.Now).Round(time.Second)),
				"wait for the cooldown to elapse or reset the unit after inspection")
		} else {
			add("degraded, commands attenuated", "reset error stats once the unit is verified")
		}
	}
	return d
}
