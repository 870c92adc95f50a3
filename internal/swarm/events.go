package swarm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"droneops-swarm/internal/logging"
	"droneops-swarm/internal/sink"
	"droneops-swarm/internal/telemetry"
	"droneops-swarm/internal/unit"
)

// deadlineCheck is how often Run looks at cooldown and auto-exit deadlines.
const deadlineCheck = time.Second

// Events exposes the fan-in of every unit's events. Run is the usual
// consumer; tests may drain it directly.
func (s *Swarm) Events() <-chan unit.Event { return s.events }

// HandleEvent reacts to one unit event.
func (s *Swarm) HandleEvent(ctx context.Context, ev unit.Event) {
	log := logging.FromContext(ctx).With("unit_id", ev.UnitID, "event", ev.Type)
	u, ok := s.Unit(ev.UnitID)
	if !ok {
		log.Debug("event for unknown unit dropped")
		return
	}
	switch ev.Type {
	case unit.EventBatteryLow:
		log.Warn("battery low", "battery", ev.Battery)
		s.record(ctx, telemetry.EventBatteryLow, telemetry.SeverityWarning,
			fmt.Sprintf("battery %d%%", ev.Battery), ev.UnitID)
		s.guardBattery(ctx, u, ev.Battery)

	case unit.EventEmergency:
		log.Error("unit emergency", "detail", ev.Detail)
		s.record(ctx, telemetry.EventEmergency, telemetry.SeverityCritical, ev.Detail, ev.UnitID)
		s.exclude(ctx, ev.UnitID, "emergency: "+ev.Detail)
		if frac := s.activeFraction(); frac < s.cfg.EscalationThreshold {
			log.Error("active fraction below threshold, stopping the swarm",
				"active_fraction", frac, "threshold", s.cfg.EscalationThreshold)
			s.EmergencyStopAll(ctx)
		}

	case unit.EventConnectionLost:
		log.Warn("connection lost", "detail", ev.Detail)
		s.record(ctx, telemetry.EventConnectionLost, telemetry.SeverityWarning, ev.Detail, ev.UnitID)
		s.exclude(ctx, ev.UnitID, "connection lost")

	case unit.EventDegradedEntered:
		at := ev.Time
		if at.IsZero() {
			at = s.now()
		}
		s.mu.Lock()
		s.degradedSince[ev.UnitID] = at
		s.cooling[ev.UnitID] = true
		s.mu.Unlock()
		log.Warn("unit degraded")
		s.record(ctx, telemetry.EventDegradedEntered, telemetry.SeverityWarning, ev.Detail, ev.UnitID)

	case unit.EventDegradedExited:
		s.mu.Lock()
		delete(s.degradedSince, ev.UnitID)
		delete(s.cooling, ev.UnitID)
		s.mu.Unlock()
		log.Info("unit left degraded mode")
		s.record(ctx, telemetry.EventDegradedExited, telemetry.SeverityInfo, ev.Detail, ev.UnitID)

	default:
		log.Debug("unhandled unit event")
	}
}

// guardBattery forces an emergency landing below the critical level.
func (s *Swarm) guardBattery(ctx context.Context, u *unit.Unit, level int) {
	if level < 0 || level >= s.cfg.CriticalBattery || !u.Flying() {
		return
	}
	logging.FromContext(ctx).Error("battery critical, forcing emergency landing", "unit_id", u.ID(), "battery", level)
	ectx, cancel := context.WithTimeout(ctx, s.cfg.EmergencyTimeout)
	defer cancel()
	_ = u.EmergencyLand(ectx)
	s.refreshFlightState()
}

// Run is the coordinator loop. It handles unit events, polls batteries,
// checks degraded deadlines and records health snapshots until ctx is done
// or the swarm shuts down.
func (s *Swarm) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	log.Info("starting coordinator", "battery_poll", s.cfg.BatteryPoll, "health_interval", s.cfg.HealthInterval)
	battery := time.NewTicker(s.cfg.BatteryPoll)
	defer battery.Stop()
	health := time.NewTicker(s.cfg.HealthInterval)
	defer health.Stop()
	deadlines := time.NewTicker(deadlineCheck)
	defer deadlines.Stop()

	for {
		select {
		case ev := <-s.events:
			s.HandleEvent(ctx, ev)
		case <-battery.C:
			s.PollBatteries(ctx)
		case <-deadlines.C:
			s.CheckDeadlines(ctx)
		case <-health.C:
			s.RecordHealth(ctx)
		case <-s.done:
			log.Info("stopping coordinator")
			return
		case <-ctx.Done():
			log.Info("stopping coordinator")
			return
		}
	}
}

// PollBatteries refreshes every active unit's battery level and lands
// units that dropped below the critical level.
func (s *Swarm) PollBatteries(ctx context.Context) {
	s.dispatch(ctx, "battery", s.activeUnits(), s.cfg.CommandTimeout, func(ctx context.Context, u *unit.Unit) error {
		level, err := u.RefreshBattery(ctx)
		if err != nil {
			logging.FromContext(ctx).Debug("battery poll failed", "unit_id", u.ID(), "err", err)
			return err
		}
		s.guardBattery(ctx, u, level)
		return nil
	})
}

// CheckDeadlines logs elapsed degraded cooldowns and, when configured,
// takes units out of degraded mode once DegradedAutoExit has passed.
func (s *Swarm) CheckDeadlines(ctx context.Context) {
	now := s.now()
	log := logging.FromContext(ctx)
	for _, u := range s.allUnits() {
		st := u.ErrorState()
		id := u.ID()
		if !st.Degraded {
			continue
		}
		s.mu.Lock()
		since, tracked := s.degradedSince[id]
		if !tracked {
			since = now
			s.degradedSince[id] = now
		}
		cooling := s.cooling[id]
		if cooling && !st.InCooldown(now) {
			s.cooling[id] = false
		}
		s.mu.Unlock()

		if cooling && !st.InCooldown(now) {
			log.Info("degraded cooldown elapsed, attenuated commands accepted", "unit_id", id)
		}
		if s.cfg.DegradedAutoExit > 0 && now.Sub(since) >= s.cfg.DegradedAutoExit {
			log.Info("degraded mode auto-exit", "unit_id", id, "degraded_for", now.Sub(since).Round(time.Second))
			u.ExitDegraded(ctx)
		}
	}
}

// RecordHealth writes one health row per unit to the sink.
func (s *Swarm) RecordHealth(ctx context.Context) {
	now := s.now().UTC()
	var rows []telemetry.UnitHealthRow
	for _, u := range s.allUnits() {
		st := u.Status()
		rows = append(rows, telemetry.UnitHealthRow{
			SwarmID:             s.cfg.SwarmID,
			UnitID:              st.ID,
			Connected:           st.Connected,
			Flying:              st.Flying,
			Operational:         st.Operational,
			Battery:             st.Battery,
			X:                   st.Position.X,
			Y:                   st.Position.Y,
			Z:                   st.Position.Z,
			Heading:             st.Heading,
			Mode:                string(st.Mode),
			MotorStopCount:      st.Errors.MotorStopCount,
			ConsecutiveFailures: st.Errors.ConsecutiveFailures,
			TotalFailures:       st.Errors.TotalFailures,
			TransportFaults:     st.Errors.TransportFaults,
			Timestamp:           now,
		})
	}
	if len(rows) == 0 {
		return
	}
	if err := sink.WriteHealth(s.sink, rows); err != nil {
		logging.FromContext(ctx).Error("health write failed", "err", err)
	}
}

// record writes a swarm event row. Sink failures are logged, never
// propagated.
func (s *Swarm) record(ctx context.Context, eventType, severity, detail string, unitIDs ...string) {
	row := telemetry.SwarmEventRow{
		EventID:   uuid.NewString(),
		SwarmID:   s.cfg.SwarmID,
		EventType: eventType,
		Severity:  severity,
		UnitIDs:   append([]string{}, unitIDs...),
		Detail:    detail,
		Timestamp: s.now().UTC(),
	}
	if err := s.sink.WriteSwarmEvent(row); err != nil {
		logging.FromContext(ctx).Error("event write failed", "event", eventType, "err", err)
	}
}
