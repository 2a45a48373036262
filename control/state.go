package control

import (
	"log/slog"

	"github.com/pthm-cable/homeostasis/telemetry"
)

// Adjustment records one committed parameter change.
type Adjustment struct {
	Tick       int64   `json:"tick"`
	Controller string  `json:"controller"`
	Param      Param   `json:"param"`
	Old        float64 `json:"old"`
	New        float64 `json:"new"`
	Reason     string  `json:"reason"`
}

// LogValue implements slog.LogValuer.
func (a Adjustment) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("tick", a.Tick),
		slog.String("controller", a.Controller),
		slog.String("param", a.Param.String()),
		slog.Float64("old", a.Old),
		slog.Float64("new", a.New),
		slog.String("reason", a.Reason),
	)
}

// Row converts the adjustment for CSV output.
func (a Adjustment) Row() telemetry.AdjustmentRow {
	return telemetry.AdjustmentRow{
		Tick:       a.Tick,
		Controller: a.Controller,
		Param:      a.Param.String(),
		Old:        a.Old,
		New:        a.New,
		Reason:     a.Reason,
	}
}

// ControllerState is the bookkeeping each controller owns exclusively.
type ControllerState struct {
	Name              string
	LastEvaluatedTick int64
	LastAdjustedTick  int64 // -1 until the first change
	history           *telemetry.Ring[Adjustment]
}

func newControllerState(name string, historyLimit int) ControllerState {
	return ControllerState{
		Name:             name,
		LastAdjustedTick: -1,
		history:          telemetry.NewRing[Adjustment](historyLimit),
	}
}

// due reports whether interval ticks have passed since the last evaluation.
func (s *ControllerState) due(tick, interval int64) bool {
	return tick-s.LastEvaluatedTick >= interval
}

// commit clamps and stores v, recording the change when it exceeds minChange.
func (s *ControllerState) commit(reg *Registry, tick int64, p Param, v, minChange float64, reason string) (Adjustment, bool) {
	ch, err := reg.Commit(p, v)
	if err != nil {
		slog.Debug("controller produced invalid value", "controller", s.Name, "param", p.String(), "err", err)
		return Adjustment{}, false
	}
	delta := ch.New - ch.Old
	if delta < 0 {
		delta = -delta
	}
	if delta <= minChange {
		// Restore the exact previous value so sub-threshold drift never accumulates
		reg.values[p] = ch.Old
		return Adjustment{}, false
	}
	adj := Adjustment{Tick: tick, Controller: s.Name, Param: p, Old: ch.Old, New: ch.New, Reason: reason}
	s.history.Push(adj)
	s.LastAdjustedTick = tick
	return adj, true
}

// History returns recorded adjustments, oldest first.
func (s *ControllerState) History() []Adjustment {
	return s.history.Slice()
}

// Timing is the persistable part of a ControllerState.
type Timing struct {
	LastEvaluatedTick int64 `json:"last_evaluated_tick"`
	LastAdjustedTick  int64 `json:"last_adjusted_tick"`
}

func (s *ControllerState) timing() Timing {
	return Timing{LastEvaluatedTick: s.LastEvaluatedTick, LastAdjustedTick: s.LastAdjustedTick}
}

func (s *ControllerState) restore(t Timing) {
	s.LastEvaluatedTick = t.LastEvaluatedTick
	s.LastAdjustedTick = t.LastAdjustedTick
}
