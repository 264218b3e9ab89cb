package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/BrandonDHaskell/Portunus/gate/internal/clock"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/store"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
)

// BarrierControl is the part of barrier.Barrier the services drive.
type BarrierControl interface {
	Open(kind types.EventKind, department, user *int64) error
	Close(kind types.EventKind, department, user *int64) error
}

type AccessService struct {
	sensors store.SensorStore
	events  store.AccessEventStore
	barrier BarrierControl
	clock   clock.Clock
	logger  *log.Logger
	metrics Metrics
}

func NewAccessService(
	sensors store.SensorStore,
	events store.AccessEventStore,
	barrier BarrierControl,
	clk clock.Clock,
	logger *log.Logger,
	metrics Metrics,
) *AccessService {
	return &AccessService{
		sensors: sensors,
		events:  events,
		barrier: barrier,
		clock:   clk,
		logger:  logger,
		metrics: metricsOrNop(metrics),
	}
}

// Validate decides whether the presented credential opens the gate. Every
// decision appends exactly one access event; a failure to append is logged
// and does not change the answer. A granted decision opens the barrier.
func (s *AccessService) Validate(ctx context.Context, rawCode string) (types.ValidateResponse, error) {
	code := types.NormalizeCode(rawCode)
	if code == "" {
		return types.ValidateResponse{}, ErrInvalidCode
	}

	now := s.clock.Now().UTC()

	sensor, err := s.sensors.FindByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		resp := types.ValidateResponse{
			Granted:   false,
			Message:   "Sensor not registered",
			EventKind: types.EventDeniedAccess,
		}
		s.recordEvent(ctx, store.AccessEventRecord{
			Kind:       resp.EventKind,
			Outcome:    types.OutcomeDenied,
			Code:       code,
			Detail:     resp.Message,
			OccurredAt: now,
		})
		s.metrics.AccessDecision(resp.EventKind, false)
		s.logger.Printf("access: %s code=%s", resp.EventKind, code)
		return resp, nil
	}
	if err != nil {
		return types.ValidateResponse{}, fmt.Errorf("lookup sensor: %w", err)
	}

	resp := decide(sensor)

	outcome := types.OutcomeDenied
	if resp.Granted {
		outcome = types.OutcomeGranted
	}
	s.recordEvent(ctx, store.AccessEventRecord{
		SensorID:     &sensor.ID,
		UserID:       sensor.RegisteredBy,
		DepartmentID: &sensor.DepartmentID,
		Kind:         resp.EventKind,
		Outcome:      outcome,
		Code:         code,
		Detail:       resp.Message,
		OccurredAt:   now,
	})

	if resp.Granted {
		if err := s.barrier.Open(resp.EventKind, &sensor.DepartmentID, sensor.RegisteredBy); err != nil {
			s.logger.Printf("access: barrier open failed sensor=%d: %v", sensor.ID, err)
		}
	}

	s.metrics.AccessDecision(resp.EventKind, resp.Granted)
	s.logger.Printf("access: %s code=%s sensor=%d %s", resp.EventKind, code, sensor.ID, resp.Message)
	return resp, nil
}

// decide applies the status rules in order; the first match wins.
func decide(sensor store.SensorRecord) types.ValidateResponse {
	label := sensor.Alias
	if label == "" {
		label = sensor.Code
	}

	resp := types.ValidateResponse{
		Sensor: &types.SensorSummary{
			ID:         sensor.ID,
			Kind:       sensor.Kind,
			Alias:      sensor.Alias,
			Department: sensor.Department.Label(),
		},
	}

	switch sensor.Status {
	case types.SensorBlocked:
		resp.EventKind = types.EventSensorBlocked
		resp.Message = "Sensor BLOCKED - " + label
	case types.SensorLost:
		resp.EventKind = types.EventSensorLost
		resp.Message = "Sensor reported LOST - " + label
	case types.SensorActive:
		resp.Granted = true
		resp.EventKind = types.EventValidAccess
		resp.Message = "Access granted - Dept " + sensor.Department.Number
		if sensor.Department.Tower != "" {
			resp.Message += " " + sensor.Department.Tower
		}
	default:
		// INACTIVE, and any status this build does not know, is a plain denial.
		resp.EventKind = types.EventDeniedAccess
		resp.Message = "Sensor INACTIVE - " + label
	}
	return resp
}

func (s *AccessService) recordEvent(ctx context.Context, rec store.AccessEventRecord) {
	appendEvent(ctx, s.events, rec, s.logger, s.metrics)
}

// appendEvent writes to the audit log. Errors are logged and counted, never
// returned: a failed audit write must not hold the gate.
func appendEvent(ctx context.Context, events store.AccessEventStore, rec store.AccessEventRecord, logger *log.Logger, m Metrics) bool {
	if err := events.RecordEvent(ctx, rec); err != nil {
		m.EventWriteFailed(rec.Kind)
		logger.Printf("access event write failed kind=%s code=%s user=%s: %v",
			rec.Kind, rec.Code, fmtID(rec.UserID), err)
		return false
	}
	return true
}

func fmtID(id *int64) string {
	if id == nil {
		return "-"
	}
	return strconv.FormatInt(*id, 10)
}
