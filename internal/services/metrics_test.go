package services

import (
	"context"
	"errors"
	"testing"

	"school_resources_backend/internal/models"
	"school_resources_backend/internal/repositories/memory"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_TransitionOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	store := memory.NewStore()
	labs := NewLabService(store, ClaimsGate{}, metrics)
	ctx := context.Background()

	tech := models.Principal{ID: 5, Role: models.RoleLabTechnician}
	owner := models.Principal{ID: 1, Role: models.RoleTeacher}
	_, err := labs.CreateLab(ctx, tech, CreateLabRequest{LabNumber: "L1"})
	require.NoError(t, err)
	booking, err := labs.Reserve(ctx, owner, ReserveLabRequest{LabNumber: "L1", Date: "2024-01-10", StartTime: "09:00", EndTime: "10:00"})
	require.NoError(t, err)

	_, err = labs.Decide(ctx, owner, booking.ID, models.ActionApprove)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = labs.Decide(ctx, tech, booking.ID, models.ActionApprove)
	require.NoError(t, err)
	_, err = labs.Decide(ctx, tech, booking.ID, models.ActionApprove)
	require.NoError(t, err)
	_, err = labs.Decide(ctx, tech, booking.ID, models.ActionReject)
	require.ErrorIs(t, err, ErrInvalidState)

	kind := string(models.KindLabBooking)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues(kind, "approve", OutcomeForbidden)))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues(kind, "approve", OutcomeApplied)))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues(kind, "approve", OutcomeNoop)))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues(kind, "reject", OutcomeRefused)))

	count, err := testutil.GatherAndCount(reg, "school_resources_ledger_operation_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 2, count, "lab.create and lab.reserve, both applied")
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.observeTransition("loan", "return", OutcomeApplied)
	m.track("noop")(errors.New("ignored"))
}
