package flow

import (
	"testing"

	"github.com/recruitflow/recruitflow/internal/models"
)

func TestStatusForStep(t *testing.T) {
	cases := []struct {
		step models.FunnelStep
		want string
	}{
		{models.StepScreeningWait, StatusScreening},
		{models.StepCompanyIntro, StatusCompanyIntro},
		{models.StepVoiceWait, StatusCompanyIntro},
		{models.StepScheduleShiftWait, StatusSchedule},
		{models.StepTestReview, StatusTest},
		{models.StepHandoff, StatusConfirmed},
		{models.StepAgeRejected, StatusReferral},
		{models.FunnelStep("unknown"), StatusDialog},
	}
	for _, tc := range cases {
		if got := StatusForStep(tc.step); got != tc.want {
			t.Errorf("StatusForStep(%s) = %q, want %q", tc.step, got, tc.want)
		}
	}
}

func TestStatusForRouteTerminalMappings(t *testing.T) {
	if StatusForRoute(models.RouteHandoff) != StatusConfirmed {
		t.Error("handoff must map to the confirmed status")
	}
	if StatusForRoute(models.RoutePause) != StatusStopped {
		t.Error("pause must map to the stopped status")
	}
	if StatusForRoute(models.RouteIdle) != "" {
		t.Error("idle must leave the stored status untouched")
	}
}
