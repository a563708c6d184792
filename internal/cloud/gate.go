package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reelkit/reelkit-agent/internal/export"
	"github.com/reelkit/reelkit-agent/internal/project"
)

// uploadDurationThresholdSecs is the recording length under which sharing is
// free for any signed-in account. Longer recordings need an upgraded plan.
const uploadDurationThresholdSecs = 300.0

// EntitlementGate decides whether a project may be shared as a link. It runs
// once per export attempt, before any render work starts.
type EntitlementGate struct {
	creds  *CredentialStore
	plan   *CachedPlan
	logger *slog.Logger
}

func NewEntitlementGate(creds *CredentialStore, plan *CachedPlan, logger *slog.Logger) *EntitlementGate {
	return &EntitlementGate{
		creds:  creds,
		plan:   plan,
		logger: logger,
	}
}

func (g *EntitlementGate) CheckEligibility(ctx context.Context, p *project.Project) (export.Eligibility, error) {
	if !g.creds.IsAuthenticated(ctx) {
		g.logger.Info("share blocked: no cloud credential", "project_id", p.ID)
		return export.Eligibility{Reason: export.ReasonNotAuthenticated}, nil
	}

	duration := p.EffectiveDuration()
	if duration < uploadDurationThresholdSecs {
		return export.Eligibility{Allowed: true}, nil
	}

	plan, err := g.plan.Get(ctx)
	if err != nil {
		return export.Eligibility{}, fmt.Errorf("plan check: %w", err)
	}
	if !plan.Upgraded {
		g.logger.Info("share blocked: upgrade required", "project_id", p.ID, "duration_secs", duration)
		return export.Eligibility{Reason: export.ReasonUpgradeRequired}, nil
	}
	return export.Eligibility{Allowed: true}, nil
}
