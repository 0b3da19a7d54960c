package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/ats/internal/domain"
	"github.com/aristath/ats/internal/store"
)

const (
	redeployCooldown   = 24 * time.Hour
	paperDeployWindow  = 24 * time.Hour
	driftSharpeFactor  = 0.7
	driftReturnFactor  = 0.5
	driftWarnThreshold = 3
	autoRollbackLossConsecutive = 5
)

// ErrIllegalTransition is returned when a lifecycle method is invoked on a
// model that is not in the precondition state it requires.
var ErrIllegalTransition = errors.New("illegal model lifecycle transition")

// Lifecycle drives ModelVersion state transitions and drift-based rollback
// decisions (§4.7). Every method is safe to call repeatedly; only a legal
// precondition actually mutates state.
type Lifecycle struct {
	models  *store.ModelRepository
	scan    *store.ScanRepository
	traders *store.TraderRepository
	safety  *store.SafetyRepository
	events  *store.EventRepository
	log     zerolog.Logger
}

func New(models *store.ModelRepository, scan *store.ScanRepository, traders *store.TraderRepository, safety *store.SafetyRepository, events *store.EventRepository, log zerolog.Logger) *Lifecycle {
	return &Lifecycle{models: models, scan: scan, traders: traders, safety: safety, events: events, log: log.With().Str("component", "lifecycle").Logger()}
}

// Validate computes evaluation metrics from a strategy's labeled feature
// snapshots and applies the DRAFT → VALIDATED transition on PASS.
func (l *Lifecycle) Validate(modelID int64, snapshots []domain.FeatureSnapshot) (Metrics, GateStatus, string, error) {
	model, err := l.models.Get(modelID)
	if err != nil {
		return Metrics{}, "", "", err
	}
	if model.Status != domain.ModelDraft {
		return Metrics{}, "", "", fmt.Errorf("validate model %d: %w (status=%s)", modelID, ErrIllegalTransition, model.Status)
	}

	metrics, gate, reason := Evaluate(snapshots)
	metricsJSON, _ := json.Marshal(metrics)
	if err := l.models.UpdateMetrics(modelID, string(metricsJSON)); err != nil {
		l.log.Warn().Err(err).Msg("failed to persist evaluation metrics")
	}

	if gate == GatePass {
		if err := l.models.SetStatus(modelID, domain.ModelValidated); err != nil {
			return metrics, gate, reason, err
		}
	}
	return metrics, gate, reason, nil
}

// Deploy applies VALIDATED → PAPER_DEPLOYED, enforcing the 24h redeploy
// cooldown against the strategy's most recent deployment.
func (l *Lifecycle) Deploy(modelID int64) error {
	model, err := l.models.Get(modelID)
	if err != nil {
		return err
	}
	if model.Status != domain.ModelValidated {
		return fmt.Errorf("deploy model %d: %w (status=%s)", modelID, ErrIllegalTransition, model.Status)
	}

	for _, status := range []domain.ModelStatus{domain.ModelPaperDeployed, domain.ModelLiveEligible, domain.ModelLiveArmed} {
		prior, err := l.models.Latest(model.StrategyID, status)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if prior.DeployedAt != nil && time.Since(*prior.DeployedAt) < redeployCooldown {
			return fmt.Errorf("deploy model %d: redeploy cooldown active for strategy %s", modelID, model.StrategyID)
		}
	}

	return l.models.SetStatus(modelID, domain.ModelPaperDeployed)
}

// CheckEligible applies the 24h auto-promotion check: PAPER_DEPLOYED →
// LIVE_ELIGIBLE once 24h have elapsed, unless an auto-rollback trigger fires
// first, in which case the model rolls back to DRAFT.
func (l *Lifecycle) CheckEligible(modelID int64) (domain.ModelStatus, string, error) {
	model, err := l.models.Get(modelID)
	if err != nil {
		return "", "", err
	}
	if model.Status != domain.ModelPaperDeployed {
		return model.Status, "", fmt.Errorf("check_eligible model %d: %w (status=%s)", modelID, ErrIllegalTransition, model.Status)
	}
	if model.DeployedAt == nil || time.Since(*model.DeployedAt) < paperDeployWindow {
		return model.Status, "paper deploy window not yet elapsed", nil
	}

	if reason, tripped := l.autoRollbackReason(model); tripped {
		if err := l.rollback(modelID, reason); err != nil {
			return model.Status, reason, err
		}
		return domain.ModelDraft, reason, nil
	}

	if err := l.models.SetStatus(modelID, domain.ModelLiveEligible); err != nil {
		return model.Status, "", err
	}
	return domain.ModelLiveEligible, "24h elapsed, no auto-rollback trigger", nil
}

// autoRollbackReason evaluates the three auto-rollback triggers (§4.7) and
// returns the first one that fires.
func (l *Lifecycle) autoRollbackReason(model domain.ModelVersion) (string, bool) {
	if metrics24h, err := l.scan.LatestMetrics24h(model.ID); err == nil {
		if metrics24h.NetReturn24h < -0.02 {
			return fmt.Sprintf("AUTO_ROLLBACK: 24시간 수익률 %.4f 미만 -2%%", metrics24h.NetReturn24h), true
		}
	}

	if baseline, err := l.scan.Baseline(model.StrategyID); err == nil {
		if baseline.DriftWarnCount >= driftWarnThreshold {
			return fmt.Sprintf("AUTO_ROLLBACK: drift_warn_count %d 이상", baseline.DriftWarnCount), true
		}
	}

	traders, err := l.traders.List()
	if err == nil {
		for _, t := range traders {
			if t.StrategyID != model.StrategyID {
				continue
			}
			safety, err := l.safetyFor(t.Name)
			if err != nil {
				continue
			}
			if safety.ConsecutiveLosses >= autoRollbackLossConsecutive {
				return fmt.Sprintf("AUTO_ROLLBACK: trader %s consecutive_losses %d 이상", t.Name, safety.ConsecutiveLosses), true
			}
		}
	}

	return "", false
}

func (l *Lifecycle) safetyFor(traderName string) (domain.TraderSafetyState, error) {
	if l.safety == nil {
		return domain.TraderSafetyState{}, store.ErrNotFound
	}
	return l.safety.Get(traderName)
}

// Arm applies LIVE_ELIGIBLE → LIVE_ARMED.
func (l *Lifecycle) Arm(modelID int64) error {
	model, err := l.models.Get(modelID)
	if err != nil {
		return err
	}
	if model.Status != domain.ModelLiveEligible {
		return fmt.Errorf("arm model %d: %w (status=%s)", modelID, ErrIllegalTransition, model.Status)
	}
	return l.models.SetStatus(modelID, domain.ModelLiveArmed)
}

// Rollback forces any state back to DRAFT, recording the reason and emitting
// a CRITICAL alert. Valid from any non-DRAFT status (manual rollback).
func (l *Lifecycle) Rollback(modelID int64, reason string) error {
	model, err := l.models.Get(modelID)
	if err != nil {
		return err
	}
	if model.Status == domain.ModelDraft {
		return fmt.Errorf("rollback model %d: %w (status=%s)", modelID, ErrIllegalTransition, model.Status)
	}
	return l.rollback(modelID, reason)
}

func (l *Lifecycle) rollback(modelID int64, reason string) error {
	if err := l.models.Rollback(modelID, reason); err != nil {
		return err
	}
	if l.events != nil {
		_, _ = l.events.Create(domain.Event{
			Level:   "CRITICAL",
			Kind:    "MODEL_ROLLBACK",
			Message: fmt.Sprintf("model %d rolled back: %s", modelID, reason),
		})
	}
	return nil
}

// CheckDrift compares a strategy's current metrics against its pinned
// baseline and increments drift_warn_count when either threshold trips
// (§4.7's drift check, independent of the auto-rollback triggers above).
func (l *Lifecycle) CheckDrift(strategyID string, currentSharpe, currentMeanReturn float64) (bool, int, error) {
	baseline, err := l.scan.Baseline(strategyID)
	if err != nil {
		return false, 0, err
	}
	drifted := currentSharpe < driftSharpeFactor*baseline.Sharpe || currentMeanReturn < driftReturnFactor*baseline.MeanReturn
	if !drifted {
		return false, baseline.DriftWarnCount, nil
	}
	n, err := l.scan.IncrementDriftWarn(strategyID)
	if err != nil {
		return true, baseline.DriftWarnCount, err
	}
	return true, n, nil
}
