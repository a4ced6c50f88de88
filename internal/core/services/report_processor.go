package services

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/scoring"
	"github.com/comitanigiacomo/kanso-discipline-engine/internal/platform/logger"
)

// HabitCacheInvalidator drops cached habit reads after a user's habits change.
type HabitCacheInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// ReportProcessor settles one daily report: every tracked habit in it is
// evaluated, weighted, applied to the percent ledger and streak, and the
// user's discipline health is aggregated, all in a single transaction.
type ReportProcessor struct {
	reports     domain.ReportRepository
	uow         domain.UnitOfWork
	config      domain.ConfigProvider
	locker      domain.UserLocker
	notifier    domain.Notifier
	invalidator HabitCacheInvalidator
	log         *logger.Logger
	tracer      trace.Tracer
	now         func() time.Time
	evaluate    func(scoring.EvaluationRequest) scoring.Evaluation
	evalLimit   int
}

type ProcessorOption func(*ReportProcessor)

func WithNotifier(n domain.Notifier) ProcessorOption {
	return func(p *ReportProcessor) { p.notifier = n }
}

func WithCacheInvalidator(inv HabitCacheInvalidator) ProcessorOption {
	return func(p *ReportProcessor) { p.invalidator = inv }
}

func WithLogger(l *logger.Logger) ProcessorOption {
	return func(p *ReportProcessor) { p.log = l }
}

func WithClock(now func() time.Time) ProcessorOption {
	return func(p *ReportProcessor) { p.now = now }
}

// WithEvaluationLimit caps concurrent per-habit evaluations within one run.
func WithEvaluationLimit(n int) ProcessorOption {
	return func(p *ReportProcessor) { p.evalLimit = n }
}

func NewReportProcessor(reports domain.ReportRepository, uow domain.UnitOfWork, config domain.ConfigProvider, locker domain.UserLocker, opts ...ProcessorOption) *ReportProcessor {
	p := &ReportProcessor{
		reports:   reports,
		uow:       uow,
		config:    config,
		locker:    locker,
		log:       logger.Nop(),
		tracer:    otel.Tracer("kanso/settlement"),
		now:       time.Now,
		evaluate:  scoring.Evaluate,
		evalLimit: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With("component", "report_processor")
	return p
}

// habitWork carries one sub-report through a run.
type habitWork struct {
	report     *domain.DailyHabitReport
	habit      *domain.TrackedHabit
	thresholds domain.HabitThresholds
	yesterday  *float64

	eval       scoring.Evaluation
	evalFailed error
	skip       string
	resumed    bool
}

// Process runs the settlement state machine for one report. A
// *domain.ConflictError (lock held, already settled) is benign and must not
// be retried. Any other error leaves no partial writes behind; the run can
// be retried as is. The returned result is never nil.
func (p *ReportProcessor) Process(ctx context.Context, reportID string) (*domain.SettlementResult, error) {
	ctx, span := p.tracer.Start(ctx, "ReportProcessor.Process",
		trace.WithAttributes(attribute.String("report.id", reportID)))
	defer span.End()

	result := &domain.SettlementResult{ReportID: reportID, State: domain.StateLoaded, Habits: []domain.HabitSettlement{}}
	err := p.process(ctx, reportID, result)

	span.SetAttributes(
		attribute.String("user.id", result.UserID),
		attribute.String("settlement.state", string(result.State)),
	)

	log := p.log.With("report_id", reportID, "user_id", result.UserID)
	switch {
	case err == nil:
		log.Info("report settled",
			"report_date", result.ReportDate.Format(domain.DateLayout),
			"habits", len(result.Habits),
			"delta_health", result.DeltaHealth,
			"new_health", result.NewHealth,
			"xp", result.XPGained,
		)
	case errors.Is(err, domain.ErrAlreadySettled):
		result.AlreadySettled = true
		result.State = domain.StateDone
		log.Info("report already settled, skipping")
	case errors.Is(err, domain.ErrConflict):
		log.Info("settlement skipped", "reason", err.Error())
	default:
		result.State = domain.StateFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("settlement failed", "error", err)
	}

	return result, err
}

func (p *ReportProcessor) process(ctx context.Context, reportID string, result *domain.SettlementResult) error {
	report, err := p.reports.GetReport(ctx, reportID)
	if err != nil {
		return err
	}
	date := domain.DateOf(report.ReportDate)
	result.UserID = report.UserID
	result.ReportDate = date

	coeffs, err := p.config.GetCoefficients(ctx)
	if err != nil {
		return err
	}
	thresholds, err := p.config.GetThresholds(ctx)
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	release, err := p.locker.Acquire(ctx, report.UserID)
	if err != nil {
		return err
	}
	defer release()

	var staged domain.SettlementResult
	err = p.uow.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		staged = *result
		staged.Habits = []domain.HabitSettlement{}
		return p.settle(ctx, repos, report, date, coeffs, thresholds, &staged)
	})
	if err != nil {
		return err
	}

	*result = staged
	result.State = domain.StateDone
	p.afterCommit(ctx, result)
	return nil
}

func (p *ReportProcessor) settle(ctx context.Context, repos domain.Repositories, report *domain.DailyReport, date time.Time, coeffs domain.Coefficients, thresholds domain.ThresholdSet, result *domain.SettlementResult) error {
	settled, err := repos.Metrics.SnapshotExists(ctx, report.UserID, date)
	if err != nil {
		return err
	}
	if settled {
		return domain.ErrAlreadySettled.WithKey(report.UserID + "@" + date.Format(domain.DateLayout))
	}

	work, err := p.load(ctx, repos, report, date, thresholds)
	if err != nil {
		return err
	}

	result.State = domain.StateEvaluating
	p.evaluateAll(report, work)

	// Last point where a cancelled run leaves no trace.
	if err := ctx.Err(); err != nil {
		return err
	}

	result.State = domain.StateSettling
	now := p.now().UTC()
	outcomes := make([]scoring.WeightedOutcome, 0, len(work))

	for _, w := range work {
		s := domain.HabitSettlement{HabitKey: domain.NormalizeHabitKey(w.report.HabitKey)}
		if w.habit != nil {
			s.TrackedHabitID = w.habit.ID
		}

		switch {
		case w.skip != "":
			s.Status = domain.HabitFailed
			s.Diagnostic = w.skip
		case w.resumed:
			entry, err := repos.History.GetEntry(ctx, w.habit.ID, date)
			if err != nil {
				return fmt.Errorf("resume %s: %w", s.HabitKey, err)
			}
			s.Status = domain.HabitResumed
			s.Outcome = entry.Outcome
			s.Weight = entry.WeightAfter
			s.Percent = entry.PercentAfter
			s.PercentDelta = entry.PercentDelta
			s.Streak = w.habit.Streak
			outcomes = append(outcomes, scoring.WeightedOutcome{Outcome: entry.Outcome, Weight: entry.WeightAfter})
		case w.evalFailed != nil:
			s.Status = domain.HabitFailed
			s.Diagnostic = w.evalFailed.Error()
		default:
			if err := p.settleHabit(ctx, repos, w, date, coeffs, now, &s); err != nil {
				return err
			}
			outcomes = append(outcomes, scoring.WeightedOutcome{Outcome: w.eval.Outcome, Weight: w.habit.CurrentWeight})
		}
		result.Habits = append(result.Habits, s)
	}

	result.State = domain.StateAggregated
	return p.aggregate(ctx, repos, report.UserID, date, outcomes, coeffs, now, result)
}

// load resolves each sub-report's habit and yesterday's measured value.
func (p *ReportProcessor) load(ctx context.Context, repos domain.Repositories, report *domain.DailyReport, date time.Time, thresholds domain.ThresholdSet) ([]*habitWork, error) {
	work := make([]*habitWork, 0, len(report.Habits))
	seen := make(map[string]bool, len(report.Habits))

	for _, hr := range report.Habits {
		w := &habitWork{report: hr}
		work = append(work, w)

		h, err := repos.Habits.GetTrackedHabit(ctx, report.UserID, hr.HabitKey)
		if err != nil {
			return nil, err
		}
		w.habit = h

		if hr.TrackedHabitID != "" && hr.TrackedHabitID != h.ID {
			w.skip = fmt.Sprintf("sub-report references habit %s but %s is tracked as %s", hr.TrackedHabitID, h.HabitKey, h.ID)
			continue
		}
		if seen[h.ID] {
			w.skip = "duplicate sub-report for " + h.HabitKey
			continue
		}
		seen[h.ID] = true

		if hr.Settled() {
			w.resumed = true
			continue
		}

		w.thresholds = thresholds.For(h.HabitKey)
		prev, err := repos.Reports.GetHabitReport(ctx, h.ID, date.AddDate(0, 0, -1))
		switch {
		case errors.Is(err, domain.ErrNotFound):
		case err != nil:
			return nil, err
		default:
			w.yesterday = scoring.MeasuredValue(h.HabitKey, w.thresholds, prev)
		}
	}
	return work, nil
}

// evaluateAll runs the pure evaluator concurrently. A panic is confined to
// its habit, which is then left unsettled.
func (p *ReportProcessor) evaluateAll(report *domain.DailyReport, work []*habitWork) {
	var g errgroup.Group
	if p.evalLimit > 0 {
		g.SetLimit(p.evalLimit)
	}

	for _, w := range work {
		if w.skip != "" || w.resumed {
			continue
		}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					w.evalFailed = fmt.Errorf("evaluation panicked: %v", r)
					p.log.Error("habit evaluation panicked",
						"report_id", report.ID, "habit_key", w.habit.HabitKey, "panic", r)
				}
			}()
			w.eval = p.evaluate(scoring.EvaluationRequest{
				HabitKey:    w.habit.HabitKey,
				Payload:     w.report.Value,
				Slip:        w.report.Slip,
				Yesterday:   w.yesterday,
				Thresholds:  w.thresholds,
				HabitTarget: w.habit.TargetValue,
			})
			return nil
		})
	}
	_ = g.Wait()
}

// settleHabit runs window count, weight, ledger and streak for one habit and
// persists the habit, its history entry and the settled marker.
func (p *ReportProcessor) settleHabit(ctx context.Context, repos domain.Repositories, w *habitWork, date time.Time, coeffs domain.Coefficients, now time.Time, s *domain.HabitSettlement) error {
	h := w.habit
	outcome := w.eval.Outcome

	from, to := scoring.WindowRange(date)
	history, err := repos.History.GetHistoryWindow(ctx, h.ID, from, to)
	if err != nil {
		return err
	}

	// Weight reads the streak before this day's update.
	weight := scoring.ComputeWeight(h.BaseWeight, scoring.CountWindows(history, date), h.Streak, coeffs)
	ledger := scoring.ApplyOutcome(h, date, outcome, weight.CurrentWeight, coeffs, now)
	streak := scoring.UpdateStreak(h, outcome, now)

	h.Settle(weight.CurrentWeight, ledger.NewPercent, streak.Streak, streak.LastSlipAt, coeffs.WeightMin, coeffs.WeightMax, now)

	if err := repos.Habits.UpdateSettlement(ctx, h); err != nil {
		return err
	}
	if err := repos.History.Append(ctx, ledger.Entry); err != nil {
		return err
	}
	w.report.MarkSettled(outcome, now)
	if err := repos.Reports.MarkHabitReportSettled(ctx, w.report); err != nil {
		return err
	}

	s.Status = domain.HabitSettled
	if w.eval.Err != nil {
		s.Status = domain.HabitDegraded
	}
	s.Outcome = outcome
	s.Measure = w.eval.Measure
	s.RequiresHelp = w.eval.RequiresHelp
	s.SlipOverride = w.eval.SlipOverride
	s.Diagnostic = w.eval.Diagnostic
	s.Weight = h.CurrentWeight
	s.Percent = h.Percent
	s.PercentDelta = ledger.Entry.PercentDelta
	s.Streak = h.Streak
	return nil
}

func (p *ReportProcessor) aggregate(ctx context.Context, repos domain.Repositories, userID string, date time.Time, outcomes []scoring.WeightedOutcome, coeffs domain.Coefficients, now time.Time, result *domain.SettlementResult) error {
	metrics, err := repos.Metrics.GetSystemMetrics(ctx, userID)
	var oldHealth *float64
	switch {
	case errors.Is(err, domain.ErrNotFound):
		metrics = domain.NewSystemMetrics(userID, coeffs.BaselineHealth)
	case err != nil:
		return err
	default:
		h := metrics.DisciplineHealth
		oldHealth = &h
	}

	health := scoring.Aggregate(oldHealth, outcomes, coeffs)

	metrics.DisciplineHealth = health.NewHealth
	metrics.TotalXP += health.XPDelta
	if metrics.LastReportDate == nil || date.After(*metrics.LastReportDate) {
		d := date
		metrics.LastReportDate = &d
	}
	metrics.UpdatedAt = now

	if err := repos.Metrics.UpsertSystemMetrics(ctx, metrics); err != nil {
		return err
	}

	snapshot := domain.NewDailyMetricsSnapshot(userID, date, health.OldHealth, health.NewHealth, health.DeltaHealth, health.SumWins, health.SumFails, health.XPDelta, now)
	if err := repos.Metrics.AppendSnapshot(ctx, snapshot); err != nil {
		return err
	}

	result.DeltaHealth = health.DeltaHealth
	result.NewHealth = health.NewHealth
	result.XPGained = health.XPDelta
	return nil
}

// afterCommit is best effort: the settlement is durable regardless.
func (p *ReportProcessor) afterCommit(ctx context.Context, result *domain.SettlementResult) {
	ctx = context.WithoutCancel(ctx)

	if p.invalidator != nil {
		p.invalidator.Invalidate(ctx, result.UserID)
	}
	if p.notifier != nil {
		if err := p.notifier.PublishSettlement(ctx, result); err != nil {
			p.log.Warn("failed to publish settlement", "report_id", result.ReportID, "error", err)
		}
	}
}
