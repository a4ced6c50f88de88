package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

var _ domain.UnitOfWork = (*InMemoryStore)(nil)

type memoryState struct {
	reports      map[string]*domain.DailyReport
	habitReports map[string]*domain.DailyHabitReport
	habits       map[string]*domain.TrackedHabit
	history      []*domain.HabitHistoryEntry
	metrics      map[string]*domain.SystemMetrics
	snapshots    []*domain.DailyMetricsSnapshot
}

func newMemoryState() *memoryState {
	return &memoryState{
		reports:      make(map[string]*domain.DailyReport),
		habitReports: make(map[string]*domain.DailyHabitReport),
		habits:       make(map[string]*domain.TrackedHabit),
		metrics:      make(map[string]*domain.SystemMetrics),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.reports {
		c.reports[k] = copyReport(v)
	}
	for k, v := range s.habitReports {
		c.habitReports[k] = copyHabitReport(v)
	}
	for k, v := range s.habits {
		c.habits[k] = copyHabit(v)
	}
	for k, v := range s.metrics {
		m := *v
		c.metrics[k] = &m
	}
	c.history = make([]*domain.HabitHistoryEntry, len(s.history))
	for i, e := range s.history {
		cp := *e
		c.history[i] = &cp
	}
	c.snapshots = make([]*domain.DailyMetricsSnapshot, len(s.snapshots))
	for i, sn := range s.snapshots {
		cp := *sn
		c.snapshots[i] = &cp
	}
	return c
}

// InMemoryStore keeps the whole engine state in memory. Transactions run on a
// private copy of the state that replaces the live one only on commit.
type InMemoryStore struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state *memoryState
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{state: newMemoryState()}
}

func (s *InMemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()

	if err := fn(ctx, (&memoryView{state: work, mu: &sync.RWMutex{}}).repositories()); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("commit", err)
	}

	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

// Repositories returns non-transactional views over the live state.
func (s *InMemoryStore) Repositories() domain.Repositories {
	return (&liveView{store: s}).repositories()
}

// CreateTrackedHabit seeds a habit. It waits for in-flight transactions.
func (s *InMemoryStore) CreateTrackedHabit(_ context.Context, h *domain.TrackedHabit) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.habits[h.ID] = copyHabit(h)
	return nil
}

// CreateReport seeds a daily report together with its sub-reports.
func (s *InMemoryStore) CreateReport(_ context.Context, r *domain.DailyReport) error {
	if err := r.Validate(); err != nil {
		return err
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	date := domain.DateOf(r.ReportDate)
	stored := copyReport(r)
	stored.ReportDate = date
	stored.Habits = nil
	s.state.reports[r.ID] = stored

	for _, hr := range r.Habits {
		cp := copyHabitReport(hr)
		cp.ReportID = r.ID
		cp.ReportDate = date
		cp.HabitKey = domain.NormalizeHabitKey(cp.HabitKey)
		s.state.habitReports[cp.ID] = cp
	}
	return nil
}

type liveView struct {
	store *InMemoryStore
}

func (v *liveView) repositories() domain.Repositories {
	mv := &memoryView{mu: &v.store.mu, live: v.store}
	return mv.repositories()
}

// memoryView implements every repository port over one memoryState.
// Live views resolve the state on each call so they observe committed swaps.
type memoryView struct {
	state *memoryState
	live  *InMemoryStore
	mu    *sync.RWMutex
}

func (v *memoryView) repositories() domain.Repositories {
	return domain.Repositories{
		Reports: (*memoryReports)(v),
		Habits:  (*memoryHabits)(v),
		History: (*memoryHistory)(v),
		Metrics: (*memoryMetrics)(v),
	}
}

func (v *memoryView) st() *memoryState {
	if v.live != nil {
		return v.live.state
	}
	return v.state
}

type memoryReports memoryView

func (r *memoryReports) view() *memoryView { return (*memoryView)(r) }

func (r *memoryReports) GetReport(_ context.Context, reportID string) (*domain.DailyReport, error) {
	v := r.view()
	v.mu.RLock()
	defer v.mu.RUnlock()

	st := v.st()
	rep, ok := st.reports[reportID]
	if !ok {
		return nil, domain.ErrReportNotFound.WithID(reportID)
	}

	out := copyReport(rep)
	for _, hr := range st.habitReports {
		if hr.ReportID == reportID {
			out.Habits = append(out.Habits, copyHabitReport(hr))
		}
	}
	sort.Slice(out.Habits, func(i, j int) bool {
		return out.Habits[i].HabitKey < out.Habits[j].HabitKey
	})
	return out, nil
}

func (r *memoryReports) GetHabitReport(_ context.Context, habitID string, date time.Time) (*domain.DailyHabitReport, error) {
	v := r.view()
	v.mu.RLock()
	defer v.mu.RUnlock()

	day := domain.DateOf(date)
	for _, hr := range v.st().habitReports {
		if hr.TrackedHabitID == habitID && hr.ReportDate.Equal(day) {
			return copyHabitReport(hr), nil
		}
	}
	return nil, domain.ErrReportNotFound.WithID(habitID + "@" + day.Format(domain.DateLayout))
}

func (r *memoryReports) MarkHabitReportSettled(_ context.Context, hr *domain.DailyHabitReport) error {
	v := r.view()
	v.mu.Lock()
	defer v.mu.Unlock()

	existing, ok := v.st().habitReports[hr.ID]
	if !ok {
		return domain.ErrReportNotFound.WithID(hr.ID)
	}
	existing.IsWin = hr.IsWin
	existing.IsPartialWin = hr.IsPartialWin
	existing.Outcome = hr.Outcome
	existing.SettledAt = hr.SettledAt
	return nil
}

type memoryHabits memoryView

func (r *memoryHabits) view() *memoryView { return (*memoryView)(r) }

func (r *memoryHabits) GetTrackedHabit(_ context.Context, userID, habitKey string) (*domain.TrackedHabit, error) {
	v := r.view()
	v.mu.RLock()
	defer v.mu.RUnlock()

	key := domain.NormalizeHabitKey(habitKey)
	for _, h := range v.st().habits {
		if h.UserID == userID && h.HabitKey == key {
			return copyHabit(h), nil
		}
	}
	return nil, domain.ErrHabitNotFound.WithID(userID + "/" + key)
}

func (r *memoryHabits) GetByID(_ context.Context, id string) (*domain.TrackedHabit, error) {
	v := r.view()
	v.mu.RLock()
	defer v.mu.RUnlock()

	h, ok := v.st().habits[id]
	if !ok {
		return nil, domain.ErrHabitNotFound.WithID(id)
	}
	return copyHabit(h), nil
}

func (r *memoryHabits) ListByUserID(_ context.Context, userID string) ([]*domain.TrackedHabit, error) {
	v := r.view()
	v.mu.RLock()
	defer v.mu.RUnlock()

	habits := []*domain.TrackedHabit{}
	for _, h := range v.st().habits {
		if h.UserID == userID {
			habits = append(habits, copyHabit(h))
		}
	}
	sort.Slice(habits, func(i, j int) bool {
		return habits[i].HabitKey < habits[j].HabitKey
	})
	return habits, nil
}

func (r *memoryHabits) UpdateSettlement(_ context.Context, h *domain.TrackedHabit) error {
	v := r.view()
	v.mu.Lock()
	defer v.mu.Unlock()

	existing, ok := v.st().habits[h.ID]
	if !ok {
		return domain.ErrHabitNotFound.WithID(h.ID)
	}
	existing.CurrentWeight = h.CurrentWeight
	existing.Percent = h.Percent
	existing.Streak = h.Streak
	existing.LastSlipAt = copyTime(h.LastSlipAt)
	existing.UpdatedAt = h.UpdatedAt
	return nil
}

type memoryHistory memoryView

func (r *memoryHistory) view() *memoryView { return (*memoryView)(r) }

func (r *memoryHistory) GetHistoryWindow(_ context.Context, habitID string, from, to time.Time) ([]*domain.HabitHistoryEntry, error) {
	v := r.view()
	v.mu.RLock()
	defer v.mu.RUnlock()

	from, to = domain.DateOf(from), domain.DateOf(to)
	entries := []*domain.HabitHistoryEntry{}
	for _, e := range v.st().history {
		if e.TrackedHabitID != habitID || e.ReportDate.Before(from) || e.ReportDate.After(to) {
			continue
		}
		cp := *e
		entries = append(entries, &cp)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ReportDate.After(entries[j].ReportDate)
	})
	return entries, nil
}

func (r *memoryHistory) GetEntry(_ context.Context, habitID string, date time.Time) (*domain.HabitHistoryEntry, error) {
	v := r.view()
	v.mu.RLock()
	defer v.mu.RUnlock()

	day := domain.DateOf(date)
	for _, e := range v.st().history {
		if e.TrackedHabitID == habitID && e.ReportDate.Equal(day) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, &domain.NotFoundError{Entity: "history entry", ID: habitID + "@" + day.Format(domain.DateLayout)}
}

func (r *memoryHistory) Append(_ context.Context, e *domain.HabitHistoryEntry) error {
	v := r.view()
	v.mu.Lock()
	defer v.mu.Unlock()

	st := v.st()
	day := domain.DateOf(e.ReportDate)
	for _, existing := range st.history {
		if existing.TrackedHabitID == e.TrackedHabitID && existing.ReportDate.Equal(day) {
			return domain.ErrAlreadySettled.WithKey(e.TrackedHabitID + "@" + day.Format(domain.DateLayout))
		}
	}
	cp := *e
	cp.ReportDate = day
	st.history = append(st.history, &cp)
	return nil
}

type memoryMetrics memoryView

func (r *memoryMetrics) view() *memoryView { return (*memoryView)(r) }

func (r *memoryMetrics) GetSystemMetrics(_ context.Context, userID string) (*domain.SystemMetrics, error) {
	v := r.view()
	v.mu.RLock()
	defer v.mu.RUnlock()

	m, ok := v.st().metrics[userID]
	if !ok {
		return nil, domain.ErrMetricsNotFound.WithID(userID)
	}
	cp := *m
	return &cp, nil
}

func (r *memoryMetrics) UpsertSystemMetrics(_ context.Context, m *domain.SystemMetrics) error {
	v := r.view()
	v.mu.Lock()
	defer v.mu.Unlock()

	cp := *m
	cp.LastReportDate = copyTime(m.LastReportDate)
	v.st().metrics[m.UserID] = &cp
	return nil
}

func (r *memoryMetrics) SnapshotExists(_ context.Context, userID string, date time.Time) (bool, error) {
	v := r.view()
	v.mu.RLock()
	defer v.mu.RUnlock()

	day := domain.DateOf(date)
	for _, s := range v.st().snapshots {
		if s.UserID == userID && s.ReportDate.Equal(day) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryMetrics) AppendSnapshot(_ context.Context, s *domain.DailyMetricsSnapshot) error {
	v := r.view()
	v.mu.Lock()
	defer v.mu.Unlock()

	st := v.st()
	day := domain.DateOf(s.ReportDate)
	for _, existing := range st.snapshots {
		if existing.UserID == s.UserID && existing.ReportDate.Equal(day) {
			return domain.ErrAlreadySettled.WithKey(s.UserID + "@" + day.Format(domain.DateLayout))
		}
	}
	cp := *s
	cp.ReportDate = day
	st.snapshots = append(st.snapshots, &cp)
	return nil
}

func (r *memoryMetrics) ListSnapshots(_ context.Context, userID string, limit int) ([]*domain.DailyMetricsSnapshot, error) {
	v := r.view()
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := []*domain.DailyMetricsSnapshot{}
	for _, s := range v.st().snapshots {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ReportDate.After(out[j].ReportDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func copyHabit(h *domain.TrackedHabit) *domain.TrackedHabit {
	cp := *h
	cp.LastSlipAt = copyTime(h.LastSlipAt)
	return &cp
}

func copyReport(r *domain.DailyReport) *domain.DailyReport {
	cp := *r
	cp.Habits = nil
	return &cp
}

func copyHabitReport(r *domain.DailyHabitReport) *domain.DailyHabitReport {
	cp := *r
	if r.Value != nil {
		cp.Value = append([]byte(nil), r.Value...)
	}
	if r.Outcome != nil {
		o := *r.Outcome
		cp.Outcome = &o
	}
	cp.SettledAt = copyTime(r.SettledAt)
	return &cp
}
