package repository

import (
	"context"
	"sync"

	"github.com/comitanigiacomo/kanso-discipline-engine/internal/core/domain"
)

var _ domain.ConfigProvider = (*StaticConfigProvider)(nil)

// StaticConfigProvider serves coefficients loaded at startup. Set swaps them
// atomically so a running engine picks up new values on its next run.
type StaticConfigProvider struct {
	mu         sync.RWMutex
	coeffs     domain.Coefficients
	thresholds domain.ThresholdSet
}

func NewStaticConfigProvider(c domain.Coefficients, th domain.ThresholdSet) *StaticConfigProvider {
	return &StaticConfigProvider{coeffs: c, thresholds: copyThresholds(th)}
}

func (p *StaticConfigProvider) GetCoefficients(_ context.Context) (domain.Coefficients, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.coeffs.Validate(); err != nil {
		return domain.Coefficients{}, err
	}
	return p.coeffs, nil
}

func (p *StaticConfigProvider) GetThresholds(_ context.Context) (domain.ThresholdSet, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copyThresholds(p.thresholds), nil
}

func (p *StaticConfigProvider) Set(c domain.Coefficients, th domain.ThresholdSet) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.coeffs = c
	if th != nil {
		p.thresholds = copyThresholds(th)
	}
}

func copyThresholds(th domain.ThresholdSet) domain.ThresholdSet {
	out := make(domain.ThresholdSet, len(th))
	for k, v := range th {
		out[domain.NormalizeHabitKey(k)] = v
	}
	return out
}
