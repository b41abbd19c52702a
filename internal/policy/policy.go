// Package policy is the side-effect-free rule evaluator consulted before any
// reservation is committed. Rules see a snapshot of the target pool and the
// owner's current holdings and either approve or return a *domain.PolicyError
// with a stable reason code. No rule touches the database; the pool manager
// loads the snapshot inside its transaction and the rules stay unit-testable
// in isolation.
package policy

import (
	"time"

	"campusledger/internal/domain"
)

// Request is a proposed reservation plus the state it is judged against.
type Request struct {
	Pool     *domain.Pool
	OwnerID  int64
	Now      time.Time
	Existing []domain.Holding // owner's ACTIVE holdings of the same kind
}

type Rule interface {
	Check(req Request) error
}

// Set evaluates rules in order and returns the first rejection.
type Set struct {
	rules []Rule
}

func NewSet(rules ...Rule) Set {
	return Set{rules: rules}
}

func (s Set) Check(req Request) error {
	for _, r := range s.rules {
		if err := r.Check(req); err != nil {
			return err
		}
	}
	return nil
}

// KindConfig parameterizes one resource kind. Zero values mean "no limit"
// for MaxConcurrent and "no due date" for LoanPeriodDays.
type KindConfig struct {
	MaxConcurrent        int32
	MaxRenewals          int32
	LoanPeriodDays       int32
	RenewalExtensionDays int32
}

// Config holds the per-kind parameters. New resource kinds plug in here; the
// transactional core never branches on kind.
type Config struct {
	Kinds map[domain.PoolKind]KindConfig
}

func (c Config) ForKind(kind domain.PoolKind) KindConfig {
	return c.Kinds[kind]
}

// Default mirrors the institutional rules: one room per student per academic
// year, five concurrent book loans with two renewals over 14-day periods,
// and exam seats limited only by per-exam uniqueness and the registration
// window.
func Default() Config {
	return Config{Kinds: map[domain.PoolKind]KindConfig{
		domain.PoolKindRoom: {
			MaxConcurrent: 1,
		},
		domain.PoolKindBookTitle: {
			MaxConcurrent:        5,
			MaxRenewals:          2,
			LoanPeriodDays:       14,
			RenewalExtensionDays: 14,
		},
		domain.PoolKindExamSeat: {},
	}}
}

// RulesFor assembles the rule set for a kind. Every kind gets uniqueness and
// window enforcement; the quota rule is added when the kind caps concurrent
// holdings.
func (c Config) RulesFor(kind domain.PoolKind) Set {
	kc := c.ForKind(kind)
	rules := []Rule{UniquenessRule{}, WindowRule{}}
	if kc.MaxConcurrent > 0 {
		rules = append(rules, QuotaRule{Max: kc.MaxConcurrent})
	}
	return NewSet(rules...)
}
