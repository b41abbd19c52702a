package config

import (
	"campusledger/internal/domain"
	"campusledger/internal/fine"
	"campusledger/internal/policy"
)

// PolicyConfig maps the YAML policy section onto the policy engine's
// per-kind parameters.
func (c *Config) PolicyConfig() policy.Config {
	return policy.Config{Kinds: map[domain.PoolKind]policy.KindConfig{
		domain.PoolKindRoom:      kindConfig(c.Policies.Room),
		domain.PoolKindBookTitle: kindConfig(c.Policies.BookTitle),
		domain.PoolKindExamSeat:  kindConfig(c.Policies.ExamSeat),
	}}
}

func kindConfig(k KindPolicyConfig) policy.KindConfig {
	return policy.KindConfig{
		MaxConcurrent:        k.MaxConcurrent,
		MaxRenewals:          k.MaxRenewals,
		LoanPeriodDays:       k.LoanPeriodDays,
		RenewalExtensionDays: k.RenewalExtensionDays,
	}
}

// RateTable maps the YAML fines section onto the calculator's rate table.
func (c *Config) RateTable() fine.RateTable {
	return fine.RateTable{DailyRatePaise: map[domain.PoolKind]int64{
		domain.PoolKindBookTitle: c.Fines.BookDailyRatePaise,
		domain.PoolKindRoom:      c.Fines.RoomDailyRatePaise,
		domain.PoolKindExamSeat:  c.Fines.ExamDailyRatePaise,
	}}
}
