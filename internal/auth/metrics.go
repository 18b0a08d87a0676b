// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vortice Contributors

package auth

import "github.com/prometheus/client_golang/prometheus"

// Label values for the revocation cause and swept token kind.
const (
	RevokeCauseLogout        = "logout"
	RevokeCauseRotation      = "rotation"
	RevokeCausePasswordReset = "password_reset"

	TokenKindRefresh = "refresh"
	TokenKindReset   = "reset"
)

// Login outcome label values.
const (
	LoginOutcomeSuccess            = "success"
	LoginOutcomeInvalidCredentials = "invalid_credentials"
	LoginOutcomeLocked             = "locked"
	LoginOutcomeDisabled           = "disabled"
)

// Metrics contains Prometheus metrics for the authentication subsystem.
type Metrics struct {
	Logins      *prometheus.CounterVec
	Lockouts    prometheus.Counter
	Rotations   prometheus.Counter
	Revocations *prometheus.CounterVec
	SweptTokens *prometheus.CounterVec
}

// NewMetrics creates authentication metrics and registers them with reg.
// A nil reg skips registration; counters still work, they just aren't scraped.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vortice_logins_total",
				Help: "Total number of login attempts by outcome",
			},
			[]string{"outcome"},
		),
		Lockouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vortice_account_lockouts_total",
				Help: "Total number of accounts locked after repeated failed logins",
			},
		),
		Rotations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "vortice_refresh_rotations_total",
				Help: "Total number of refresh token rotations",
			},
		),
		Revocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vortice_token_revocations_total",
				Help: "Total number of refresh token revocations by cause",
			},
			[]string{"cause"},
		),
		SweptTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vortice_swept_tokens_total",
				Help: "Total number of expired tokens removed by the sweeper by kind",
			},
			[]string{"kind"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Logins, m.Lockouts, m.Rotations, m.Revocations, m.SweptTokens)
	}

	return m
}
