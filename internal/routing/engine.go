// Package routing decides where a patient goes once verification is done.
package routing

import (
	"fmt"
	"strings"
)

type Destination string

const (
	DestinationAuditOffice    Destination = "AUDIT_OFFICE"
	DestinationDocumentWindow Destination = "DOCUMENT_WINDOW"
	DestinationLaboratory     Destination = "LABORATORY"
	DestinationPharmacy       Destination = "PHARMACY"
	DestinationRadiology      Destination = "RADIOLOGY"
	DestinationBilling        Destination = "BILLING"
	DestinationConsultation   Destination = "CONSULTATION"
	DestinationWaitingRoom    Destination = "WAITING_ROOM"
)

type Priority string

const (
	PriorityUrgent   Priority = "URGENT"
	PriorityPriority Priority = "PRIORITY"
	PriorityNormal   Priority = "NORMAL"
)

// Rule names which table entry produced a decision.
type Rule string

const (
	RuleCriticalAlert Rule = "critical_alert"
	RuleHighRisk      Rule = "high_risk"
	RuleTerminalType  Rule = "terminal_type"
	RuleService       Rule = "requested_service"
	RuleDefault       Rule = "default"
)

type Input struct {
	TerminalType     string
	RequestedService string
	RiskScore        float64
	HasCriticalAlert bool
}

type Decision struct {
	Destination Destination `json:"destination"`
	Priority    Priority    `json:"priority"`
	Rule        Rule        `json:"rule"`
	Reason      string      `json:"reason"`
}

type Config struct {
	HighRiskThreshold float64                `mapstructure:"high_risk_threshold" validate:"gt=0,lte=1"`
	TerminalRoutes    map[string]Destination `mapstructure:"terminal_routes"`
	ServiceRoutes     map[string]Destination `mapstructure:"service_routes"`
}

func DefaultConfig() Config {
	return Config{
		HighRiskThreshold: 0.8,
		TerminalRoutes: map[string]Destination{
			"LAB_KIOSK":       DestinationLaboratory,
			"PHARMACY_KIOSK":  DestinationPharmacy,
			"RADIOLOGY_KIOSK": DestinationRadiology,
		},
		ServiceRoutes: map[string]Destination{
			"laboratory":   DestinationLaboratory,
			"pharmacy":     DestinationPharmacy,
			"radiology":    DestinationRadiology,
			"billing":      DestinationBilling,
			"consultation": DestinationConsultation,
		},
	}
}

func (c Config) Validate() error {
	if c.HighRiskThreshold <= 0 || c.HighRiskThreshold > 1 {
		return fmt.Errorf("routing high risk threshold must be in (0,1], got %.2f", c.HighRiskThreshold)
	}
	return nil
}

// Engine evaluates the routing table in fixed priority order. First match
// wins.
type Engine struct {
	cfg      Config
	terminal map[string]Destination
	service  map[string]Destination
}

func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:      cfg,
		terminal: make(map[string]Destination, len(cfg.TerminalRoutes)),
		service:  make(map[string]Destination, len(cfg.ServiceRoutes)),
	}
	for k, v := range cfg.TerminalRoutes {
		e.terminal[strings.ToUpper(k)] = v
	}
	for k, v := range cfg.ServiceRoutes {
		e.service[strings.ToLower(k)] = v
	}
	return e, nil
}

func (e *Engine) Decide(in Input) Decision {
	if in.HasCriticalAlert {
		return Decision{DestinationAuditOffice, PriorityUrgent, RuleCriticalAlert, "session carries a critical risk alert"}
	}
	if in.RiskScore >= e.cfg.HighRiskThreshold {
		return Decision{DestinationDocumentWindow, PriorityPriority, RuleHighRisk,
			fmt.Sprintf("risk score %.2f at or above %.2f", in.RiskScore, e.cfg.HighRiskThreshold)}
	}
	if dest, ok := e.terminal[strings.ToUpper(strings.TrimSpace(in.TerminalType))]; ok {
		return Decision{dest, PriorityNormal, RuleTerminalType, "terminal " + in.TerminalType}
	}
	if dest, ok := e.service[strings.ToLower(strings.TrimSpace(in.RequestedService))]; ok {
		return Decision{dest, PriorityNormal, RuleService, "requested service " + in.RequestedService}
	}
	return Decision{DestinationWaitingRoom, PriorityNormal, RuleDefault, "no specific route"}
}
