package zatca

import (
	"fmt"
	"strings"
)

type Environment int

const (
	DeveloperPortal Environment = iota
	Simulation
	Core
)

const gatewayHost = "https://gw-fatoora.zatca.gov.sa/e-invoicing"

func (e *Environment) BaseURL() string {
	switch *e {
	case Core:
		return gatewayHost + "/core"
	case Simulation:
		return gatewayHost + "/simulation"
	case DeveloperPortal:
		return gatewayHost + "/developer-portal"
	}
	panic("Invalid environment")
}

// OnboardingURL is the compliance CSID endpoint of the environment.
func (e *Environment) OnboardingURL() string {
	return e.BaseURL() + "/compliance"
}

// ProductionCSIDURL is the production CSID endpoint of the environment.
func (e *Environment) ProductionCSIDURL() string {
	return e.BaseURL() + "/production/csids"
}

func (e *Environment) Name() string {
	switch *e {
	case Core:
		return "core"
	case Simulation:
		return "simulation"
	case DeveloperPortal:
		return "developer-portal"
	}
	panic("Invalid environment")
}

func (e *Environment) UnmarshalText(text []byte) error {
	val := strings.ToLower(strings.TrimSpace(string(text)))

	switch val {
	case "core", "prod", "production":
		*e = Core
	case "simulation", "sim":
		*e = Simulation
	case "developer-portal", "sandbox", "dev":
		*e = DeveloperPortal
	default:
		return fmt.Errorf("invalid ZATCA_ENV: %q (allowed: developer-portal, simulation, core)", val)
	}
	return nil
}
