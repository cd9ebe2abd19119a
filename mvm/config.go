package mvm

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mark3labs/x402-movement"
)

const (
	// FacilitatorPath is appended to FRONTEND_URL to reach the settlement service.
	FacilitatorPath = "/api/facilitator"

	dockerFacilitatorURL = "http://host.docker.internal:3000" + FacilitatorPath
	localFacilitatorURL  = "http://localhost:3000" + FacilitatorPath
	dockerEnvFile        = "/.dockerenv"
)

// Environment abstracts the process environment for configuration loading.
type Environment struct {
	// Getenv returns the value of an environment variable, or "".
	Getenv func(string) string
	// InContainer reports whether the process runs inside a container.
	InContainer func() bool
}

// OSEnvironment reads the real process environment. A container is detected
// by the presence of /.dockerenv.
func OSEnvironment() Environment {
	return Environment{
		Getenv: os.Getenv,
		InContainer: func() bool {
			_, err := os.Stat(dockerEnvFile)
			return err == nil
		},
	}
}

func (e Environment) get(key string) string {
	if e.Getenv == nil {
		return ""
	}
	return strings.TrimSpace(e.Getenv(key))
}

// ResolveFacilitatorURL picks the settlement service URL. Precedence: the
// explicit override, FACILITATOR_URL, FRONTEND_URL plus FacilitatorPath, the
// Docker host alias when running in a container, and finally localhost.
func ResolveFacilitatorURL(override string, env Environment) string {
	if override = strings.TrimSpace(override); override != "" {
		return strings.TrimRight(override, "/")
	}
	if u := env.get("FACILITATOR_URL"); u != "" {
		return strings.TrimRight(u, "/")
	}
	if u := env.get("FRONTEND_URL"); u != "" {
		return strings.TrimRight(u, "/") + FacilitatorPath
	}
	if env.InContainer != nil && env.InContainer() {
		return dockerFacilitatorURL
	}
	return localFacilitatorURL
}

// Settings is the gateway configuration read from the environment.
type Settings struct {
	Network        string
	RPCURL         string
	FacilitatorURL string
	ChainID        uint8
	PayTo          string
}

// LoadSettings reads MOVEMENT_NETWORK, MOVEMENT_RPC_URL, MOVEMENT_CHAIN_ID,
// MOVEMENT_PAY_TO (or NEXT_PUBLIC_MOVEMENT_PAY_TO) and the facilitator
// variables. Unset values fall back to the network's defaults.
func LoadSettings(env Environment) (Settings, error) {
	s := Settings{Network: env.get("MOVEMENT_NETWORK")}
	if s.Network == "" {
		s.Network = x402.MovementMainnet.ID
	}
	network, ok := x402.LookupNetwork(s.Network)
	if !ok {
		return Settings{}, fmt.Errorf("MOVEMENT_NETWORK: %w: %s", x402.ErrUnsupportedNetwork, s.Network)
	}

	s.RPCURL = env.get("MOVEMENT_RPC_URL")
	if s.RPCURL == "" {
		s.RPCURL = network.RPCURL
	}

	s.ChainID = network.ChainID
	if raw := env.get("MOVEMENT_CHAIN_ID"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 8)
		if err != nil {
			return Settings{}, fmt.Errorf("MOVEMENT_CHAIN_ID: %w", err)
		}
		s.ChainID = uint8(id)
	}

	s.PayTo = env.get("MOVEMENT_PAY_TO")
	if s.PayTo == "" {
		s.PayTo = env.get("NEXT_PUBLIC_MOVEMENT_PAY_TO")
	}

	s.FacilitatorURL = ResolveFacilitatorURL("", env)
	return s, nil
}
