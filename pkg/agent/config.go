package agent

import (
	"path/filepath"

	"github.com/ethanbaker/melissa/pkg/utils"
)

// LoadAgentConfig loads configuration for a specific agent
// Values from the agent-specific .env.<name> file next to globalFile win over
// globalFile itself
func LoadAgentConfig(agentName, globalFile string) *utils.Config {
	agentFile := filepath.Join(filepath.Dir(globalFile), ".env."+agentName)
	return utils.NewConfigFromEnv(agentFile, globalFile)
}
