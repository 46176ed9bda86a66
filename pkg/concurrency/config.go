// Package concurrency sizes runner worker pools for the host they run on
// and guards outbound publishing with a circuit breaker.
package concurrency

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
)

// EnvRunnerWorkers overrides the detected runner worker count
const EnvRunnerWorkers = "FOREACH_RUNNER_WORKERS"

// ConfigSource indicates where the configuration came from
type ConfigSource string

const (
	ConfigSourceEnvVar     ConfigSource = "environment_variable"
	ConfigSourceAutoDetect ConfigSource = "auto_detect"
)

// Config holds concurrency configuration parameters
type Config struct {
	RunnerWorkers int
	Source        ConfigSource
	IsKubernetes  bool
	EffectiveCPUs int
}

// LoadConfig loads concurrency configuration with priority: env vars > auto-detection
func LoadConfig() Config {
	config := Config{
		IsKubernetes:  isKubernetes(),
		EffectiveCPUs: runtime.GOMAXPROCS(0),
	}

	if workers := getEnvInt(EnvRunnerWorkers, 0); workers > 0 {
		config.RunnerWorkers = workers
		config.Source = ConfigSourceEnvVar
		return config
	}
	config.RunnerWorkers = defaultRunnerWorkers(config.IsKubernetes, config.EffectiveCPUs)
	config.Source = ConfigSourceAutoDetect
	return config
}

// isKubernetes detects if the application is running in Kubernetes
func isKubernetes() bool {
	return os.Getenv("KUBERNETES_SERVICE_HOST") != ""
}

// defaultRunnerWorkers is conservative inside Kubernetes, where the CPU
// count already reflects the container quota.
func defaultRunnerWorkers(isK8s bool, cpus int) int {
	if isK8s {
		return max(cpus, 4)
	}
	return max(cpus*2, 8)
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// String returns a formatted string representation of the config
func (c Config) String() string {
	return fmt.Sprintf("Config{RunnerWorkers: %d, IsK8s: %t, CPUs: %d, Source: %s}",
		c.RunnerWorkers, c.IsKubernetes, c.EffectiveCPUs, c.Source)
}
