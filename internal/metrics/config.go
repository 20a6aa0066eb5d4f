package metrics

import "codeberg.org/mutker/stepperctl/internal/errors"

const defaultNamespace = "stepperctl"

type Config struct {
	Namespace string
	Enabled   bool
}

func DefaultConfig() Config {
	return Config{
		Namespace: defaultNamespace,
		Enabled:   true,
	}
}

func (c Config) Validate() error {
	if c.Enabled && c.Namespace == "" {
		return errors.New().WithData(ErrInvalidConfig, "empty metrics namespace")
	}

	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}

	return 0
}
