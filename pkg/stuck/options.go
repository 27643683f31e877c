package stuck

import "github.com/antibyte/stuck/pkg/configuration"

// OptionsFromConfig reads the [Interpreter] section.
func OptionsFromConfig() Options {
	return Options{
		MaxCallDepth: configuration.GetInt("Interpreter", "max_call_depth", 0),
		MaxSteps:     configuration.GetInt64("Interpreter", "max_steps", 0),
		StrictBlocks: configuration.GetBool("Interpreter", "strict_blocks", false),
	}
}
