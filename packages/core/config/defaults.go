package config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		DefaultEnvironment: "dev",
		Timeout:            30000, // 30 seconds
		MaxRedirects:       10,
		Reporters:          []string{"console"},
	}
}

// IsDefault returns true if the config matches defaults
func (c *Config) IsDefault() bool {
	defaults := DefaultConfig()
	return c.BaseURL == defaults.BaseURL &&
		c.DefaultEnvironment == defaults.DefaultEnvironment &&
		len(c.Environments) == 0 &&
		c.Timeout == defaults.Timeout &&
		c.RunTimeout == defaults.RunTimeout &&
		c.RateLimit == defaults.RateLimit &&
		c.Seed == defaults.Seed &&
		c.GetFollowRedirects() == defaults.GetFollowRedirects() &&
		c.MaxRedirects == defaults.MaxRedirects &&
		c.GetValidateSSL() == defaults.GetValidateSSL() &&
		c.Proxy == defaults.Proxy &&
		len(c.Headers) == 0 &&
		len(c.Reporters) == 1 && c.Reporters[0] == "console" &&
		c.OutputDir == defaults.OutputDir &&
		c.History == defaults.History &&
		c.GetBail() == defaults.GetBail() &&
		c.GetVerbose() == defaults.GetVerbose() &&
		c.GetNoColor() == defaults.GetNoColor()
}
