package config

// applyOperationDefaults applies global defaults to operation-specific configuration
func (c *Config) applyOperationDefaults(opCfg *OperationAIConfig) {
	if opCfg.Provider == "" {
		opCfg.Provider = c.AI.Provider
	}
	if opCfg.Model == "" {
		opCfg.Model = c.AI.Model
	}
	if opCfg.Timeout == nil {
		opCfg.Timeout = &c.AI.Timeout
	}
	if opCfg.APIKey == "" {
		opCfg.APIKey = c.AI.APIKey
	}
	if opCfg.MaxRetries == nil {
		opCfg.MaxRetries = &c.AI.MaxRetries
	}
	if opCfg.Temperature == nil {
		opCfg.Temperature = &c.AI.Temperature
	}
	// UseSystemPrompts: apply global default only if not explicitly set
	if opCfg.UseSystemPrompts == nil {
		opCfg.UseSystemPrompts = &c.AI.UseSystemPrompts
	}
}

// GetSuggestConfig returns the AI configuration for suggestion generation
// with fallback to the global config
func (c *Config) GetSuggestConfig() OperationAIConfig {
	config := c.AI.Suggest

	c.applyOperationDefaults(&config)

	prompts := &config.CustomPrompts
	global := c.AI.CustomPrompts
	if prompts.SystemPrompt == "" {
		prompts.SystemPrompt = global.SystemPrompt
	}
	if prompts.UserPrompt == "" {
		prompts.UserPrompt = global.UserPrompt
	}
	if prompts.SystemPromptFile == "" {
		prompts.SystemPromptFile = global.SystemPromptFile
	}
	if prompts.UserPromptFile == "" {
		prompts.UserPromptFile = global.UserPromptFile
	}

	return config
}
