package model

import (
	"log"
	"os"
	"strings"

	"github.com/aymerick/raymond"
)

// GetAllEnv returns the process environment as a template context.
func GetAllEnv() map[string]string {
	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}
	return envMap
}

// RenderTemplate safely parses and executes a Raymond template.
// If parsing or execution fails, it returns the input string unchanged.
func RenderTemplate(input string, context map[string]string) string {
	tmpl, err := raymond.Parse(input)
	if err != nil {
		log.Printf("Failed to parse template: %v", err)
		return input
	}

	output, err := tmpl.Exec(context)
	if err != nil {
		log.Printf("Failed to execute template: %v", err)
		return input
	}

	return output
}

// ExpandConfig renders every templated string field in the agent config
// with the merged environment and config variables.
func (c *AgentConfig) ExpandConfig() {
	ctx := GetAllEnv()
	for k, v := range c.Variables {
		ctx[k] = RenderTemplate(v, ctx)
	}
	c.SystemPrompt = RenderTemplate(c.SystemPrompt, ctx)
	c.Command = RenderTemplate(c.Command, ctx)
	for i := range c.Providers {
		p := &c.Providers[i]
		p.Token = RenderTemplate(p.Token, ctx)
		p.Secret = RenderTemplate(p.Secret, ctx)
		p.Model = RenderTemplate(p.Model, ctx)
		p.BaseURL = RenderTemplate(p.BaseURL, ctx)
	}
}
