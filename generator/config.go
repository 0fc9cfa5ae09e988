package generator

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zapmyco/home-agent-eval/model"
)

// GeneratorConfig is the top-level structure for a generator config file.
type GeneratorConfig struct {
	Count      int               `yaml:"count"`
	Seed       uint64            `yaml:"seed"`
	OutputFile string            `yaml:"output_file"`
	Variables  map[string]string `yaml:"variables,omitempty"`
	Scenarios  []Scenario        `yaml:"scenarios"`
}

// Scenario is one fixture template. Query and string argument values may
// contain {{placeholders}} filled per generated case: {{entity}},
// {{entity_name}}, {{room}}, {{temperature}} and {{brightness}}, plus
// any user variables.
type Scenario struct {
	Category   string         `yaml:"category"`
	Difficulty string         `yaml:"difficulty"`
	Tags       []string       `yaml:"tags,omitempty"`
	Query      string         `yaml:"query"`
	Tool       string         `yaml:"tool"`
	Arguments  map[string]any `yaml:"arguments"`
	Entities   []string       `yaml:"entities,omitempty"`
}

func (c *GeneratorConfig) applyDefaults() {
	if c.Count <= 0 {
		c.Count = 10
	}
	if c.OutputFile == "" {
		c.OutputFile = "generated_fixtures.jsonl"
	}
	for i := range c.Scenarios {
		if c.Scenarios[i].Tool == "" {
			c.Scenarios[i].Tool = "call_service"
		}
		if c.Scenarios[i].Difficulty == "" {
			c.Scenarios[i].Difficulty = "medium"
		}
	}
}

// ParseGeneratorConfig reads and unmarshals a generator config YAML file,
// applying defaults for any omitted settings.
func ParseGeneratorConfig(path string) (*GeneratorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.ConfigErrorf("reading generator config: %v", err)
	}
	var cfg GeneratorConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, model.ConfigErrorf("%s: %v", path, err)
	}
	cfg.applyDefaults()
	if len(cfg.Scenarios) == 0 {
		return nil, model.ConfigErrorf("%s: no scenarios defined", path)
	}
	for i, s := range cfg.Scenarios {
		if s.Query == "" {
			return nil, model.ConfigErrorf("%s: scenario %d has no query", path, i)
		}
		if s.Category == "" {
			return nil, model.ConfigErrorf("%s: scenario %d has no category", path, i)
		}
	}
	return &cfg, nil
}
