// Package generator produces synthetic evaluation fixtures from YAML
// scenario templates. Given the same seed and config it emits identical
// output.
package generator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/bytedance/sonic"

	"github.com/zapmyco/home-agent-eval/logger"
	"github.com/zapmyco/home-agent-eval/model"
)

var defaultEntities = []string{
	"light.living_room",
	"light.bedroom",
	"switch.kitchen",
	"climate.living_room",
	"cover.garage_door",
	"media_player.tv",
}

// Run generates fixtures from the config and writes one JSONL file under
// outputDir. With dryRun set, the fixtures go to stdout instead.
func Run(configPath, outputDir string, dryRun bool) error {
	cfg, err := ParseGeneratorConfig(configPath)
	if err != nil {
		return err
	}

	logger.Logger.Info("Generator config loaded",
		"scenarios", len(cfg.Scenarios),
		"count", cfg.Count,
		"seed", cfg.Seed,
	)

	cases, err := Generate(cfg)
	if err != nil {
		return err
	}

	var sb strings.Builder
	for _, tc := range cases {
		line, err := sonic.MarshalString(tc)
		if err != nil {
			return fmt.Errorf("failed to encode fixture %q: %w", tc.ID, err)
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	if dryRun {
		fmt.Print(sb.String())
		return nil
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %q: %w", outputDir, err)
	}
	outFile := filepath.Join(outputDir, cfg.OutputFile)
	if err := os.WriteFile(outFile, []byte(sb.String()), logger.FilePermission); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	fmt.Printf("Generated %d fixtures: %s\n", len(cases), outFile)
	return nil
}

// Generate builds the fixture list in memory.
func Generate(cfg *GeneratorConfig) ([]model.TestCase, error) {
	faker := gofakeit.New(cfg.Seed)

	cases := make([]model.TestCase, 0, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		scenario := cfg.Scenarios[i%len(cfg.Scenarios)]
		tc, err := buildCase(faker, cfg, scenario, i)
		if err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	if err := model.ValidateTestCases("generator", cases); err != nil {
		return nil, err
	}
	return cases, nil
}

func buildCase(faker *gofakeit.Faker, cfg *GeneratorConfig, scenario Scenario, index int) (model.TestCase, error) {
	entities := scenario.Entities
	if len(entities) == 0 {
		entities = defaultEntities
	}
	entity := entities[faker.Number(0, len(entities)-1)]

	ctx := map[string]string{
		"entity":      entity,
		"entity_name": friendlyName(entity),
		"room":        faker.RandomString([]string{"living room", "bedroom", "kitchen", "garage"}),
		"temperature": fmt.Sprintf("%d", faker.Number(18, 30)),
		"brightness":  fmt.Sprintf("%d", faker.Number(10, 100)),
	}
	for k, v := range cfg.Variables {
		ctx[k] = v
	}

	query := model.RenderTemplate(scenario.Query, ctx)
	args, err := renderArguments(scenario.Arguments, ctx)
	if err != nil {
		return model.TestCase{}, err
	}

	// Deterministic id per seed: the uuid comes from the seeded faker.
	id := fmt.Sprintf("gen_%03d_%s", index, faker.UUID()[:8])

	return model.TestCase{
		ID:          id,
		Category:    scenario.Category,
		Description: fmt.Sprintf("Generated from scenario %q", scenario.Category),
		Difficulty:  scenario.Difficulty,
		Tags:        scenario.Tags,
		Input:       model.TestInput{Text: query},
		MockContext: mockContextFor(entity),
		Expected: []model.ExpectedCall{{
			Name:      scenario.Tool,
			Arguments: args,
		}},
	}, nil
}

// renderArguments deep-copies the argument tree, rendering templated
// strings and converting numeric placeholders that render to numbers.
func renderArguments(args map[string]any, ctx map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for k, v := range args {
		rendered, err := renderValue(v, ctx)
		if err != nil {
			return nil, err
		}
		out[k] = rendered
	}
	return out, nil
}

func renderValue(v any, ctx map[string]string) (any, error) {
	switch val := v.(type) {
	case string:
		rendered := model.RenderTemplate(val, ctx)
		if rendered != val {
			// Placeholders that render to bare numbers become numbers, so
			// generated expectations compare against numeric agent output.
			var num float64
			if _, err := fmt.Sscanf(rendered, "%g", &num); err == nil && fmt.Sprintf("%g", num) == rendered {
				return num, nil
			}
		}
		return rendered, nil
	case map[string]any:
		return renderArguments(val, ctx)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			rendered, err := renderValue(item, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	default:
		return v, nil
	}
}

func friendlyName(entityID string) string {
	object := entityID
	if i := strings.Index(entityID, "."); i >= 0 {
		object = entityID[i+1:]
	}
	return strings.ReplaceAll(object, "_", " ")
}

func mockContextFor(entity string) map[string]any {
	return map[string]any{
		"device_states": []any{
			map[string]any{
				"entity_id": entity,
				"state":     "off",
				"attributes": map[string]any{
					"friendly_name": friendlyName(entity),
				},
			},
		},
	}
}
