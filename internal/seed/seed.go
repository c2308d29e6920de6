// Package seed provides the starter catalogue of tasks and rewards given to
// a new family.
package seed

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/kidquest/internal/model"
	"github.com/dukerupert/kidquest/internal/period"
)

//go:embed catalogue.yaml
var defaultCatalogue []byte

type Catalogue struct {
	Tasks   []TaskDef   `yaml:"tasks"`
	Rewards []RewardDef `yaml:"rewards"`
}

type TaskDef struct {
	Text       string   `yaml:"text"`
	Points     int      `yaml:"points"`
	TimeOfDay  string   `yaml:"timeOfDay"`
	AssignedTo []string `yaml:"assignedTo"`
}

type RewardDef struct {
	Text string `yaml:"text"`
	Cost int    `yaml:"cost"`
}

// Default returns the embedded catalogue.
func Default() Catalogue {
	c, err := Parse(defaultCatalogue)
	if err != nil {
		panic(fmt.Sprintf("seed: embedded catalogue: %v", err))
	}
	return c
}

// Load reads a catalogue from path, or returns Default when path is empty.
func Load(path string) (Catalogue, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalogue{}, fmt.Errorf("seed: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return Catalogue{}, fmt.Errorf("seed: %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML catalogue.
func Parse(data []byte) (Catalogue, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Catalogue{}, fmt.Errorf("catalogue is empty")
	}
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalogue{}, fmt.Errorf("decode catalogue: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalogue{}, err
	}
	return c, nil
}

func (c Catalogue) Validate() error {
	for i, t := range c.Tasks {
		if strings.TrimSpace(t.Text) == "" {
			return fmt.Errorf("task %d: text is required", i)
		}
		if t.Points <= 0 {
			return fmt.Errorf("task %q: points must be positive", t.Text)
		}
		if _, err := period.Parse(t.TimeOfDay); err != nil {
			return fmt.Errorf("task %q: %w", t.Text, err)
		}
	}
	for i, r := range c.Rewards {
		if strings.TrimSpace(r.Text) == "" {
			return fmt.Errorf("reward %d: text is required", i)
		}
		if r.Cost <= 0 {
			return fmt.Errorf("reward %q: cost must be positive", r.Text)
		}
	}
	return nil
}

// ModelTasks converts the catalogue into model tasks without IDs.
func (c Catalogue) ModelTasks() []model.Task {
	out := make([]model.Task, 0, len(c.Tasks))
	for _, t := range c.Tasks {
		p, _ := period.Parse(t.TimeOfDay)
		assigned := t.AssignedTo
		if assigned == nil {
			assigned = []string{}
		}
		out = append(out, model.Task{Text: t.Text, Points: t.Points, TimeOfDay: p, AssignedTo: assigned})
	}
	return out
}

func (c Catalogue) ModelRewards() []model.Reward {
	out := make([]model.Reward, 0, len(c.Rewards))
	for _, r := range c.Rewards {
		out = append(out, model.Reward{Text: r.Text, Cost: r.Cost})
	}
	return out
}
