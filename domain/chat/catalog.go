package chat

import (
	"fmt"
	"strings"
)

// ModelAlias maps a name accepted by the API to the value passed to the CLI's
// --model flag. Unlisted aliases resolve but are hidden from /v1/models.
type ModelAlias struct {
	ID       string `yaml:"id" json:"id"`
	CLIModel string `yaml:"cli_model" json:"cli_model"`
	Listed   bool   `yaml:"listed" json:"listed"`
}

const (
	DefaultModelAlias = "claude-sonnet-4"
	modelOwner        = "anthropic-claude-code"
	modelCreated      = 1678900000
)

// DefaultModelAliases returns the built-in alias table. Full CLI model ids are
// accepted as their own aliases.
func DefaultModelAliases() []ModelAlias {
	listed := []ModelAlias{
		{ID: "claude-sonnet-4", CLIModel: "claude-sonnet-4-20250514", Listed: true},
		{ID: "claude-opus-4", CLIModel: "claude-opus-4-20250514", Listed: true},
		{ID: "claude-opus-4.1", CLIModel: "claude-opus-4-1-20250805", Listed: true},
		{ID: "claude-sonnet-3.7", CLIModel: "claude-3-7-sonnet-20250219", Listed: true},
		{ID: "claude-haiku-3.5", CLIModel: "claude-3-5-haiku-20241022", Listed: true},
	}
	aliases := make([]ModelAlias, 0, len(listed)*2)
	aliases = append(aliases, listed...)
	for _, a := range listed {
		aliases = append(aliases, ModelAlias{ID: a.CLIModel, CLIModel: a.CLIModel})
	}
	return aliases
}

// Catalog resolves model aliases. It is immutable after construction and safe
// for concurrent use.
type Catalog struct {
	aliases      []ModelAlias
	byID         map[string]ModelAlias
	defaultAlias string
}

// NewCatalog builds a catalog. Later entries override earlier ones with the
// same id, keeping the position of the first.
func NewCatalog(aliases []ModelAlias, defaultAlias string) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]ModelAlias, len(aliases))}
	for _, a := range aliases {
		a.ID = strings.TrimSpace(a.ID)
		a.CLIModel = strings.TrimSpace(a.CLIModel)
		if a.ID == "" || a.CLIModel == "" {
			return nil, fmt.Errorf("model alias %q: id and cli_model are required", a.ID)
		}
		if _, exists := c.byID[a.ID]; exists {
			for i := range c.aliases {
				if c.aliases[i].ID == a.ID {
					c.aliases[i] = a
				}
			}
		} else {
			c.aliases = append(c.aliases, a)
		}
		c.byID[a.ID] = a
	}

	if defaultAlias == "" {
		defaultAlias = DefaultModelAlias
	}
	if _, ok := c.byID[defaultAlias]; !ok {
		return nil, fmt.Errorf("default model %q is not in the catalog", defaultAlias)
	}
	c.defaultAlias = defaultAlias
	return c, nil
}

// DefaultAlias returns the alias used when a request names no model
func (c *Catalog) DefaultAlias() string {
	return c.defaultAlias
}

// Resolve looks up an alias. An empty alias resolves to the default.
func (c *Catalog) Resolve(alias string) (ModelAlias, error) {
	if alias == "" {
		alias = c.defaultAlias
	}
	a, ok := c.byID[alias]
	if !ok {
		return ModelAlias{}, fmt.Errorf("%w: model %q is not supported", ErrInvalidModel, alias)
	}
	return a, nil
}

// Models returns the listed aliases as OpenAI model objects, in catalog order
func (c *Catalog) Models() []Model {
	models := make([]Model, 0, len(c.aliases))
	for _, a := range c.aliases {
		if !a.Listed {
			continue
		}
		models = append(models, Model{
			ID:         a.ID,
			Object:     ObjectModel,
			Created:    modelCreated,
			OwnedBy:    modelOwner,
			Permission: []string{},
			Root:       a.ID,
		})
	}
	return models
}

// Aliases returns every alias, listed or not, in catalog order
func (c *Catalog) Aliases() []ModelAlias {
	out := make([]ModelAlias, len(c.aliases))
	copy(out, c.aliases)
	return out
}
