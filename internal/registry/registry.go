package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
)

// ErrUnknownModel is returned when a requested model id is not in the registry.
var ErrUnknownModel = errors.New("unknown model")

// Model is one registry entry, validated at load time. Price is the amount
// debited up front for every generation with this model.
type Model struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Endpoint      string          `json:"endpoint"`
	DefaultWidth  int             `json:"default_width"`
	DefaultHeight int             `json:"default_height"`
	MaxWidth      int             `json:"max_width"`
	MaxHeight     int             `json:"max_height"`
	DefaultSteps  int             `json:"default_steps"`
	MaxSteps      int             `json:"max_steps"`
}

// Registry is the static model catalog. It is immutable after Load, so it is
// safe for concurrent use without locking.
type Registry struct {
	models map[string]Model
	order  []string
}

// Load reads and validates the model catalog from a JSON file. Malformed or
// incomplete entries fail startup rather than surfacing at request time.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read models file %q: %w", path, err)
	}
	var entries []Model
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse models file %q: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("models file %q: no models defined", path)
	}

	r := &Registry{models: make(map[string]Model, len(entries))}
	for _, m := range entries {
		if err := validate(m); err != nil {
			return nil, fmt.Errorf("models file %q: model %q: %w", path, m.ID, err)
		}
		if _, dup := r.models[m.ID]; dup {
			return nil, fmt.Errorf("models file %q: duplicate model id %q", path, m.ID)
		}
		r.models[m.ID] = m
		r.order = append(r.order, m.ID)
	}
	return r, nil
}

func validate(m Model) error {
	switch {
	case m.ID == "":
		return errors.New("missing id")
	case m.Endpoint == "":
		return errors.New("missing endpoint")
	case !m.Price.IsPositive():
		return errors.New("price must be > 0")
	case m.DefaultWidth <= 0 || m.DefaultHeight <= 0:
		return errors.New("default dimensions must be > 0")
	case m.MaxWidth < m.DefaultWidth || m.MaxHeight < m.DefaultHeight:
		return errors.New("max dimensions below defaults")
	case m.DefaultSteps <= 0:
		return errors.New("default_steps must be > 0")
	case m.MaxSteps < m.DefaultSteps:
		return errors.New("max_steps below default_steps")
	}
	return nil
}

// Get returns the model entry for id.
func (r *Registry) Get(id string) (Model, error) {
	m, ok := r.models[id]
	if !ok {
		return Model{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	return m, nil
}

// Has reports whether id is a known model.
func (r *Registry) Has(id string) bool {
	_, ok := r.models[id]
	return ok
}

// List returns all models in file order.
func (r *Registry) List() []Model {
	out := make([]Model, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id])
	}
	return out
}
