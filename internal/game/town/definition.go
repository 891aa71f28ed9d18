package town

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/porttown/internal/game/cargo"
	"github.com/cory-johannsen/porttown/internal/game/pricing"
)

// Demand is a town's standing need for one good. Immutable after setup.
type Demand struct {
	Good          string `yaml:"good"`
	IdealQuantity int    `yaml:"ideal_quantity"`
	// ConsumptionRatePerPopulation is consumed per resident per consumption tick.
	ConsumptionRatePerPopulation float64 `yaml:"consumption_rate_per_population"`
	// Essential shortages penalize economy and population.
	Essential bool `yaml:"essential"`
}

// Tuning holds every numeric knob of a town's economy.
type Tuning struct {
	EconomyPoints           float64 `yaml:"economy_points"`
	EconomyGrowthRate       float64 `yaml:"economy_growth_rate"`
	EconomyDecayRate        float64 `yaml:"economy_decay_rate"`
	MinEconomy              float64 `yaml:"min_economy"`
	MaxEconomy              float64 `yaml:"max_economy"`
	CurrencyPerEconomyPoint float64 `yaml:"currency_per_economy_point"`

	Population           int           `yaml:"population"`
	PopulationGrowthRate float64       `yaml:"population_growth_rate"`
	PopulationDecayRate  float64       `yaml:"population_decay_rate"`
	MinPopulation        int           `yaml:"min_population"`
	MaxPopulation        int           `yaml:"max_population"`
	PopulationInterval   time.Duration `yaml:"population_interval"`

	InvestmentInterval time.Duration `yaml:"investment_interval"`
	BaseReturnRate     float64       `yaml:"base_return_rate"`
	ReturnMultiplier   float64       `yaml:"return_multiplier"`

	ProductionPerEconomyPoint float64       `yaml:"production_per_economy_point"`
	ProductionPerPopulation   float64       `yaml:"production_per_population"`
	UnproducibleMultiplier    float64       `yaml:"unproducible_multiplier"`
	SupplyInterval            time.Duration `yaml:"supply_interval"`

	ConsumptionInterval         time.Duration `yaml:"consumption_interval"`
	EssentialThreshold          float64       `yaml:"essential_threshold"`
	EconomyPenaltyMultiplier    float64       `yaml:"economy_penalty_multiplier"`
	PopulationPenaltyMultiplier float64       `yaml:"population_penalty_multiplier"`

	BuyPriceMultiplier  float64 `yaml:"buy_price_multiplier"`
	SellPriceMultiplier float64 `yaml:"sell_price_multiplier"`
	pricing.Curve       `yaml:",inline"`
}

// DefaultTuning returns the stock economy settings used when a definition omits a field.
func DefaultTuning() Tuning {
	return Tuning{
		EconomyPoints:           100,
		EconomyGrowthRate:       0.1,
		EconomyDecayRate:        0.05,
		MinEconomy:              10,
		MaxEconomy:              1000,
		CurrencyPerEconomyPoint: 100,

		Population:           100,
		PopulationGrowthRate: 0.005,
		PopulationDecayRate:  0.015,
		MinPopulation:        10,
		MaxPopulation:        1000,
		PopulationInterval:   120 * time.Second,

		InvestmentInterval: 600 * time.Second,
		BaseReturnRate:     0.01,
		ReturnMultiplier:   2.0,

		ProductionPerEconomyPoint: 0.005,
		ProductionPerPopulation:   0.002,
		UnproducibleMultiplier:    0.1,
		SupplyInterval:            60 * time.Second,

		ConsumptionInterval:         30 * time.Second,
		EssentialThreshold:          0.3,
		EconomyPenaltyMultiplier:    0.75,
		PopulationPenaltyMultiplier: 1.0,

		BuyPriceMultiplier:  1.1,
		SellPriceMultiplier: 0.9,
		Curve: pricing.Curve{
			Elasticity:    0.4,
			MinMultiplier: 0.6,
			MaxMultiplier: 1.8,
		},
	}
}

// PortDefinition describes the harbor attached to a town.
type PortDefinition struct {
	Name           string  `yaml:"name"`
	TaxPercentage  float64 `yaml:"tax_percentage"`
	OpeningBalance float64 `yaml:"opening_balance"`
}

// Definition is the static description of a town loaded from YAML.
type Definition struct {
	Name           string             `yaml:"name"`
	OpeningBalance float64            `yaml:"opening_balance"`
	Producible     []string           `yaml:"producible"`
	Demands        []Demand           `yaml:"demands"`
	Modifiers      map[string]float64 `yaml:"generation_modifiers"`
	Port           PortDefinition     `yaml:"port"`
	Tuning         Tuning             `yaml:"tuning"`
}

// NewDefinition returns a Definition named name with DefaultTuning and a 10% port tax.
func NewDefinition(name string) Definition {
	return Definition{Name: name, Tuning: DefaultTuning(), Port: PortDefinition{TaxPercentage: 0.1}}
}

// Validate checks the definition against its invariants and the catalog.
//
// Precondition: cat must be non-nil.
// Postcondition: returns nil iff the definition can build a Town.
func (d Definition) Validate(cat *cargo.Catalog) error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("name must not be empty"))
	}
	if d.OpeningBalance < 0 {
		errs = append(errs, fmt.Errorf("opening_balance must be >= 0, got %g", d.OpeningBalance))
	}
	for _, g := range d.Producible {
		if !cat.Has(g) {
			errs = append(errs, fmt.Errorf("producible good %q is not in the catalog", g))
		}
	}
	seen := make(map[string]bool, len(d.Demands))
	for _, dm := range d.Demands {
		if !cat.Has(dm.Good) {
			errs = append(errs, fmt.Errorf("demanded good %q is not in the catalog", dm.Good))
		}
		if seen[dm.Good] {
			errs = append(errs, fmt.Errorf("good %q demanded more than once", dm.Good))
		}
		seen[dm.Good] = true
		if dm.IdealQuantity < 0 {
			errs = append(errs, fmt.Errorf("demand %q: ideal_quantity must be >= 0", dm.Good))
		}
		if dm.ConsumptionRatePerPopulation < 0 {
			errs = append(errs, fmt.Errorf("demand %q: consumption_rate_per_population must be >= 0", dm.Good))
		}
	}
	for g, m := range d.Modifiers {
		if !cat.Has(g) {
			errs = append(errs, fmt.Errorf("generation modifier for unknown good %q", g))
		}
		if m < 0 {
			errs = append(errs, fmt.Errorf("generation modifier for %q must be >= 0", g))
		}
	}
	if d.Port.TaxPercentage < 0 || d.Port.TaxPercentage > 1 {
		errs = append(errs, fmt.Errorf("port.tax_percentage must be in [0, 1], got %g", d.Port.TaxPercentage))
	}
	if d.Port.OpeningBalance < 0 {
		errs = append(errs, fmt.Errorf("port.opening_balance must be >= 0, got %g", d.Port.OpeningBalance))
	}
	if err := d.Tuning.validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("town %q: %w", d.Name, errors.Join(errs...))
	}
	return nil
}

func (t Tuning) validate() error {
	var errs []error
	if t.MinEconomy > t.MaxEconomy {
		errs = append(errs, errors.New("min_economy must not exceed max_economy"))
	}
	if t.MinPopulation < 0 || t.MinPopulation > t.MaxPopulation {
		errs = append(errs, errors.New("population bounds must satisfy 0 <= min_population <= max_population"))
	}
	if t.CurrencyPerEconomyPoint <= 0 {
		errs = append(errs, errors.New("currency_per_economy_point must be > 0"))
	}
	for name, d := range map[string]time.Duration{
		"supply_interval":      t.SupplyInterval,
		"consumption_interval": t.ConsumptionInterval,
		"population_interval":  t.PopulationInterval,
		"investment_interval":  t.InvestmentInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", name))
		}
	}
	if t.UnproducibleMultiplier < 0 || t.UnproducibleMultiplier > 1 {
		errs = append(errs, errors.New("unproducible_multiplier must be in [0, 1]"))
	}
	if t.EssentialThreshold < 0 || t.EssentialThreshold > 1 {
		errs = append(errs, errors.New("essential_threshold must be in [0, 1]"))
	}
	for name, v := range map[string]float64{
		"economy_growth_rate":           t.EconomyGrowthRate,
		"economy_decay_rate":            t.EconomyDecayRate,
		"population_growth_rate":        t.PopulationGrowthRate,
		"population_decay_rate":         t.PopulationDecayRate,
		"base_return_rate":              t.BaseReturnRate,
		"return_multiplier":             t.ReturnMultiplier,
		"production_per_economy_point":  t.ProductionPerEconomyPoint,
		"production_per_population":     t.ProductionPerPopulation,
		"economy_penalty_multiplier":    t.EconomyPenaltyMultiplier,
		"population_penalty_multiplier": t.PopulationPenaltyMultiplier,
	} {
		if !(v >= 0) {
			errs = append(errs, fmt.Errorf("%s must be >= 0, got %g", name, v))
		}
	}
	for name, v := range map[string]float64{
		"buy_price_multiplier":  t.BuyPriceMultiplier,
		"sell_price_multiplier": t.SellPriceMultiplier,
		"min_price_multiplier":  t.MinMultiplier,
	} {
		if !(v > 0) {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %g", name, v))
		}
	}
	if t.MinMultiplier > t.MaxMultiplier {
		errs = append(errs, errors.New("min_price_multiplier must not exceed max_price_multiplier"))
	}
	if t.Elasticity < 0 {
		errs = append(errs, errors.New("price_elasticity must be >= 0"))
	}
	return errors.Join(errs...)
}

// LoadDefinitionFromBytes parses a town definition, filling omitted tuning with defaults.
func LoadDefinitionFromBytes(data []byte) (Definition, error) {
	def := NewDefinition("")
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("parsing town YAML: %w", err)
	}
	return def, nil
}

// LoadDefinitions reads all *.yaml and *.yml files from dir as town definitions
// and validates each against cat.
//
// Precondition: dir is a readable directory path.
// Postcondition: returns all valid definitions in file name order or the first error.
func LoadDefinitions(dir string, cat *cargo.Catalog) ([]Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("LoadDefinitions: cannot read directory %q: %w", dir, err)
	}
	var defs []Definition
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("LoadDefinitions: cannot read file %q: %w", path, err)
		}
		def, err := LoadDefinitionFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("LoadDefinitions: %q: %w", path, err)
		}
		if err := def.Validate(cat); err != nil {
			return nil, fmt.Errorf("LoadDefinitions: invalid town in %q: %w", path, err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}
