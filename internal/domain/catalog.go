package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// RenderMode selects how the puzzle image is derived from the source.
type RenderMode int

const (
	CenterTile RenderMode = iota
	Silhouette
)

func (m RenderMode) String() string {
	if m == Silhouette {
		return "silhouette"
	}
	return "center-tile"
}

// ParseRenderMode parses "center-tile" or "silhouette".
func ParseRenderMode(raw string) (RenderMode, error) {
	switch raw {
	case "center-tile", "centertile", "tile":
		return CenterTile, nil
	case "silhouette":
		return Silhouette, nil
	}
	return CenterTile, fmt.Errorf("unknown render mode %q", raw)
}

func (m RenderMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *RenderMode) UnmarshalText(text []byte) error {
	mode, err := ParseRenderMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// StageSpec is one fixed position of a challenge.
type StageSpec struct {
	Index           int
	TimeBudget      time.Duration
	OptionCount     int
	RewardOnSuccess int
}

// TimeBudgetSeconds is the budget as fractional seconds, the unit catalogs are authored in.
func (s StageSpec) TimeBudgetSeconds() float64 {
	return s.TimeBudget.Seconds()
}

func (s StageSpec) MarshalJSON() ([]byte, error) {
	type stageJSON struct {
		Index             int     `json:"index"`
		TimeBudgetSeconds float64 `json:"timeBudgetSeconds"`
		OptionCount       int     `json:"optionCount"`
		RewardOnSuccess   int     `json:"rewardOnSuccess"`
	}
	return json.Marshal(stageJSON{
		Index:             s.Index,
		TimeBudgetSeconds: s.TimeBudgetSeconds(),
		OptionCount:       s.OptionCount,
		RewardOnSuccess:   s.RewardOnSuccess,
	})
}

// Catalog is the ordered list of stages of a variant.
type Catalog []StageSpec

// Validate checks the catalog invariants: contiguous ascending indexes from 1,
// positive budgets, at least two options, non-negative rewards.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("%w: no stages", ErrInvalidCatalog)
	}
	for i, s := range c {
		switch {
		case s.Index != i+1:
			return fmt.Errorf("%w: stage %d has index %d", ErrInvalidCatalog, i+1, s.Index)
		case s.TimeBudget <= 0:
			return fmt.Errorf("%w: stage %d time budget must be positive", ErrInvalidCatalog, s.Index)
		case s.OptionCount < 2:
			return fmt.Errorf("%w: stage %d needs at least 2 options", ErrInvalidCatalog, s.Index)
		case s.RewardOnSuccess < 0:
			return fmt.Errorf("%w: stage %d reward is negative", ErrInvalidCatalog, s.Index)
		}
	}
	return nil
}

// NewCatalog numbers the given stages from 1.
func NewCatalog(stages ...StageSpec) Catalog {
	out := make(Catalog, len(stages))
	for i, s := range stages {
		s.Index = i + 1
		out[i] = s
	}
	return out
}

// Stage is shorthand for a StageSpec literal with the budget in seconds.
func Stage(budgetSeconds float64, options, reward int) StageSpec {
	return StageSpec{
		TimeBudget:      time.Duration(budgetSeconds * float64(time.Second)),
		OptionCount:     options,
		RewardOnSuccess: reward,
	}
}

// Variant parameterizes one challenge flavor.
type Variant struct {
	Name    string     `json:"name"`
	Mode    RenderMode `json:"mode"`
	Catalog Catalog    `json:"-"`
	Penalty int        `json:"penalty"`
}

// DefaultVariants are the built-in center-tile and silhouette tables.
func DefaultVariants() map[string]Variant {
	return map[string]Variant{
		"center-tile": {
			Name: "center-tile",
			Mode: CenterTile,
			Catalog: NewCatalog(
				Stage(10, 4, 10),
				Stage(8, 4, 10),
				Stage(7, 5, 15),
				Stage(6, 5, 20),
				Stage(5, 6, 30),
			),
			Penalty: 5,
		},
		"silhouette": {
			Name: "silhouette",
			Mode: Silhouette,
			Catalog: NewCatalog(
				Stage(8, 4, 10),
				Stage(7, 4, 15),
				Stage(6, 5, 20),
				Stage(5, 6, 40),
			),
			Penalty: 10,
		},
	}
}
