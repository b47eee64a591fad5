package config

import (
	"github.com/fluxorio/isowrap/pkg/isowrap"
)

// Policy is the file form of isowrap.PolicySettings. Unset move flags
// inherit move_data; execute_blocks_in_place defaults to false.
type Policy struct {
	MoveData             *bool `yaml:"move_data" json:"move_data"`
	MoveArguments        *bool `yaml:"move_arguments" json:"move_arguments"`
	MoveResults          *bool `yaml:"move_results" json:"move_results"`
	MoveBlockArguments   *bool `yaml:"move_block_arguments" json:"move_block_arguments"`
	MoveBlockResults     *bool `yaml:"move_block_results" json:"move_block_results"`
	ExecuteBlocksInPlace bool  `yaml:"execute_blocks_in_place" json:"execute_blocks_in_place"`
}

func (p Policy) settings() isowrap.PolicySettings {
	return isowrap.PolicySettings{
		MoveData:             p.MoveData,
		MoveArguments:        p.MoveArguments,
		MoveResults:          p.MoveResults,
		MoveBlockArguments:   p.MoveBlockArguments,
		MoveBlockResults:     p.MoveBlockResults,
		ExecuteBlocksInPlace: p.ExecuteBlocksInPlace,
	}
}

// Wrapper is the loadable wrapper configuration record.
type Wrapper struct {
	Name             string             `yaml:"name" json:"name"`
	Threads          int                `yaml:"threads" json:"threads"`
	Logging          bool               `yaml:"logging" json:"logging"`
	UseCurrentDomain bool               `yaml:"use_current_domain" json:"use_current_domain"`
	Default          Policy             `yaml:"default" json:"default"`
	Methods          map[string]*Policy `yaml:"methods" json:"methods"`
}

// LoadWrapper reads a wrapper configuration from path, applying
// environment overrides under the given prefix ("" selects ISOWRAP).
func LoadWrapper(path, prefix string) (*Wrapper, error) {
	var c Wrapper
	if err := LoadWithEnv(path, prefix, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Options converts the record into isowrap options for New.
func (c *Wrapper) Options() []isowrap.Option {
	opts := []isowrap.Option{
		isowrap.WithThreads(c.Threads),
		isowrap.WithLogging(c.Logging),
		isowrap.WithDefaultPolicy(c.Default.settings()),
	}
	if c.Name != "" {
		opts = append(opts, isowrap.WithName(c.Name))
	}
	if c.UseCurrentDomain {
		opts = append(opts, isowrap.WithLocalServer())
	}
	for name, p := range c.Methods {
		if p != nil {
			opts = append(opts, isowrap.WithMethodPolicy(name, p.settings()))
		}
	}
	return opts
}
