package ember

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is a flat, typed settings map keyed by dotted path
// ("gc.step_budget", "stdlib.math"), adapted from the teacher's
// grammar-loader configuration to the knobs this interpreter exposes:
// GC pacing, stdlib toggles and debug defaults.
type Config map[string]*cfgVal

// NewConfig returns a configuration primed with every default the VM,
// GC and CLI expect to find set.
func NewConfig() *Config {
	m := make(Config)
	m.SetInt("gc.step_budget", 8)
	m.SetBool("stdlib.math", true)
	m.SetBool("stdlib.higher_order", true)
	m.SetBool("debug.dump_ast", false)
	m.SetBool("debug.dump_symbols", false)
	m.SetBool("debug.dump_bytecode", false)
	m.SetBool("debug.dump_runtime", false)
	return &m
}

// LoadConfigFile reads an .ember.yaml file and overlays its entries on
// top of NewConfig's defaults. Unknown keys in the file are rejected
// (typo guard); missing keys keep their default.
func LoadConfigFile(path string) (*Config, error) {
	cfg := NewConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	for key, v := range raw {
		if _, ok := (*cfg)[key]; !ok {
			return nil, fmt.Errorf("config: %s: unknown setting %q", path, key)
		}
		switch val := v.(type) {
		case bool:
			cfg.SetBool(key, val)
		case int:
			cfg.SetInt(key, val)
		case string:
			cfg.SetString(key, val)
		default:
			return nil, fmt.Errorf("config: %s: setting %q has unsupported type %T", path, key, v)
		}
	}
	return cfg, nil
}

type cfgValType int

const (
	cfgValType_Undefined cfgValType = iota
	cfgValType_Bool
	cfgValType_Int
	cfgValType_String
)

func (vt cfgValType) String() string {
	return map[cfgValType]string{
		cfgValType_Undefined: "undefined",
		cfgValType_Bool:      "bool",
		cfgValType_Int:       "int",
		cfgValType_String:    "string",
	}[vt]
}

type cfgVal struct {
	typ      cfgValType
	asBool   bool
	asInt    int
	asString string
}

func (v *cfgVal) assignType(vt cfgValType) {
	if v.typ != vt && v.typ != cfgValType_Undefined {
		panic(fmt.Sprintf("ember: can't assign `%s` to type `%s`", vt, v.typ))
	}
	v.typ = vt
}

func (v *cfgVal) checkType(vt cfgValType) {
	if v.typ != vt {
		panic(fmt.Sprintf("ember: can't retrieve `%s` from `%s` setting", vt, v.typ))
	}
}

func (c *Config) SetBool(path string, v bool) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_Bool)
	(*c)[path].asBool = v
}

func (c *Config) SetInt(path string, v int) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_Int)
	(*c)[path].asInt = v
}

func (c *Config) SetString(path string, v string) {
	(*c)[path] = &cfgVal{}
	(*c)[path].assignType(cfgValType_String)
	(*c)[path].asString = v
}

func (c *Config) GetBool(path string) bool {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_Bool)
		return val.asBool
	}
	panic(fmt.Sprintf("ember: bool setting `%s` does not exist", path))
}

func (c *Config) GetInt(path string) int {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_Int)
		return val.asInt
	}
	panic(fmt.Sprintf("ember: int setting `%s` does not exist", path))
}

func (c *Config) GetString(path string) string {
	if val, ok := (*c)[path]; ok {
		val.checkType(cfgValType_String)
		return val.asString
	}
	panic(fmt.Sprintf("ember: string setting `%s` does not exist", path))
}
