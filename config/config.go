//Contains configuration of a run
package config

import (
	"encoding/json"
	"os"

	"github.com/cockroachdb/errors"
)

const (
	ModePlain      = "plain"
	ModeSecure     = "secure"
	ModeCompare    = "compare"
	ModeCollateral = "collateral"
	ModeTrain      = "train"
	ModeDealer     = "dealer"
)

var Modes = []string{ModePlain, ModeSecure, ModeCompare, ModeCollateral, ModeTrain, ModeDealer}

type Collateral struct {
	Side     int    `json:"side,omitempty"`
	Kernel   int    `json:"kernel,omitempty"`
	Channels [2]int `json:"channels,omitempty"`
	Hidden   int    `json:"hidden,omitempty"`
	Fonts    int    `json:"fonts,omitempty"`
	Secure   bool   `json:"secure,omitempty"` //observe scores revealed from secure evaluation instead of plaintext
}

type Config struct {
	Mode          string     `json:"mode,omitempty"`
	ModelPath     string     `json:"model_path,omitempty"`
	DataPath      string     `json:"data_path,omitempty"`
	TestPath      string     `json:"test_path,omitempty"` //if empty DataPath is split
	TrainFraction float64    `json:"train_fraction,omitempty"`
	BatchSize     int        `json:"batch_size,omitempty"`
	MaxBatches    int        `json:"max_batches,omitempty"`
	FracBits      int        `json:"frac_bits,omitempty"`
	Seed          int64      `json:"seed,omitempty"`
	DealerAddr    string     `json:"dealer_addr,omitempty"` //if empty the crypto provider runs in-process
	SimulateLAN   bool       `json:"simulate_lan,omitempty"`
	Epochs        int        `json:"epochs,omitempty"`
	LearningRate  float64    `json:"learning_rate,omitempty"`
	Hidden        int        `json:"hidden,omitempty"` //hidden units when training a new quadratic model
	Verbose       bool       `json:"verbose"`
	DebugLevel    int        `json:"debug_level,omitempty"`
	Collateral    Collateral `json:"collateral,omitempty"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	Mode         string
	ModelPath    string
	DataPath     string
	BatchSize    int
	MaxBatches   int
	FracBits     int
	Seed         int64
	DealerAddr   string
	Epochs       int
	LearningRate float64
	Verbose      bool
	Quiet        bool //suppresses per-batch lines
	DebugLevel   int
}

func Default() *Config {
	return &Config{
		Mode:          ModeSecure,
		ModelPath:     "models/quadnet.json",
		DataPath:      "data/fonts.json",
		TrainFraction: 0.8,
		BatchSize:     10,
		FracBits:      16,
		Epochs:        10,
		LearningRate:  0.01,
		Hidden:        64,
		Verbose:       true,
		Collateral: Collateral{
			Side:     28,
			Kernel:   5,
			Channels: [2]int{10, 20},
			Hidden:   100,
		},
	}
}

// ReadConfig overlays the json file at path on the defaults.
func ReadConfig(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	if err := json.Unmarshal(buf, c); err != nil {
		return nil, errors.Wrapf(err, "decoding config %s", path)
	}
	return c, nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Mode != "" {
		c.Mode = o.Mode
	}
	if o.ModelPath != "" {
		c.ModelPath = o.ModelPath
	}
	if o.DataPath != "" {
		c.DataPath = o.DataPath
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.MaxBatches > 0 {
		c.MaxBatches = o.MaxBatches
	}
	if o.FracBits > 0 {
		c.FracBits = o.FracBits
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.DealerAddr != "" {
		c.DealerAddr = o.DealerAddr
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.LearningRate > 0 {
		c.LearningRate = o.LearningRate
	}
	if o.Verbose {
		c.Verbose = true
	}
	if o.Quiet {
		c.Verbose = false
	}
	if o.DebugLevel > 0 {
		c.DebugLevel = o.DebugLevel
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	known := false
	for _, m := range Modes {
		known = known || m == c.Mode
	}
	if !known {
		return errors.Newf("unknown mode %q (one of %v)", c.Mode, Modes)
	}
	if c.Mode == ModeDealer {
		if c.DealerAddr == "" {
			return errors.New("dealer mode needs dealer_addr")
		}
		return nil
	}
	if c.DataPath == "" {
		return errors.New("data_path must be set")
	}
	if c.ModelPath == "" {
		return errors.New("model_path must be set")
	}
	if c.BatchSize <= 0 {
		return errors.Newf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.FracBits <= 0 || c.FracBits > 30 {
		return errors.Newf("frac_bits must be in [1,30] (got %d)", c.FracBits)
	}
	if c.MaxBatches < 0 {
		return errors.Newf("max_batches must be >= 0 (got %d)", c.MaxBatches)
	}
	if c.Mode == ModeCollateral || c.Mode == ModeTrain {
		if c.Epochs <= 0 {
			return errors.Newf("epochs must be > 0 (got %d)", c.Epochs)
		}
		if c.LearningRate <= 0 {
			return errors.Newf("learning_rate must be > 0 (got %f)", c.LearningRate)
		}
	}
	if c.TestPath == "" && (c.TrainFraction <= 0 || c.TrainFraction >= 1) {
		return errors.Newf("train_fraction must be in (0,1) (got %f)", c.TrainFraction)
	}
	if c.Mode == ModeTrain && c.Hidden <= 0 {
		return errors.Newf("hidden must be > 0 (got %d)", c.Hidden)
	}
	return nil
}
