package mosaic

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the service-level configuration, parsed from the
// environment. The byte budget is deliberately a configuration value:
// the image service enforces an undocumented payload ceiling, so the
// budget defaults well below the documented 50 MiB figure and the load
// step refuses a budget at or above the ceiling instead of finding out
// mid-pipeline.
type Config struct {
	Endpoint       string        `env:"ENDPOINT,required"`
	CRS            string        `env:"CRS" envDefault:"EPSG:4326"`
	Workers        int           `env:"WORKERS" envDefault:"8"`
	HTTPTimeout    time.Duration `env:"HTTP_TIMEOUT" envDefault:"60s"`
	Retries        int           `env:"RETRIES" envDefault:"3"`
	BudgetBytes    int64         `env:"BUDGET_BYTES" envDefault:"26214400"`
	PayloadCeiling int64         `env:"PAYLOAD_CEILING" envDefault:"52428800"`
	CacheRoot      string        `env:"CACHE_ROOT" envDefault:".mosaic-cache"`
	PointMargin    float64       `env:"POINT_MARGIN" envDefault:"0.005"`
}

// LoadConfig reads MOSAIC_* environment variables, loading a .env file
// first when one is present, and validates the result.
func LoadConfig() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "MOSAIC_"})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("config: endpoint is required")
	}
	if c.CRS == "" {
		return fmt.Errorf("config: output CRS is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be >= 1, got %d", c.Workers)
	}
	if c.BudgetBytes <= 0 {
		return fmt.Errorf("config: byte budget must be > 0, got %d", c.BudgetBytes)
	}
	if c.BudgetBytes >= c.PayloadCeiling {
		return fmt.Errorf("config: byte budget %d must stay below the service payload ceiling %d",
			c.BudgetBytes, c.PayloadCeiling)
	}
	return nil
}

// Band is one sub-band of a layer, e.g. a single soil sub-index. The
// coverage id is what the image service knows it by.
type Band struct {
	Name     string `json:"name"`
	Coverage string `json:"coverage"`
}

// Layer describes one named layer downstream consumers sample from.
type Layer struct {
	Name          string  `json:"name"`
	Bands         []Band  `json:"bands"`
	Resolution    float64 `json:"resolution"`
	BudgetBytes   int64   `json:"budget_bytes,omitempty"`
	BytesPerPixel int     `json:"bytes_per_pixel,omitempty"`
	Format        string  `json:"format"`
	WindowDays    int     `json:"window_days"`
	QualityMax    float64 `json:"quality_max,omitempty"`

	// Default is the documented per-layer value substituted for every
	// point of a band whose artifact is wholly missing.
	Default float64 `json:"default"`
}

func (l Layer) budget(serviceDefault int64) int64 {
	if l.BudgetBytes > 0 {
		return l.BudgetBytes
	}
	return serviceDefault
}

func (l Layer) bytesPerPixel() int {
	if l.BytesPerPixel > 0 {
		return l.BytesPerPixel
	}
	return 4
}

// window builds the temporal compositing window ending at the given
// date.
func (l Layer) window(end time.Time) TimeWindow {
	days := l.WindowDays
	if days < 1 {
		days = 1
	}
	end = end.UTC().Truncate(24 * time.Hour)
	return TimeWindow{
		Start: end.AddDate(0, 0, -days),
		End:   end,
	}
}

// Layers indexes layer definitions by name.
type Layers map[string]Layer

// ReadLayers loads layer definitions from a JSON file.
func ReadLayers(fileName string) (Layers, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}

	layers := Layers{}
	if err := json.Unmarshal(data, &layers); err != nil {
		return nil, fmt.Errorf("parsing layer definitions %s: %w", fileName, err)
	}

	for name, layer := range layers {
		if layer.Name == "" {
			layer.Name = name
			layers[name] = layer
		}
		if len(layer.Bands) == 0 {
			return nil, fmt.Errorf("layer %s: at least one band is required", name)
		}
		if layer.Resolution <= 0 {
			return nil, fmt.Errorf("layer %s: resolution must be > 0", name)
		}
	}

	return layers, nil
}
