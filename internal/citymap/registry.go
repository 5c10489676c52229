package citymap

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cnusergroup/cnusergroup-website/internal/models"
)

//go:embed config/cities.yaml
var citiesYAML embed.FS

type cityFile struct {
	Cities []models.City `yaml:"cities"`
}

// LoadCities reads the city reference registry. An explicit path wins over
// the embedded default; environment variables inside the YAML are expanded.
// The registry is read-only during a run.
func LoadCities(path string) ([]models.City, error) {
	var (
		data []byte
		err  error
	)
	if path != "" {
		data, err = os.ReadFile(path)
	} else {
		data, err = citiesYAML.ReadFile("config/cities.yaml")
	}
	if err != nil {
		return nil, fmt.Errorf("reading city registry: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var file cityFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("parsing city registry: %w", err)
	}
	if err := validateCities(file.Cities); err != nil {
		return nil, err
	}

	return file.Cities, nil
}

func validateCities(cities []models.City) error {
	if len(cities) == 0 {
		return fmt.Errorf("city registry: no cities defined")
	}

	ids := make(map[string]struct{}, len(cities))
	active := 0
	for i, c := range cities {
		if c.ID == "" {
			return fmt.Errorf("city registry: entry %d has no id", i)
		}
		if c.Name == "" {
			return fmt.Errorf("city registry: %s has no name", c.ID)
		}
		if _, dup := ids[c.ID]; dup {
			return fmt.Errorf("city registry: duplicate id %s", c.ID)
		}
		ids[c.ID] = struct{}{}
		if c.Active {
			active++
		}
	}
	if active == 0 {
		return fmt.Errorf("city registry: every city is inactive")
	}
	return nil
}
