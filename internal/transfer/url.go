package transfer

import (
	"fmt"
	"strings"

	"sceneflow/internal/scene"
	"sceneflow/internal/services"
)

// BuildURL expands the download URL template for candidate c.
//
// Supported placeholders: {repository}, {scene_id}, {product_id}, {sensor}.
// {repository} is looked up in repositories[sensor] by collection number.
func BuildURL(template string, repositories map[string][]string, c scene.Candidate) (string, error) {
	replacements := []string{
		"{scene_id}", c.SceneID,
		"{product_id}", c.ProductID,
		"{sensor}", c.Sensor,
	}
	if strings.Contains(template, "{repository}") {
		repo, err := repositoryFor(repositories, c)
		if err != nil {
			return "", err
		}
		replacements = append(replacements, "{repository}", repo)
	}
	url := strings.NewReplacer(replacements...).Replace(template)
	if strings.ContainsAny(url, "{}") {
		return "", services.Wrap(services.ErrConfiguration, component, "build url",
			fmt.Sprintf("unresolved placeholder in %q", url), nil)
	}
	return url, nil
}

func repositoryFor(repositories map[string][]string, c scene.Candidate) (string, error) {
	repos, ok := repositories[c.Sensor]
	if !ok {
		for sensor, candidates := range repositories {
			if strings.EqualFold(sensor, c.Sensor) {
				repos, ok = candidates, true
				break
			}
		}
	}
	if !ok {
		return "", services.Wrap(services.ErrConfiguration, component, "build url",
			fmt.Sprintf("no repository configured for sensor %q", c.Sensor), nil)
	}
	if c.CollectionNumber < 0 || c.CollectionNumber >= len(repos) {
		return "", services.Wrap(services.ErrConfiguration, component, "build url",
			fmt.Sprintf("sensor %q has no repository for collection %d", c.Sensor, c.CollectionNumber), nil)
	}
	return repos[c.CollectionNumber], nil
}
