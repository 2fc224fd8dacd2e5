package envipath

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSetting is returned when no prediction setting matches a name.
var ErrUnknownSetting = errors.New("unknown prediction setting")

// DefaultSettings maps setting names to the setting ids registered on
// envipath.org for CTS predictions. Names encode depth and node limits.
var DefaultSettings = map[string]string{
	"cts-d1-n16":  "e24258e2-f426-41c2-bdbb-b658c41e60c1",
	"cts-d1-n32":  "d243e2c0-d40f-4601-a8c0-103e563f4a89",
	"cts-d2-n16":  "709fe0e0-43d7-4a70-a426-402fea69e7ee",
	"cts-d2-n32":  "91017264-5132-4abb-aa03-885f127bf526",
	"cts-d2-n64":  "fa7cee2e-a6af-4023-986c-afeff46ec940",
	"cts-d3-n16":  "1931a08d-9f2f-4d50-a4e9-c9370c44dbbd",
	"cts-d3-n32":  "17970a8f-aafc-499a-aa16-50904c682276",
	"cts-d3-n64":  "b84c521c-a9cf-4f91-8eff-fd990edc4c34",
	"cts-d3-n128": "069ecbcf-1eb7-4ea5-8e53-08df41e6a871",
}

// SettingName returns the setting name for a generation limit and node limit.
func SettingName(genLimit, nodeLimit int) string {
	return fmt.Sprintf("cts-d%d-n%d", genLimit, nodeLimit)
}

// CheckSettings verifies that every generation limit from minGen to maxGen
// resolves to a configured setting for nodeLimit.
func (c *Client) CheckSettings(nodeLimit, minGen, maxGen int) error {
	var missing []string
	for gen := minGen; gen <= maxGen; gen++ {
		if name := SettingName(gen, nodeLimit); c.settings[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w for node limit %d: %s", ErrUnknownSetting, nodeLimit, strings.Join(missing, ", "))
	}
	return nil
}

// SettingURL resolves a setting name to its resource URL.
func (c *Client) SettingURL(name string) (string, error) {
	id, ok := c.settings[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSetting, name)
	}
	return c.resourceURL("setting", id), nil
}

// resourceURL accepts either a bare id or an absolute resource URL.
func (c *Client) resourceURL(kind, id string) string {
	if strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://") {
		return id
	}
	return c.baseURL + kind + "/" + id
}
