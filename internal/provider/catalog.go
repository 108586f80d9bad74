package provider

import (
	"encoding/json"
	"sort"
)

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

type modelEntry struct {
	ID         string            `json:"id"`
	Object     string            `json:"object"`
	Created    int64             `json:"created"`
	OwnedBy    string            `json:"owned_by"`
	Permission []modelPermission `json:"permission"`
	Root       string            `json:"root"`
	Parent     *string           `json:"parent"`
}

type modelPermission struct {
	ID                 string  `json:"id"`
	Object             string  `json:"object"`
	Created            int64   `json:"created"`
	AllowCreateEngine  bool    `json:"allow_create_engine"`
	AllowSampling      bool    `json:"allow_sampling"`
	AllowLogprobs      bool    `json:"allow_logprobs"`
	AllowSearchIndices bool    `json:"allow_search_indices"`
	AllowView          bool    `json:"allow_view"`
	AllowFineTuning    bool    `json:"allow_fine_tuning"`
	Organization       string  `json:"organization"`
	Group              *string `json:"group"`
	IsBlocking         bool    `json:"is_blocking"`
}

// buildCatalog renders the model listing for every model with a deployment.
// Entries are sorted by id so the output is byte-identical across calls and
// restarts.
func buildCatalog(deployments map[string]string) ([]byte, error) {
	names := make([]string, 0, len(deployments))
	for name, deployment := range deployments {
		if deployment != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	list := modelList{Object: "list", Data: make([]modelEntry, 0, len(names))}
	for _, name := range names {
		list.Data = append(list.Data, modelEntry{
			ID:      name,
			Object:  "model",
			Created: 1677610602,
			OwnedBy: "openai",
			Permission: []modelPermission{{
				ID:            "modelperm-M56FXnG1AsIr3SXq8BYPvXJA",
				Object:        "model_permission",
				Created:       1679602088,
				AllowSampling: true,
				AllowLogprobs: true,
				AllowView:     true,
				Organization:  "*",
			}},
			Root: name,
		})
	}
	return json.MarshalIndent(list, "", "  ")
}
