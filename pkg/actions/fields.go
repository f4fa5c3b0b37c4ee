package actions

import (
	"fmt"

	"github.com/dukex/custodian/pkg/models"
)

var assetStatuses = map[models.AssetStatus]struct{}{
	models.AssetStatusActive:      {},
	models.AssetStatusInTransit:   {},
	models.AssetStatusQuarantined: {},
	models.AssetStatusDestroyed:   {},
}

// applyFields mutates the asset and returns the previous and new value of every touched field.
// name and status are asset columns, any other key is an attribute.
func applyFields(asset *models.Asset, fields map[string]any) (map[string]any, map[string]any, error) {
	oldValues := make(map[string]any, len(fields))
	newValues := make(map[string]any, len(fields))

	for key, value := range fields {
		switch key {
		case "name":
			name, ok := value.(string)
			if !ok || name == "" {
				return nil, nil, fmt.Errorf("invalid asset name %v", value)
			}

			oldValues[key] = asset.Name
			asset.Name = name
		case "status":
			s, _ := value.(string)

			status := models.AssetStatus(s)
			if _, ok := assetStatuses[status]; !ok {
				return nil, nil, fmt.Errorf("invalid asset status %v", value)
			}

			oldValues[key] = string(asset.Status)
			asset.Status = status
		default:
			if asset.Attributes == nil {
				asset.Attributes = make(map[string]any)
			}

			oldValues[key] = asset.Attributes[key]
			asset.Attributes[key] = value
		}

		newValues[key] = value
	}

	return oldValues, newValues, nil
}
