package domain

import (
	"fmt"
	"strings"
)

// Rarity is the tier of an entity; it selects the asset subfolder.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// Folder maps the rarity to its asset directory name.
func (r Rarity) Folder() string {
	switch r {
	case RarityRare:
		return "rare"
	case RarityEpic:
		return "epic"
	case RarityLegendary:
		return "legend"
	default:
		return "common"
	}
}

// ParseRarity accepts the stored spellings, including the folder name "legend".
func ParseRarity(raw string) (Rarity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "common", "":
		return RarityCommon, nil
	case "rare":
		return RarityRare, nil
	case "epic":
		return RarityEpic, nil
	case "legendary", "legend":
		return RarityLegendary, nil
	}
	return RarityCommon, fmt.Errorf("unknown rarity %q", raw)
}

// Entity is a guessable character/item.
type Entity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Rarity      Rarity `json:"rarity"`
}

// AssetPath resolves the image path for an entity: /<category>/<rarityFolder>/<id>.png
func AssetPath(category string, rarity Rarity, id string) string {
	return "/" + strings.Trim(category, "/") + "/" + rarity.Folder() + "/" + id + ".png"
}
