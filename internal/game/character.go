// internal/game/character.go
package game

import (
	"fmt"
	"strconv"
	"time"

	"github.com/user/telerpg/internal/types"
)

// jobClassIDs maps class names to their numeric job class.
var jobClassIDs = map[string]int{
	"Warrior": 1,
	"Mage":    2,
	"Rogue":   3,
	"Archer":  4,
}

const (
	startingLevel    = 1
	startingCurrency = 100
)

// starterKit is the inventory every new character begins with: enough
// ingredients to try both starter recipes.
var starterKit = []types.InventoryItem{
	{ItemID: ItemHerb, Quantity: 4},
	{ItemID: ItemIronOre, Quantity: 3},
	{ItemID: ItemLeatherStrap, Quantity: 1},
}

// NewPlayer assembles a player record from a completed character
// creation dialogue. Stats arrive pre-validated; derived stats follow
// the class-independent formulas (hp from constitution, mp from
// intelligence, attack from strength, defense from constitution).
func NewPlayer(subject types.SubjectID, fields types.FieldValues) (*types.Player, error) {
	name := fields["name"]
	if name == "" {
		return nil, fmt.Errorf("assemble player: missing name field")
	}
	class := fields["class"]
	jobClassID, ok := jobClassIDs[class]
	if !ok {
		return nil, fmt.Errorf("assemble player: unknown class %q", class)
	}

	stats := make(map[string]int, 4)
	for _, key := range []string{"strength", "intelligence", "dexterity", "constitution"} {
		n, err := strconv.Atoi(fields[key])
		if err != nil {
			return nil, fmt.Errorf("assemble player: bad %s value %q: %w", key, fields[key], err)
		}
		stats[key] = n
	}

	now := time.Now()
	maxHP := 50 + stats["constitution"]*10
	maxMP := 30 + stats["intelligence"]*8

	return &types.Player{
		ID:            types.NewPlayerID(),
		SubjectID:     subject,
		Name:          name,
		Class:         class,
		JobClassID:    jobClassID,
		Level:         startingLevel,
		Experience:    0,
		HP:            maxHP,
		MaxHP:         maxHP,
		MP:            maxMP,
		MaxMP:         maxMP,
		Attack:        10 + stats["strength"]*3,
		Defense:       5 + stats["constitution"]*2,
		Strength:      stats["strength"],
		Intelligence:  stats["intelligence"],
		Dexterity:     stats["dexterity"],
		Constitution:  stats["constitution"],
		CurrentAreaID: StartAreaID,
		Status:        types.StatusIdle,
		Currency:      startingCurrency,
		Inventory:     append([]types.InventoryItem(nil), starterKit...),
		CreatedAt:     now,
		UpdatedAt:     now,
		LastLogin:     now,
	}, nil
}
