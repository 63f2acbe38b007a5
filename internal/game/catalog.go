// internal/game/catalog.go
package game

import (
	"strings"
	"time"
)

// Area is one location of the static world map.
type Area struct {
	ID          int
	Name        string
	Type        string
	Description string
	Explorable  bool
	// TravelTime is how long travelling to this area takes.
	TravelTime time.Duration
}

// Item is a catalog item referenced by inventories and recipes.
type Item struct {
	ID   int
	Name string
}

// RecipeInput is one consumed ingredient of a recipe.
type RecipeInput struct {
	ItemID   int
	Quantity int
}

// Recipe describes a craftable item: its inputs, output, and how long
// the work takes.
type Recipe struct {
	ID           int
	Name         string
	Inputs       []RecipeInput
	OutputItemID int
	OutputQty    int
	Duration     time.Duration
}

// Item IDs.
const (
	ItemHerb         = 1
	ItemIronOre      = 2
	ItemLeatherStrap = 3
	ItemHealthPotion = 4
	ItemIronSword    = 5
)

// StartAreaID is where new characters spawn.
const StartAreaID = 1

var areas = []Area{
	{ID: 1, Name: "Starter Town", Type: "town", Description: "A quiet town where every adventure begins.", Explorable: false, TravelTime: 3 * time.Minute},
	{ID: 2, Name: "Whispering Forest", Type: "wilderness", Description: "Dense woods full of herbs and faint voices.", Explorable: true, TravelTime: 5 * time.Minute},
	{ID: 3, Name: "Iron Hills", Type: "wilderness", Description: "Rolling hills rich in ore.", Explorable: true, TravelTime: 10 * time.Minute},
	{ID: 4, Name: "Ashen Caves", Type: "dungeon", Description: "Dark caves still warm from an old fire.", Explorable: true, TravelTime: 15 * time.Minute},
}

var items = []Item{
	{ID: ItemHerb, Name: "Herb"},
	{ID: ItemIronOre, Name: "Iron Ore"},
	{ID: ItemLeatherStrap, Name: "Leather Strap"},
	{ID: ItemHealthPotion, Name: "Health Potion"},
	{ID: ItemIronSword, Name: "Iron Sword"},
}

var recipes = []Recipe{
	{
		ID:           1,
		Name:         "Health Potion",
		Inputs:       []RecipeInput{{ItemID: ItemHerb, Quantity: 2}},
		OutputItemID: ItemHealthPotion,
		OutputQty:    1,
		Duration:     2 * time.Minute,
	},
	{
		ID:   2,
		Name: "Iron Sword",
		Inputs: []RecipeInput{
			{ItemID: ItemIronOre, Quantity: 3},
			{ItemID: ItemLeatherStrap, Quantity: 1},
		},
		OutputItemID: ItemIronSword,
		OutputQty:    1,
		Duration:     10 * time.Minute,
	},
}

// Areas returns the world map in ID order.
func Areas() []Area {
	return areas
}

// AreaByID returns the area with the given ID.
func AreaByID(id int) (Area, bool) {
	for _, a := range areas {
		if a.ID == id {
			return a, true
		}
	}
	return Area{}, false
}

// AreaByName resolves an area by name, case-insensitively.
func AreaByName(name string) (Area, bool) {
	name = strings.TrimSpace(name)
	for _, a := range areas {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return Area{}, false
}

// Recipes returns the crafting catalog in ID order.
func Recipes() []Recipe {
	return recipes
}

// RecipeByID returns the recipe with the given ID.
func RecipeByID(id int) (Recipe, bool) {
	for _, r := range recipes {
		if r.ID == id {
			return r, true
		}
	}
	return Recipe{}, false
}

// RecipeByName resolves a recipe by name, case-insensitively.
func RecipeByName(name string) (Recipe, bool) {
	name = strings.TrimSpace(name)
	for _, r := range recipes {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return Recipe{}, false
}

// ItemName returns the display name for an item ID.
func ItemName(id int) string {
	for _, it := range items {
		if it.ID == id {
			return it.Name
		}
	}
	return "Unknown Item"
}
