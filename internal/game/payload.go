// internal/game/payload.go
package game

// TravelPayload is the durable payload of a travel action.
type TravelPayload struct {
	DestinationAreaID int `json:"destination_area_id"`
}

// CraftPayload is the durable payload of a craft action.
type CraftPayload struct {
	RecipeID int `json:"recipe_id"`
}
