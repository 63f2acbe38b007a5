// internal/game/handler.go
package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/telerpg/internal/types"
)

// NotifyFunc pushes an unsolicited message to a subject. Delivery is
// best-effort; the action's effect is already durable when it runs.
type NotifyFunc func(subject types.SubjectID, text string)

// Handler applies the effects of completed actions to player records.
// It is the scheduler's delivery target.
type Handler struct {
	players types.PlayerStore
	journal types.JournalStore
	notify  NotifyFunc
}

// NewHandler creates a completion handler. journal and notify may be
// nil.
func NewHandler(players types.PlayerStore, journal types.JournalStore, notify NotifyFunc) *Handler {
	return &Handler{players: players, journal: journal, notify: notify}
}

// Complete applies one ready action. The effect goes through
// PlayerStore.ApplyCompletion, so re-delivery of an action that
// already landed is a no-op and sends no duplicate notification.
func (h *Handler) Complete(ctx context.Context, action *types.ScheduledAction) error {
	switch action.Kind {
	case types.ActionTravel:
		return h.completeTravel(ctx, action)
	case types.ActionCraft:
		return h.completeCraft(ctx, action)
	default:
		return fmt.Errorf("complete action %s: unknown kind %q", action.ID, action.Kind)
	}
}

func (h *Handler) completeTravel(ctx context.Context, action *types.ScheduledAction) error {
	var payload TravelPayload
	if err := json.Unmarshal(action.Payload, &payload); err != nil {
		return fmt.Errorf("decode travel payload: %w", err)
	}
	area, ok := AreaByID(payload.DestinationAreaID)
	if !ok {
		return fmt.Errorf("complete travel %s: unknown area %d", action.ID, payload.DestinationAreaID)
	}

	applied, err := h.players.ApplyCompletion(ctx, action.SubjectID, action.ID, func(p *types.Player) {
		p.CurrentAreaID = payload.DestinationAreaID
		p.DestinationAreaID = 0
		p.Status = types.StatusIdle
	})
	if err != nil {
		return fmt.Errorf("apply travel completion: %w", err)
	}
	if !applied {
		return nil
	}

	h.record(ctx, action, "travel_completed", map[string]any{"area_id": area.ID, "area": area.Name})
	if h.notify != nil {
		h.notify(action.SubjectID, fmt.Sprintf("🗺️ You have arrived in *%s*!\n_%s_", area.Name, area.Description))
	}
	return nil
}

func (h *Handler) completeCraft(ctx context.Context, action *types.ScheduledAction) error {
	var payload CraftPayload
	if err := json.Unmarshal(action.Payload, &payload); err != nil {
		return fmt.Errorf("decode craft payload: %w", err)
	}
	recipe, ok := RecipeByID(payload.RecipeID)
	if !ok {
		return fmt.Errorf("complete craft %s: unknown recipe %d", action.ID, payload.RecipeID)
	}

	applied, err := h.players.ApplyCompletion(ctx, action.SubjectID, action.ID, func(p *types.Player) {
		for _, in := range recipe.Inputs {
			p.AddItem(in.ItemID, -in.Quantity)
		}
		p.AddItem(recipe.OutputItemID, recipe.OutputQty)
		p.Status = types.StatusIdle
	})
	if err != nil {
		return fmt.Errorf("apply craft completion: %w", err)
	}
	if !applied {
		return nil
	}

	h.record(ctx, action, "craft_completed", map[string]any{"recipe_id": recipe.ID, "item": ItemName(recipe.OutputItemID)})
	if h.notify != nil {
		h.notify(action.SubjectID, fmt.Sprintf("🔨 Crafting complete! You made *%s* x%d.", ItemName(recipe.OutputItemID), recipe.OutputQty))
	}
	return nil
}

// ReleaseIdle returns a player to idle after their pending action was
// cancelled. Every cancellation surface must call this, or the busy
// status outlives the action and blocks all timed commands. A missing
// player is a no-op: ops surfaces may cancel actions for subjects that
// never finished character creation.
func ReleaseIdle(ctx context.Context, players types.PlayerStore, subject types.SubjectID) error {
	p, err := players.GetBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil
		}
		return err
	}
	if p.Status == types.StatusIdle && p.DestinationAreaID == 0 {
		return nil
	}
	p.Status = types.StatusIdle
	p.DestinationAreaID = 0
	return players.Update(ctx, p)
}

// record appends a journal entry for an applied action. Journal
// failures are logged and swallowed; the effect itself is already
// durable.
func (h *Handler) record(ctx context.Context, action *types.ScheduledAction, typ string, detail map[string]any) {
	if h.journal == nil {
		return
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		slog.Warn("marshal journal detail", "error", err)
		raw = nil
	}
	entry := &types.JournalEntry{
		ID:        types.NewJournalEntryID(),
		SubjectID: action.SubjectID,
		Type:      typ,
		At:        time.Now(),
		Detail:    raw,
	}
	if err := h.journal.Append(ctx, entry); err != nil {
		slog.Warn("append journal entry", "subject", action.SubjectID, "type", typ, "error", err)
	}
}
