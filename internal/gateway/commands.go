// internal/gateway/commands.go
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/telerpg/internal/dialogue"
	"github.com/user/telerpg/internal/game"
	"github.com/user/telerpg/internal/types"
)

const helpText = `🎮 *TeleRPG Commands*

/createcharacter - Create your character
/cancel - Cancel character creation
/profile - View your character
/area - Look around your current area
/travel <destination> - Travel to another area
/craft <recipe> - Craft an item
/inventory - View your inventory
/cancelaction - Cancel your pending action
/help - Show this message`

// process routes one inbound event: callbacks and plain text feed the
// active dialogue, slash commands dispatch to their handlers.
func (g *Gateway) process(ctx context.Context, event *types.InboundEvent) (*types.Reply, error) {
	if event.Callback != "" {
		return g.submitDialogue(ctx, event.SubjectID, dialogue.Input{Kind: dialogue.InputChoice, Value: event.Callback})
	}

	text := strings.TrimSpace(event.Text)
	if strings.HasPrefix(text, "/") {
		return g.dispatchCommand(ctx, event.SubjectID, text)
	}

	reply, err := g.submitDialogue(ctx, event.SubjectID, dialogue.Input{Kind: dialogue.InputText, Value: text})
	if err != nil {
		return nil, err
	}
	if reply == nil {
		// Free text outside any dialogue.
		return &types.Reply{Text: "I didn't catch that. Try /help for the list of commands."}, nil
	}
	return reply, nil
}

func (g *Gateway) dispatchCommand(ctx context.Context, subject types.SubjectID, text string) (*types.Reply, error) {
	name, arg := splitCommand(text)
	switch name {
	case "/start":
		return &types.Reply{Text: "⚔️ Welcome to TeleRPG!\n\nCreate a character with /createcharacter and explore the world.\n\n" + helpText}, nil
	case "/help":
		return &types.Reply{Text: helpText}, nil
	case "/createcharacter":
		return g.cmdCreateCharacter(ctx, subject)
	case "/cancel":
		return g.cmdCancel(ctx, subject)
	case "/profile":
		return g.cmdProfile(ctx, subject)
	case "/area":
		return g.cmdArea(ctx, subject)
	case "/travel":
		return g.cmdTravel(ctx, subject, arg)
	case "/craft":
		return g.cmdCraft(ctx, subject, arg)
	case "/inventory":
		return g.cmdInventory(ctx, subject)
	case "/cancelaction":
		return g.cmdCancelAction(ctx, subject)
	default:
		return &types.Reply{Text: "Unknown command. Try /help."}, nil
	}
}

// splitCommand separates the command name from its argument and strips
// an @botname suffix.
func splitCommand(text string) (name, arg string) {
	parts := strings.SplitN(text, " ", 2)
	name = strings.ToLower(parts[0])
	if at := strings.Index(name, "@"); at > 0 {
		name = name[:at]
	}
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}
	return name, arg
}

// submitDialogue feeds input into the subject's active dialogue. A nil
// reply with nil error means there was no dialogue to consume it.
func (g *Gateway) submitDialogue(ctx context.Context, subject types.SubjectID, input dialogue.Input) (*types.Reply, error) {
	result, err := g.deps.Engine.Submit(ctx, subject, input)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	switch result.Outcome {
	case dialogue.OutcomeIgnored:
		return nil, nil
	case dialogue.OutcomeRejected:
		g.deps.Metrics.InputRejected()
		return &types.Reply{Text: result.Reason}, nil
	case dialogue.OutcomeAdvanced:
		return &types.Reply{Text: result.Prompt, Choices: result.Choices}, nil
	case dialogue.OutcomeFinished:
		g.deps.Metrics.SessionEvent("completed")
		return g.finishedReply(result), nil
	}
	return nil, fmt.Errorf("submit dialogue: unknown outcome %d", result.Outcome)
}

func (g *Gateway) finishedReply(result *dialogue.Result) *types.Reply {
	r := result.Record
	text := fmt.Sprintf(
		"🎉 *Character Created Successfully!* 🎉\n\n"+
			"📛 Name: %s\n"+
			"⚔️ Class: %s\n"+
			"📊 Stats: Str %s / Int %s / Dex %s / Con %s\n\n"+
			"You wake up in Starter Town with 100 gold. Use /profile to view your character and /area to look around.",
		r["name"], r["class"], r["strength"], r["intelligence"], r["dexterity"], r["constitution"])
	if result.Warning != "" {
		text += "\n\n" + result.Warning
	}
	return &types.Reply{Text: text}
}

func (g *Gateway) cmdCreateCharacter(ctx context.Context, subject types.SubjectID) (*types.Reply, error) {
	if _, err := g.deps.Players.GetBySubject(ctx, subject); err == nil {
		return &types.Reply{Text: "You already have a character! Use /profile to view it."}, nil
	} else if !errors.Is(err, types.ErrNotFound) {
		return nil, err
	}

	step, err := g.deps.Engine.Start(ctx, subject)
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			return &types.Reply{Text: "Character creation is already in progress. Answer the last question or /cancel to start over."}, nil
		}
		return nil, err
	}
	g.deps.Metrics.SessionEvent("started")
	return &types.Reply{Text: step.Prompt, Choices: step.ReplyChoices()}, nil
}

func (g *Gateway) cmdCancel(ctx context.Context, subject types.SubjectID) (*types.Reply, error) {
	if err := g.deps.Engine.Abandon(ctx, subject); err != nil {
		return nil, err
	}
	g.deps.Metrics.SessionEvent("abandoned")
	return &types.Reply{Text: "Character creation cancelled. Use /createcharacter to start again."}, nil
}

// requirePlayer loads the subject's player, or returns the reply to
// send when none exists yet.
func (g *Gateway) requirePlayer(ctx context.Context, subject types.SubjectID) (*types.Player, *types.Reply, error) {
	p, err := g.deps.Players.GetBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, &types.Reply{Text: "You don't have a character yet. Use /createcharacter to make one."}, nil
		}
		return nil, nil, err
	}
	return p, nil, nil
}

func (g *Gateway) cmdProfile(ctx context.Context, subject types.SubjectID) (*types.Reply, error) {
	p, reply, err := g.requirePlayer(ctx, subject)
	if reply != nil || err != nil {
		return reply, err
	}

	areaName := "Unknown"
	if area, ok := game.AreaByID(p.CurrentAreaID); ok {
		areaName = area.Name
	}
	text := fmt.Sprintf(
		"👤 *%s* — Level %d %s\n\n"+
			"❤️ HP: %d/%d\n"+
			"✨ MP: %d/%d\n"+
			"⚔️ Attack: %d  🛡️ Defense: %d\n"+
			"📊 Str %d / Int %d / Dex %d / Con %d\n"+
			"⭐ XP: %d\n"+
			"💰 Gold: %d\n"+
			"📍 Area: %s\n"+
			"🔸 Status: %s",
		p.Name, p.Level, p.Class,
		p.HP, p.MaxHP, p.MP, p.MaxMP,
		p.Attack, p.Defense,
		p.Strength, p.Intelligence, p.Dexterity, p.Constitution,
		p.Experience, p.Currency, areaName, p.Status)
	return &types.Reply{Text: text}, nil
}

func (g *Gateway) cmdArea(ctx context.Context, subject types.SubjectID) (*types.Reply, error) {
	p, reply, err := g.requirePlayer(ctx, subject)
	if reply != nil || err != nil {
		return reply, err
	}

	current, ok := game.AreaByID(p.CurrentAreaID)
	if !ok {
		return nil, fmt.Errorf("area command: player %s in unknown area %d", p.ID, p.CurrentAreaID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📍 *%s*\n_%s_\n\nDestinations:\n", current.Name, current.Description)
	for _, a := range game.Areas() {
		if a.ID == current.ID {
			continue
		}
		fmt.Fprintf(&b, "• %s (%s away)\n", a.Name, humanDuration(a.TravelTime))
	}
	b.WriteString("\nUse /travel <destination> to go somewhere.")
	return &types.Reply{Text: b.String()}, nil
}

func (g *Gateway) cmdTravel(ctx context.Context, subject types.SubjectID, arg string) (*types.Reply, error) {
	p, reply, err := g.requirePlayer(ctx, subject)
	if reply != nil || err != nil {
		return reply, err
	}
	if arg == "" {
		return &types.Reply{Text: "Where to? Use /travel <destination>, e.g. `/travel Whispering Forest`. /area lists destinations."}, nil
	}
	if p.Status != types.StatusIdle {
		return g.busyReply(p), nil
	}

	dest, ok := game.AreaByName(arg)
	if !ok {
		return &types.Reply{Text: fmt.Sprintf("I don't know a place called %q. /area lists destinations.", arg)}, nil
	}
	if dest.ID == p.CurrentAreaID {
		return &types.Reply{Text: fmt.Sprintf("You are already in %s.", dest.Name)}, nil
	}

	readyAt := time.Now().Add(dest.TravelTime)
	action, err := g.deps.Scheduler.Schedule(ctx, subject, types.ActionTravel, types.ClassMovement,
		game.TravelPayload{DestinationAreaID: dest.ID}, readyAt)
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			return &types.Reply{Text: "You are already travelling somewhere. Use /cancelaction to turn back."}, nil
		}
		return nil, err
	}

	p.Status = types.StatusTravelling
	p.DestinationAreaID = dest.ID
	if err := g.deps.Players.Update(ctx, p); err != nil {
		// Roll the schedule back rather than leave an action for a
		// player whose status never changed.
		if cerr := g.deps.Scheduler.Cancel(ctx, action.ID); cerr != nil && !errors.Is(cerr, types.ErrNotFound) {
			slog.Error("rollback travel schedule", "action_id", action.ID, "error", cerr)
		}
		return nil, fmt.Errorf("mark player travelling: %w", err)
	}

	g.deps.Metrics.ActionScheduled(string(types.ActionTravel))
	g.journal(ctx, subject, "travel_started", map[string]any{"area_id": dest.ID, "area": dest.Name})
	return &types.Reply{Text: fmt.Sprintf("🗺️ You set off for *%s*. You will arrive in %s.", dest.Name, humanDuration(dest.TravelTime))}, nil
}

func (g *Gateway) cmdCraft(ctx context.Context, subject types.SubjectID, arg string) (*types.Reply, error) {
	p, reply, err := g.requirePlayer(ctx, subject)
	if reply != nil || err != nil {
		return reply, err
	}
	if arg == "" {
		var b strings.Builder
		b.WriteString("What do you want to craft? Recipes:\n")
		for _, r := range game.Recipes() {
			b.WriteString("• " + r.Name + " (")
			for i, in := range r.Inputs {
				if i > 0 {
					b.WriteString(", ")
				}
				fmt.Fprintf(&b, "%dx %s", in.Quantity, game.ItemName(in.ItemID))
			}
			fmt.Fprintf(&b, ") — %s\n", humanDuration(r.Duration))
		}
		b.WriteString("\nUse /craft <recipe>, e.g. `/craft Health Potion`.")
		return &types.Reply{Text: b.String()}, nil
	}
	if p.Status != types.StatusIdle {
		return g.busyReply(p), nil
	}

	recipe, ok := game.RecipeByName(arg)
	if !ok {
		return &types.Reply{Text: fmt.Sprintf("I don't know a recipe called %q. /craft lists recipes.", arg)}, nil
	}
	for _, in := range recipe.Inputs {
		if p.ItemQuantity(in.ItemID) < in.Quantity {
			return &types.Reply{Text: fmt.Sprintf("You need %dx %s to craft %s. Check /inventory.",
				in.Quantity, game.ItemName(in.ItemID), recipe.Name)}, nil
		}
	}

	readyAt := time.Now().Add(recipe.Duration)
	action, err := g.deps.Scheduler.Schedule(ctx, subject, types.ActionCraft, types.ClassWork,
		game.CraftPayload{RecipeID: recipe.ID}, readyAt)
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			return &types.Reply{Text: "You are already working on something. Use /cancelaction to stop."}, nil
		}
		return nil, err
	}

	p.Status = types.StatusCrafting
	if err := g.deps.Players.Update(ctx, p); err != nil {
		if cerr := g.deps.Scheduler.Cancel(ctx, action.ID); cerr != nil && !errors.Is(cerr, types.ErrNotFound) {
			slog.Error("rollback craft schedule", "action_id", action.ID, "error", cerr)
		}
		return nil, fmt.Errorf("mark player crafting: %w", err)
	}

	g.deps.Metrics.ActionScheduled(string(types.ActionCraft))
	g.journal(ctx, subject, "craft_started", map[string]any{"recipe_id": recipe.ID, "recipe": recipe.Name})
	return &types.Reply{Text: fmt.Sprintf("🔨 You start crafting *%s*. It will be ready in %s.", recipe.Name, humanDuration(recipe.Duration))}, nil
}

func (g *Gateway) cmdInventory(ctx context.Context, subject types.SubjectID) (*types.Reply, error) {
	p, reply, err := g.requirePlayer(ctx, subject)
	if reply != nil || err != nil {
		return reply, err
	}

	var b strings.Builder
	b.WriteString("🎒 *Inventory*\n\n")
	if len(p.Inventory) == 0 {
		b.WriteString("_Empty._\n")
	}
	for _, it := range p.Inventory {
		fmt.Fprintf(&b, "• %s x%d\n", game.ItemName(it.ItemID), it.Quantity)
	}
	fmt.Fprintf(&b, "\n💰 Gold: %d", p.Currency)
	return &types.Reply{Text: b.String()}, nil
}

func (g *Gateway) cmdCancelAction(ctx context.Context, subject types.SubjectID) (*types.Reply, error) {
	p, reply, err := g.requirePlayer(ctx, subject)
	if reply != nil || err != nil {
		return reply, err
	}

	pending, err := g.deps.Actions.PendingForSubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		// A busy status with nothing pending means the action was
		// cancelled elsewhere (ops API, admin CLI); release the player
		// so timed commands work again.
		if p.Status != types.StatusIdle {
			if err := game.ReleaseIdle(ctx, g.deps.Players, subject); err != nil {
				return nil, fmt.Errorf("reset player status: %w", err)
			}
			return &types.Reply{Text: "You have no pending action. You are free to act again."}, nil
		}
		return &types.Reply{Text: "You have no pending action."}, nil
	}

	action := pending[0]
	if err := g.deps.Scheduler.Cancel(ctx, action.ID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			// Completed between the list and the cancel; the completion
			// already updated the player.
			return &types.Reply{Text: "Too late — that action already finished."}, nil
		}
		return nil, err
	}

	if err := game.ReleaseIdle(ctx, g.deps.Players, subject); err != nil {
		return nil, fmt.Errorf("reset player status: %w", err)
	}

	g.deps.Metrics.ActionCancelled()
	g.journal(ctx, subject, "action_cancelled", map[string]any{"action_id": string(action.ID), "kind": string(action.Kind)})
	return &types.Reply{Text: fmt.Sprintf("❌ Your %s was cancelled.", action.Kind)}, nil
}

func (g *Gateway) busyReply(p *types.Player) *types.Reply {
	verb := "busy"
	switch p.Status {
	case types.StatusTravelling:
		verb = "travelling"
	case types.StatusCrafting:
		verb = "crafting"
	}
	return &types.Reply{Text: fmt.Sprintf("⏳ You are %s right now. Use /cancelaction to stop.", verb)}
}

// journal appends an activity entry, best-effort.
func (g *Gateway) journal(ctx context.Context, subject types.SubjectID, typ string, detail map[string]any) {
	if g.deps.Journal == nil {
		return
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		raw = nil
	}
	entry := &types.JournalEntry{
		ID:        types.NewJournalEntryID(),
		SubjectID: subject,
		Type:      typ,
		At:        time.Now(),
		Detail:    raw,
	}
	if err := g.deps.Journal.Append(ctx, entry); err != nil {
		slog.Warn("append journal entry", "subject", subject, "type", typ, "error", err)
	}
}

func humanDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
