package gateway

import (
	"context"
	"strings"
	"testing"

	"github.com/user/telerpg/internal/dialogue"
	"github.com/user/telerpg/internal/game"
	"github.com/user/telerpg/internal/scheduler"
	"github.com/user/telerpg/internal/state"
	"github.com/user/telerpg/internal/types"
)

func newTestGateway(t *testing.T) (*Gateway, *state.Stores) {
	t.Helper()
	dir := t.TempDir()
	stores, err := state.Open(context.Background(), dir, "")
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}

	finish := func(ctx context.Context, subject types.SubjectID, fields types.FieldValues) error {
		p, err := game.NewPlayer(subject, fields)
		if err != nil {
			return err
		}
		return stores.Players.Create(ctx, p)
	}
	engine := dialogue.NewEngine(stores.Dialogues, dialogue.CreateCharacterSteps(), finish)
	handler := game.NewHandler(stores.Players, stores.Journal, nil)
	sched := scheduler.New(stores.Actions, handler.Complete)
	t.Cleanup(sched.Stop)

	g := New(Deps{
		Engine:    engine,
		Scheduler: sched,
		Players:   stores.Players,
		Actions:   stores.Actions,
		Journal:   stores.Journal,
	})
	return g, stores
}

func text(subject types.SubjectID, msg string) *types.InboundEvent {
	return &types.InboundEvent{Source: "telegram", SubjectID: subject, Text: msg}
}

func callback(subject types.SubjectID, token string) *types.InboundEvent {
	return &types.InboundEvent{Source: "telegram", SubjectID: subject, Callback: token}
}

func mustReply(t *testing.T, g *Gateway, event *types.InboundEvent) *types.Reply {
	t.Helper()
	reply, err := g.process(context.Background(), event)
	if err != nil {
		t.Fatalf("process(%+v) failed: %v", event, err)
	}
	if reply == nil {
		t.Fatalf("process(%+v) returned no reply", event)
	}
	return reply
}

func TestCreateCharacterFlow(t *testing.T) {
	g, stores := newTestGateway(t)
	subject := types.SubjectID("telegram:1")

	reply := mustReply(t, g, text(subject, "/createcharacter"))
	if !strings.Contains(reply.Text, "name your player") {
		t.Errorf("expected name prompt, got %q", reply.Text)
	}

	reply = mustReply(t, g, text(subject, "Alice"))
	if len(reply.Choices) != 4 {
		t.Fatalf("expected 4 class choices, got %d", len(reply.Choices))
	}

	reply = mustReply(t, g, callback(subject, "class_warrior"))
	if !strings.Contains(reply.Text, "Distribute your starting stats") {
		t.Errorf("expected stats prompt, got %q", reply.Text)
	}

	reply = mustReply(t, g, text(subject, "3 2 3 2"))
	if !strings.Contains(reply.Text, "Character Created Successfully") {
		t.Errorf("expected completion summary, got %q", reply.Text)
	}
	if strings.Contains(reply.Text, "Warning") {
		t.Errorf("unexpected persistence warning: %q", reply.Text)
	}

	p, err := stores.Players.GetBySubject(context.Background(), subject)
	if err != nil {
		t.Fatalf("player not persisted: %v", err)
	}
	if p.Name != "Alice" || p.Class != "Warrior" || p.MaxHP != 70 {
		t.Errorf("unexpected persisted player: %+v", p)
	}
}

func TestCreateCharacterRejectionKeepsCursor(t *testing.T) {
	g, _ := newTestGateway(t)
	subject := types.SubjectID("telegram:1")

	mustReply(t, g, text(subject, "/createcharacter"))

	reply := mustReply(t, g, text(subject, "A"))
	if !strings.Contains(reply.Text, "between 2-20 characters") {
		t.Errorf("expected length rejection, got %q", reply.Text)
	}
	reply = mustReply(t, g, text(subject, "Al3x"))
	if !strings.Contains(reply.Text, "letters and spaces") {
		t.Errorf("expected charset rejection, got %q", reply.Text)
	}

	// Still on the name step: a valid name now advances to classes.
	reply = mustReply(t, g, text(subject, "Al"))
	if len(reply.Choices) != 4 {
		t.Errorf("expected class choices after valid retry, got %+v", reply)
	}
}

func TestCreateCharacterTwice(t *testing.T) {
	g, _ := newTestGateway(t)
	subject := types.SubjectID("telegram:1")

	mustReply(t, g, text(subject, "/createcharacter"))
	reply := mustReply(t, g, text(subject, "/createcharacter"))
	if !strings.Contains(reply.Text, "already in progress") {
		t.Errorf("expected in-progress notice, got %q", reply.Text)
	}

	mustReply(t, g, text(subject, "Alice"))
	mustReply(t, g, callback(subject, "class_mage"))
	mustReply(t, g, text(subject, "2 4 2 2"))

	reply = mustReply(t, g, text(subject, "/createcharacter"))
	if !strings.Contains(reply.Text, "already have a character") {
		t.Errorf("expected existing-character notice, got %q", reply.Text)
	}
}

func TestCancelAbandonsDialogue(t *testing.T) {
	g, _ := newTestGateway(t)
	subject := types.SubjectID("telegram:1")

	mustReply(t, g, text(subject, "/createcharacter"))
	mustReply(t, g, text(subject, "/cancel"))

	// A fresh dialogue starts from the name step.
	reply := mustReply(t, g, text(subject, "/createcharacter"))
	if !strings.Contains(reply.Text, "name your player") {
		t.Errorf("expected fresh name prompt after cancel, got %q", reply.Text)
	}
}

func TestCallbackIgnoredOnTextStep(t *testing.T) {
	g, _ := newTestGateway(t)
	subject := types.SubjectID("telegram:1")

	mustReply(t, g, text(subject, "/createcharacter"))

	// Name step ignores a class callback; the dialogue stays put.
	reply, err := g.process(context.Background(), callback(subject, "class_warrior"))
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if reply != nil {
		t.Errorf("expected ignored callback to produce no reply, got %q", reply.Text)
	}

	reply = mustReply(t, g, text(subject, "Alice"))
	if len(reply.Choices) != 4 {
		t.Errorf("expected name step to still accept text, got %+v", reply)
	}
}

func seedIdlePlayer(t *testing.T, stores *state.Stores, subject types.SubjectID) *types.Player {
	t.Helper()
	p, err := game.NewPlayer(subject, types.FieldValues{
		"name": "Alice", "class": "Warrior",
		"strength": "3", "intelligence": "2", "dexterity": "3", "constitution": "2",
	})
	if err != nil {
		t.Fatalf("NewPlayer failed: %v", err)
	}
	if err := stores.Players.Create(context.Background(), p); err != nil {
		t.Fatalf("Create player failed: %v", err)
	}
	return p
}

func TestTravelSchedulesAndMarksBusy(t *testing.T) {
	g, stores := newTestGateway(t)
	subject := types.SubjectID("telegram:1")
	seedIdlePlayer(t, stores, subject)
	ctx := context.Background()

	reply := mustReply(t, g, text(subject, "/travel Whispering Forest"))
	if !strings.Contains(reply.Text, "Whispering Forest") {
		t.Errorf("expected travel confirmation, got %q", reply.Text)
	}

	p, err := stores.Players.GetBySubject(ctx, subject)
	if err != nil {
		t.Fatalf("GetBySubject failed: %v", err)
	}
	if p.Status != types.StatusTravelling || p.DestinationAreaID != 2 {
		t.Errorf("expected travelling to area 2, got %+v", p)
	}

	pending, err := stores.Actions.PendingForSubject(ctx, subject)
	if err != nil {
		t.Fatalf("PendingForSubject failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Kind != types.ActionTravel {
		t.Fatalf("expected 1 pending travel action, got %+v", pending)
	}

	// Busy players cannot start another action.
	reply = mustReply(t, g, text(subject, "/travel Iron Hills"))
	if !strings.Contains(reply.Text, "travelling") {
		t.Errorf("expected busy notice, got %q", reply.Text)
	}
	reply = mustReply(t, g, text(subject, "/craft Health Potion"))
	if !strings.Contains(reply.Text, "travelling") {
		t.Errorf("expected busy notice for craft, got %q", reply.Text)
	}
}

func TestTravelUnknownAndCurrentArea(t *testing.T) {
	g, stores := newTestGateway(t)
	subject := types.SubjectID("telegram:1")
	seedIdlePlayer(t, stores, subject)

	reply := mustReply(t, g, text(subject, "/travel Atlantis"))
	if !strings.Contains(reply.Text, "don't know a place") {
		t.Errorf("expected unknown-area notice, got %q", reply.Text)
	}

	reply = mustReply(t, g, text(subject, "/travel Starter Town"))
	if !strings.Contains(reply.Text, "already in") {
		t.Errorf("expected already-here notice, got %q", reply.Text)
	}
}

func TestCancelActionResetsStatus(t *testing.T) {
	g, stores := newTestGateway(t)
	subject := types.SubjectID("telegram:1")
	seedIdlePlayer(t, stores, subject)
	ctx := context.Background()

	mustReply(t, g, text(subject, "/travel Iron Hills"))
	reply := mustReply(t, g, text(subject, "/cancelaction"))
	if !strings.Contains(reply.Text, "cancelled") {
		t.Errorf("expected cancel confirmation, got %q", reply.Text)
	}

	p, err := stores.Players.GetBySubject(ctx, subject)
	if err != nil {
		t.Fatalf("GetBySubject failed: %v", err)
	}
	if p.Status != types.StatusIdle || p.DestinationAreaID != 0 {
		t.Errorf("expected idle after cancel, got %+v", p)
	}

	pending, err := stores.Actions.PendingForSubject(ctx, subject)
	if err != nil {
		t.Fatalf("PendingForSubject failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending actions, got %+v", pending)
	}

	// The slot is free: travel again.
	reply = mustReply(t, g, text(subject, "/travel Iron Hills"))
	if !strings.Contains(reply.Text, "Iron Hills") {
		t.Errorf("expected travel to reschedule, got %q", reply.Text)
	}
}

func TestCancelActionRecoversExternallyCancelled(t *testing.T) {
	g, stores := newTestGateway(t)
	subject := types.SubjectID("telegram:1")
	seedIdlePlayer(t, stores, subject)
	ctx := context.Background()

	mustReply(t, g, text(subject, "/travel Iron Hills"))

	// Cancel at the store level, as an ops surface with no access to
	// the player would. The busy status must not strand the player.
	pending, err := stores.Actions.PendingForSubject(ctx, subject)
	if err != nil {
		t.Fatalf("PendingForSubject failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending action, got %d", len(pending))
	}
	if err := stores.Actions.MarkCancelled(ctx, pending[0].ID); err != nil {
		t.Fatalf("MarkCancelled failed: %v", err)
	}

	reply := mustReply(t, g, text(subject, "/cancelaction"))
	if !strings.Contains(reply.Text, "free to act again") {
		t.Errorf("expected status recovery notice, got %q", reply.Text)
	}

	p, err := stores.Players.GetBySubject(ctx, subject)
	if err != nil {
		t.Fatalf("GetBySubject failed: %v", err)
	}
	if p.Status != types.StatusIdle || p.DestinationAreaID != 0 {
		t.Errorf("expected idle after recovery, got status=%s dest=%d", p.Status, p.DestinationAreaID)
	}

	// Timed commands work again.
	reply = mustReply(t, g, text(subject, "/travel Iron Hills"))
	if !strings.Contains(reply.Text, "Iron Hills") {
		t.Errorf("expected travel to schedule after recovery, got %q", reply.Text)
	}
}

func TestCraftRequiresIngredients(t *testing.T) {
	g, stores := newTestGateway(t)
	subject := types.SubjectID("telegram:1")
	p := seedIdlePlayer(t, stores, subject)
	ctx := context.Background()

	// Drop all iron ore so the sword cannot be started.
	p.AddItem(game.ItemIronOre, -p.ItemQuantity(game.ItemIronOre))
	if err := stores.Players.Update(ctx, p); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	reply := mustReply(t, g, text(subject, "/craft Iron Sword"))
	if !strings.Contains(reply.Text, "You need") {
		t.Errorf("expected missing-ingredient notice, got %q", reply.Text)
	}

	reply = mustReply(t, g, text(subject, "/craft Health Potion"))
	if !strings.Contains(reply.Text, "Health Potion") || !strings.Contains(reply.Text, "crafting") {
		t.Errorf("expected craft confirmation, got %q", reply.Text)
	}

	got, err := stores.Players.GetBySubject(ctx, subject)
	if err != nil {
		t.Fatalf("GetBySubject failed: %v", err)
	}
	if got.Status != types.StatusCrafting {
		t.Errorf("expected crafting status, got %s", got.Status)
	}
}

func TestCommandsWithoutCharacter(t *testing.T) {
	g, _ := newTestGateway(t)
	subject := types.SubjectID("telegram:1")

	for _, cmd := range []string{"/profile", "/area", "/travel Iron Hills", "/craft Health Potion", "/inventory", "/cancelaction"} {
		reply := mustReply(t, g, text(subject, cmd))
		if !strings.Contains(reply.Text, "/createcharacter") {
			t.Errorf("%s: expected create-character hint, got %q", cmd, reply.Text)
		}
	}
}

func TestUnknownCommandAndFreeText(t *testing.T) {
	g, _ := newTestGateway(t)
	subject := types.SubjectID("telegram:1")

	reply := mustReply(t, g, text(subject, "/fly"))
	if !strings.Contains(reply.Text, "/help") {
		t.Errorf("expected help hint, got %q", reply.Text)
	}

	reply = mustReply(t, g, text(subject, "hello there"))
	if !strings.Contains(reply.Text, "/help") {
		t.Errorf("expected help hint for free text, got %q", reply.Text)
	}
}
