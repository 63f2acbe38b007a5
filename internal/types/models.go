// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

// SessionStatus is the lifecycle state of a guided dialogue session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// FieldValues holds the validated values collected by a dialogue,
// keyed by field name. Values are stored as strings; numeric fields
// are parsed by their consumers.
type FieldValues map[string]string

// Clone returns a shallow copy so callers cannot mutate stored fields.
func (f FieldValues) Clone() FieldValues {
	out := make(FieldValues, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// DialogueSession is one in-progress guided dialogue for a subject.
// Fields only ever contains values for steps below StepIndex, and a
// field is never overwritten once set.
type DialogueSession struct {
	SubjectID SubjectID     `json:"subject_id"`
	StepIndex int           `json:"step_index"`
	Fields    FieldValues   `json:"fields"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

type ActionKind string

const (
	ActionTravel ActionKind = "travel"
	ActionCraft  ActionKind = "craft"
)

// ActionClass groups action kinds that cannot coexist in pending state
// for one subject.
type ActionClass string

const (
	ClassMovement ActionClass = "movement"
	ClassWork     ActionClass = "work"
)

type ActionState string

const (
	ActionPending   ActionState = "pending"
	ActionCompleted ActionState = "completed"
	ActionCancelled ActionState = "cancelled"
)

// ScheduledAction is a durable record of a deferred action. ReadyAt is
// an absolute timestamp so recovery after restart needs no elapsed-time
// bookkeeping.
type ScheduledAction struct {
	ID        ActionID        `json:"id"`
	SubjectID SubjectID       `json:"subject_id"`
	Kind      ActionKind      `json:"kind"`
	Class     ActionClass     `json:"class"`
	Payload   json.RawMessage `json:"payload"`
	ReadyAt   time.Time       `json:"ready_at"`
	State     ActionState     `json:"state"`
	Attempts  int             `json:"attempts"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type PlayerStatus string

const (
	StatusIdle       PlayerStatus = "idle"
	StatusTravelling PlayerStatus = "travelling"
	StatusCrafting   PlayerStatus = "crafting"
)

type InventoryItem struct {
	ItemID   int `json:"item_id"`
	Quantity int `json:"quantity"`
}

// Player is the durable player record. AppliedActions holds the IDs of
// completed actions whose effects have already been applied; it is the
// idempotency marker that makes completion re-delivery safe.
type Player struct {
	ID                PlayerID        `json:"id"`
	SubjectID         SubjectID       `json:"subject_id"`
	Name              string          `json:"name"`
	Class             string          `json:"class"`
	JobClassID        int             `json:"job_class_id"`
	Level             int             `json:"level"`
	Experience        int             `json:"experience"`
	HP                int             `json:"hp"`
	MaxHP             int             `json:"max_hp"`
	MP                int             `json:"mp"`
	MaxMP             int             `json:"max_mp"`
	Attack            int             `json:"attack"`
	Defense           int             `json:"defense"`
	Strength          int             `json:"strength"`
	Intelligence      int             `json:"intelligence"`
	Dexterity         int             `json:"dexterity"`
	Constitution      int             `json:"constitution"`
	CurrentAreaID     int             `json:"current_area_id"`
	DestinationAreaID int             `json:"destination_area_id,omitempty"`
	Status            PlayerStatus    `json:"status"`
	Currency          int             `json:"currency"`
	Inventory         []InventoryItem `json:"inventory"`
	AppliedActions    []ActionID      `json:"applied_actions"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	LastLogin         time.Time       `json:"last_login"`
}

// ActionApplied reports whether the given action's effect is already
// recorded on the player.
func (p *Player) ActionApplied(id ActionID) bool {
	for _, a := range p.AppliedActions {
		if a == id {
			return true
		}
	}
	return false
}

// ItemQuantity returns how many of the given item the player carries.
func (p *Player) ItemQuantity(itemID int) int {
	for _, it := range p.Inventory {
		if it.ItemID == itemID {
			return it.Quantity
		}
	}
	return 0
}

// AddItem adjusts the quantity of an item, removing the row when the
// quantity drops to zero or below.
func (p *Player) AddItem(itemID, delta int) {
	for i := range p.Inventory {
		if p.Inventory[i].ItemID == itemID {
			p.Inventory[i].Quantity += delta
			if p.Inventory[i].Quantity <= 0 {
				p.Inventory = append(p.Inventory[:i], p.Inventory[i+1:]...)
			}
			return
		}
	}
	if delta > 0 {
		p.Inventory = append(p.Inventory, InventoryItem{ItemID: itemID, Quantity: delta})
	}
}

// JournalEntry is one line of a subject's append-only activity log.
type JournalEntry struct {
	ID        JournalEntryID  `json:"id"`
	SubjectID SubjectID       `json:"subject_id"`
	Seq       int64           `json:"seq"`
	Type      string          `json:"type"`
	At        time.Time       `json:"at"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// InboundEvent is a raw user input delivered by a transport adapter.
// Exactly one of Text or Callback is set: Text carries a message or
// command, Callback carries a choice-button token.
type InboundEvent struct {
	Source    string    `json:"source"`
	SubjectID SubjectID `json:"subject_id"`
	Text      string    `json:"text,omitempty"`
	Callback  string    `json:"callback,omitempty"`
}

// Choice is one selectable option attached to a Reply.
type Choice struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// Reply is an outbound response. A non-empty Choices slice asks the
// transport to render selectable buttons.
type Reply struct {
	Text    string   `json:"text"`
	Choices []Choice `json:"choices,omitempty"`
}
