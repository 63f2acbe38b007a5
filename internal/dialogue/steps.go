// internal/dialogue/steps.go
package dialogue

import (
	"strconv"
	"strings"

	"github.com/user/telerpg/internal/types"
)

// InputKind distinguishes free-text messages from choice-button
// callbacks. A step only consumes input of its own kind; everything
// else is left for other handlers.
type InputKind int

const (
	InputText InputKind = iota
	InputChoice
)

// Choice is one selectable option of a choice step. Token is the
// callback payload, Value the stored field value.
type Choice struct {
	Label string
	Token string
	Value string
}

// Step is one prompt/validate/store unit of a guided dialogue. Steps
// are immutable; the ordered slice defines the dialogue's shape.
type Step struct {
	// Name is the field name for choice steps and a label otherwise.
	Name   string
	Prompt string
	Kind   InputKind
	// Choices is set for InputChoice steps.
	Choices []Choice
	// Validate gates free-text input. Nil means any text is accepted.
	Validate Validator
	// Collect transforms accepted text into stored field values. A
	// single step may produce several fields (the stat distribution
	// step stores four).
	Collect func(raw string) types.FieldValues
}

// ReplyChoices converts the step's choices for transport rendering.
func (s *Step) ReplyChoices() []types.Choice {
	if len(s.Choices) == 0 {
		return nil
	}
	out := make([]types.Choice, len(s.Choices))
	for i, c := range s.Choices {
		out[i] = types.Choice{Label: c.Label, Token: c.Token}
	}
	return out
}

const (
	nameMinLen   = 2
	nameMaxLen   = 20
	statArity    = 4
	statBudget   = 10
	creationIntr = "🎭 *Player Creation* 🎭\n\nLet's create your player! I'll guide you through the process.\n\n"
)

// CreateCharacterSteps returns the character creation dialogue:
// name, class choice, stat distribution.
func CreateCharacterSteps() []Step {
	return []Step{
		{
			Name: "name",
			Prompt: creationIntr +
				"First, what would you like to name your player?\n" +
				"_(Please enter a name between 2-20 characters)_",
			Kind:     InputText,
			Validate: allOf(nameLength(nameMinLen, nameMaxLen), nameCharset()),
			Collect: func(raw string) types.FieldValues {
				return types.FieldValues{"name": raw}
			},
		},
		{
			Name:   "class",
			Prompt: "⚔️ *Choose your class:*\n\nEach class has unique abilities and playstyles:",
			Kind:   InputChoice,
			Choices: []Choice{
				{Label: "⚔️ Warrior", Token: "class_warrior", Value: "Warrior"},
				{Label: "🔮 Mage", Token: "class_mage", Value: "Mage"},
				{Label: "🗡️ Rogue", Token: "class_rogue", Value: "Rogue"},
				{Label: "🏹 Archer", Token: "class_archer", Value: "Archer"},
			},
		},
		{
			Name: "stats",
			Prompt: "📊 *Distribute your starting stats:*\n\n" +
				"You have *10 points* to distribute among these stats:\n" +
				"• Strength (affects physical damage)\n" +
				"• Intelligence (affects magic power)\n" +
				"• Dexterity (affects speed and accuracy)\n" +
				"• Constitution (affects health)\n\n" +
				"Please enter your distribution in this format:\n" +
				"`Str Int Dex Con` (e.g., `3 2 3 2`)\n\n" +
				"Each stat must be at least 1, and the total must equal 10.",
			Kind:     InputText,
			Validate: statDistribution(statArity, statBudget),
			Collect: func(raw string) types.FieldValues {
				parts := strings.Fields(raw)
				nums := make([]int, len(parts))
				for i, p := range parts {
					nums[i], _ = strconv.Atoi(p)
				}
				return types.FieldValues{
					"strength":     strconv.Itoa(nums[0]),
					"intelligence": strconv.Itoa(nums[1]),
					"dexterity":    strconv.Itoa(nums[2]),
					"constitution": strconv.Itoa(nums[3]),
				}
			},
		},
	}
}
