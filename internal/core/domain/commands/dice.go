package commands

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"

	"tombot/internal/core/domain"
	"tombot/internal/core/domain/command"
	"tombot/internal/core/domain/event"
	"tombot/internal/core/port"
)

const (
	MaxGroupDice = 50
	MaxDice      = 1000
)

var diceRegex = regexp.MustCompile(`(?i)(?P<number>\d+)d(?P<sides>\d+)\s?(?:(?P<operator>[-+/*x%^])\s?(?P<modifier>\d+))?`)

// Dice rolls XdY with an optional modifier, e.g. "roll 2d10 + 5".
type Dice struct {
	roll func(sides int) int
}

func NewDice() *Dice {
	return &Dice{roll: func(sides int) int {
		return rand.IntN(sides) + 1
	}}
}

func (d *Dice) Name() string {
	return "dice"
}

func (d *Dice) Register(registry *command.Registry, _ *event.Bus) error {
	registry.Register([]string{"roll"}, port.CommandFunc(d.respond), command.WithCategory("fun"))
	return nil
}

func (d *Dice) respond(_ context.Context, message domain.Message) (string, error) {
	match := diceRegex.FindStringSubmatch(message.Query())
	if match == nil {
		return "", nil
	}

	number, err := strconv.Atoi(match[1])
	if err != nil {
		return "", nil
	}
	sides, err := strconv.Atoi(match[2])
	if err != nil || number < 1 || sides < 1 {
		return "", nil
	}

	if message.IsGroup && number > MaxGroupDice {
		return "", nil
	}
	if number > MaxDice {
		return "That's too many dice.", nil
	}

	rolls := make([]string, 0, number)
	sum := 0
	for range number {
		r := d.roll(sides)
		sum += r
		rolls = append(rolls, strconv.Itoa(r))
	}

	result := strings.Join(rolls, " + ")
	if number > 1 {
		result += " = " + strconv.Itoa(sum)
	}

	operator, modifierText := match[3], match[4]
	if operator == "" {
		return result, nil
	}

	modifier, err := strconv.Atoi(modifierText)
	if err != nil {
		return result, nil
	}

	value, ok := applyModifier(float64(sum), operator, float64(modifier))
	if !ok {
		return result + ", cannot divide by zero.", nil
	}

	return fmt.Sprintf("%s, %d %s %d = %s", result, sum, operator, modifier,
		strconv.FormatFloat(value, 'f', -1, 64)), nil
}

func applyModifier(sum float64, operator string, modifier float64) (float64, bool) {
	switch operator {
	case "+":
		return sum + modifier, true
	case "-":
		return sum - modifier, true
	case "*", "x", "X":
		return sum * modifier, true
	case "/":
		if modifier == 0 {
			return 0, false
		}
		return sum / modifier, true
	case "%":
		if modifier == 0 {
			return 0, false
		}
		return math.Mod(sum, modifier), true
	case "^":
		return math.Pow(sum, modifier), true
	}

	return sum, true
}
