package hsm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ruteri/account-generator/interfaces"
)

const slotLabelPrefix = "label:"

type Config struct {
	// Library is the path of the vendor PKCS#11 module (.so / .dylib).
	Library string

	// Slot is either a numeric slot id or "label:<token label>".
	Slot string

	// PIN is the user PIN, already resolved from its credential reference.
	PIN string
}

func (c *Config) Validate() error {
	if c.Library == "" {
		return fmt.Errorf("%w: PKCS#11 library path is required", interfaces.ErrInvalidConfig)
	}
	if c.Slot == "" {
		return fmt.Errorf("%w: slot is required", interfaces.ErrInvalidConfig)
	}
	if _, err := parseSlot(c.Slot); err != nil {
		return err
	}
	if c.PIN == "" {
		return fmt.Errorf("%w: PIN is required", interfaces.ErrInvalidConfig)
	}
	return nil
}

// slotSelector picks a slot either by id or by token label.
type slotSelector struct {
	id    uint
	label string
}

func (s slotSelector) String() string {
	if s.label != "" {
		return slotLabelPrefix + s.label
	}
	return strconv.FormatUint(uint64(s.id), 10)
}

func parseSlot(slot string) (slotSelector, error) {
	if label, ok := strings.CutPrefix(slot, slotLabelPrefix); ok {
		if label == "" {
			return slotSelector{}, fmt.Errorf("%w: empty token label in slot %q", interfaces.ErrInvalidConfig, slot)
		}
		return slotSelector{label: label}, nil
	}

	id, err := strconv.ParseUint(slot, 10, 32)
	if err != nil {
		return slotSelector{}, fmt.Errorf("%w: slot %q is neither a number nor %s<token>", interfaces.ErrInvalidConfig, slot, slotLabelPrefix)
	}
	return slotSelector{id: uint(id)}, nil
}
