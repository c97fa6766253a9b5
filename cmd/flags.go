package cmd

import (
	"fmt"

	"github.com/spf13/pflag"
)

// modeFlag is a pflag.Value that only accepts known render modes, so a
// bad value fails at flag parse time instead of surfacing later as a
// config validation error.
type modeFlag struct {
	value string
}

var _ pflag.Value = (*modeFlag)(nil)

func newModeFlag(def string) *modeFlag { return &modeFlag{value: def} }

func (m *modeFlag) String() string { return m.value }

func (m *modeFlag) Set(v string) error {
	switch v {
	case "streaming", "eager":
		m.value = v
		return nil
	default:
		return fmt.Errorf("invalid render mode %q (want streaming or eager)", v)
	}
}

func (m *modeFlag) Type() string { return "mode" }
