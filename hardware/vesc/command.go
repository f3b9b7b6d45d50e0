package vesc

import "fmt"

type Command_t uint8

const (
	COMMAND_FW_VERSION Command_t = 0x00
	COMMAND_GET_VALUES Command_t = 0x04
	COMMAND_ALIVE      Command_t = 0x1e
)

func (c Command_t) String() string {
	switch c {
	case COMMAND_FW_VERSION:
		return "FW_VERSION"
	case COMMAND_GET_VALUES:
		return "GET_VALUES"
	case COMMAND_ALIVE:
		return "ALIVE"
	default:
		return fmt.Sprintf("Command_t(%d)", uint8(c))
	}
}
