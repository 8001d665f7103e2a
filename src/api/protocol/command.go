// Package protocol implements the three framed command exchanges (upload,
// download, remove) over an already connected byte stream, plus a Client
// that opens one connection per command.
package protocol

import (
	"fmt"

	"github.com/danmuck/s25_files/src/api/transport"
)

// Command selects one exchange; it is written as a fixed 4-byte ASCII tag.
type Command uint8

const (
	Upload Command = iota + 1
	Download
	Remove
)

var commandTags = map[Command][transport.TagSize]byte{
	Upload:   {'U', 'P', 'L', 'D'},
	Download: {'D', 'O', 'W', 'N'},
	Remove:   {'R', 'E', 'M', 'F'},
}

// Tag returns the wire tag. Unknown commands return the zero tag.
func (c Command) Tag() [transport.TagSize]byte {
	return commandTags[c]
}

func (c Command) String() string {
	switch c {
	case Upload:
		return "upload"
	case Download:
		return "download"
	case Remove:
		return "remove"
	default:
		return fmt.Sprintf("command(%d)", uint8(c))
	}
}

// ParseCommand maps a received tag back to its command.
func ParseCommand(tag [transport.TagSize]byte) (Command, error) {
	for c, t := range commandTags {
		if t == tag {
			return c, nil
		}
	}
	return 0, transport.NewError(transport.KindProtocol, "command", "", fmt.Errorf("unknown command tag %q", tag[:]))
}
