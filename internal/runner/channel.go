package runner

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
)

// DefaultChannelPrefix is used when no prefix is configured.
const DefaultChannelPrefix = "stress-test"

// randomSuffixLen is taken from the random tail of a ULID.
const randomSuffixLen = 8

// ChannelMode selects how channel identifiers are assigned to connections.
type ChannelMode string

const (
	ChannelRandom     ChannelMode = "random"
	ChannelShared     ChannelMode = "shared"
	ChannelSequential ChannelMode = "sequential"
)

// ParseChannelMode converts user input to a ChannelMode.
func ParseChannelMode(s string) (ChannelMode, error) {
	switch mode := ChannelMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "":
		return ChannelRandom, nil
	case ChannelRandom, ChannelShared, ChannelSequential:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown channel mode %q (want random, shared or sequential)", s)
	}
}

// ChannelID returns the identifier for connection i.
func ChannelID(mode ChannelMode, prefix string, i int) string {
	switch mode {
	case ChannelShared:
		return prefix
	case ChannelSequential:
		return prefix + "-" + strconv.Itoa(i)
	default:
		return prefix + "-" + randomSuffix()
	}
}

// ChannelIDs returns n identifiers in dispatch order.
func ChannelIDs(mode ChannelMode, prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = ChannelID(mode, prefix, i)
	}
	return ids
}

func randomSuffix() string {
	s := strings.ToLower(ulid.Make().String())
	return s[len(s)-randomSuffixLen:]
}

// StreamURL builds the stream endpoint for a channel.
func StreamURL(target, channelID string) string {
	return strings.TrimRight(target, "/") + "/sse/connect?channel_id=" + url.QueryEscape(channelID)
}
