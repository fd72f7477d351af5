package voice

import (
	"context"
	"fmt"
	"time"
)

// PlayOptions configures one playback session.
type PlayOptions struct {
	// Volume is the initial gain multiplier, 1.0 = unity.
	Volume float64
	// OnFinished fires exactly once when playback ends, naturally or because
	// the session was stopped. A stopped session reports err == nil, the same
	// as a natural finish.
	OnFinished func(err error)
}

// Connection plays local audio files into one voice channel.
type Connection interface {
	// Play starts an asynchronous playback session for a local file. Only one
	// session runs at a time; starting a new one ends the previous session.
	Play(ctx context.Context, file string, opts PlayOptions) error
	Pause() error
	Resume() error
	// Stop ends the current session. The session's OnFinished still fires.
	Stop()
	// SetVolume changes the gain multiplier; it takes effect on the next
	// audio frame, not retroactively.
	SetVolume(v float64)
	// Position reports how much audio the current session has delivered.
	Position() time.Duration
	ChannelID() string
	Disconnect() error
}

// Dialer establishes voice connections.
type Dialer interface {
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}

// ConnectError means the voice connection could not be established after the
// transport's internal retries.
type ConnectError struct {
	GuildID   string
	ChannelID string
	Err       error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("voice connect failed for guild %s channel %s: %v", e.GuildID, e.ChannelID, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
