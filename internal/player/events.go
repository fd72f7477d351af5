package player

import "github.com/Just-Some-Bots/MusicBot-sub004/internal/queue"

type EventKind int

const (
	EventEntryAdded EventKind = iota
	EventPlay
	EventPause
	EventResume
	EventStop
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventEntryAdded:
		return "entry-added"
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventResume:
		return "resume"
	case EventStop:
		return "stop"
	case EventFinished:
		return "finished-playing"
	}
	return "unknown"
}

// Event is a player lifecycle notification. EventFinished fires for failed
// entries too, carrying the error so consumers can report it.
type Event struct {
	Kind  EventKind
	Entry *queue.Entry
	Err   error
}
