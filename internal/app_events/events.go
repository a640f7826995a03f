package appevents

// AppEvent is a marker interface for events sent from the TUI to the App's logic controller.
// Only types embedding Event satisfy it.
type AppEvent interface {
	isAppEvent()
}

// Event is embedded by event types to satisfy AppEvent.
type Event struct{}

func (Event) isAppEvent() {}

// AppUIMessage is a marker interface for messages sent from the App to the TUI.
type AppUIMessage interface {
	isUIMessage()
}

// UIMessage is embedded by message types to satisfy AppUIMessage.
type UIMessage struct{}

func (UIMessage) isUIMessage() {}

// Error reports a failure from the App to the TUI.
type Error struct {
	UIMessage
	Err error
}

func (e Error) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}
