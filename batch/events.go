package batch

// Message keys carried by progress events. Front ends translate them.
const (
	KeySigned         = "progress.signed"
	KeyArchive        = "progress.archive"
	KeyArchiveSigned  = "progress.archive_signed"
	KeyCompleted      = "completion.success"
	KeyCompletedError = "completion.error"
)

// Event reports progress of a run.
type Event struct {
	Progress    int            `json:"progress"`
	MessageKey  string         `json:"messageKey"`
	MessageData map[string]any `json:"messageData,omitempty"`
}

// Completion is emitted exactly once at the end of a run.
type Completion struct {
	Success     bool     `json:"success"`
	OutputDir   string   `json:"outputDir,omitempty"`
	Message     string   `json:"message,omitempty"`
	FailedFiles []string `json:"failedFiles"`
	Error       string   `json:"error,omitempty"`
}

// Sink receives the events of a run in processing order.
type Sink interface {
	// Progress is called once per processed file.
	Progress(Event)
	// Status announces a phase, such as the start of an archive.
	Status(Event)
	// Complete is called once when the run ends.
	Complete(Completion)
}

// SinkFuncs adapts functions to a Sink. Nil functions are skipped.
type SinkFuncs struct {
	OnProgress func(Event)
	OnStatus   func(Event)
	OnComplete func(Completion)
}

func (s SinkFuncs) Progress(e Event) {
	if s.OnProgress != nil {
		s.OnProgress(e)
	}
}

func (s SinkFuncs) Status(e Event) {
	if s.OnStatus != nil {
		s.OnStatus(e)
	}
}

func (s SinkFuncs) Complete(c Completion) {
	if s.OnComplete != nil {
		s.OnComplete(c)
	}
}

// MessageType tells which field of a Message is set.
type MessageType string

const (
	MessageProgress MessageType = "progress"
	MessageStatus   MessageType = "status"
	MessageComplete MessageType = "complete"
)

// Message is the envelope ChannelSink sends.
type Message struct {
	Type       MessageType `json:"type"`
	Event      *Event      `json:"event,omitempty"`
	Completion *Completion `json:"completion,omitempty"`
}

// ChannelSink forwards events to a channel. Sends block, so the receiver
// must keep draining until the completion message arrives.
type ChannelSink chan<- Message

func (c ChannelSink) Progress(e Event) {
	c <- Message{Type: MessageProgress, Event: &e}
}

func (c ChannelSink) Status(e Event) {
	c <- Message{Type: MessageStatus, Event: &e}
}

func (c ChannelSink) Complete(done Completion) {
	c <- Message{Type: MessageComplete, Completion: &done}
}

type nopSink struct{}

func (nopSink) Progress(Event)      {}
func (nopSink) Status(Event)        {}
func (nopSink) Complete(Completion) {}
