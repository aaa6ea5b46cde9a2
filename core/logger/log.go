package logger

// Event is one of the event types that can be stored in a LogEntry.
type Event interface {
	isEvent()
}

// LogEntry is a single line of the event log. Exactly one event field is set.
type LogEntry struct {
	TimestampMicros int64  `json:"timestamp_micros"`
	SessionID       string `json:"session_id,omitempty"`

	RunCommand   *RunCommand   `json:"run_command,omitempty"`
	ParseError   *ParseError   `json:"parse_error,omitempty"`
	JobStarted   *JobStarted   `json:"job_started,omitempty"`
	JobExited    *JobExited    `json:"job_exited,omitempty"`
	JobUntracked *JobUntracked `json:"job_untracked,omitempty"`
}

// GetEvent returns the event stored in the entry or nil if there is none.
func (le *LogEntry) GetEvent() Event {
	switch {
	case le.RunCommand != nil:
		return le.RunCommand
	case le.ParseError != nil:
		return le.ParseError
	case le.JobStarted != nil:
		return le.JobStarted
	case le.JobExited != nil:
		return le.JobExited
	case le.JobUntracked != nil:
		return le.JobUntracked
	default:
		return nil
	}
}

func (le *LogEntry) setEvent(event Event) {
	switch event := event.(type) {
	case *RunCommand:
		le.RunCommand = event
	case *ParseError:
		le.ParseError = event
	case *JobStarted:
		le.JobStarted = event
	case *JobExited:
		le.JobExited = event
	case *JobUntracked:
		le.JobUntracked = event
	}
}

// RunCommand is logged for every line handed to the executor.
type RunCommand struct {
	Line       string     `json:"line"`
	Stages     [][]string `json:"stages"`
	Builtin    bool       `json:"builtin,omitempty"`
	Background bool       `json:"background,omitempty"`
	Status     int        `json:"status"`
}

// ParseError is logged for lines that couldn't be parsed.
type ParseError struct {
	Line  string `json:"line"`
	Error string `json:"error"`
}

// JobStarted is logged when a background job is registered.
type JobStarted struct {
	Pid     int    `json:"pid"`
	Command string `json:"command"`
}

// JobExited is logged when a background job is collected.
type JobExited struct {
	Pid            int     `json:"pid"`
	Command        string  `json:"command"`
	Status         int     `json:"status"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	// Collector is "reaper" or "jobs" depending on which path removed the job.
	Collector string `json:"collector"`
}

// JobUntracked is logged when a background job couldn't be registered.
type JobUntracked struct {
	Pid     int    `json:"pid"`
	Command string `json:"command"`
	Error   string `json:"error"`
}

func (*RunCommand) isEvent()   {}
func (*ParseError) isEvent()   {}
func (*JobStarted) isEvent()   {}
func (*JobExited) isEvent()    {}
func (*JobUntracked) isEvent() {}
