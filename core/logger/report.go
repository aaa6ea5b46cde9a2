package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var logEntry LogEntry
		if err := decoder.Decode(&logEntry); err != nil {
			return err
		}

		handler(&logEntry)
	}
	return nil
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	Sessions       StrCounter `json:"sessions"`
	InvalidEntries int        `json:"invalid_entries,omitempty"`

	RunCommand RunCommandReport `json:"run_command_report"`
	ParseError ParseErrorReport `json:"parse_error_report"`
	Jobs       JobReport        `json:"job_report"`
}

// Update adds the entry to the report.
func (r *Report) Update(le *LogEntry) {
	r.LogEntries++
	if le.SessionID != "" {
		r.Sessions.Increment(le.SessionID)
	}

	switch event := le.GetEvent().(type) {
	case *RunCommand:
		r.RunCommand.update(event)
	case *ParseError:
		r.ParseError.update(event)
	case *JobStarted:
		r.Jobs.Started++
	case *JobExited:
		r.Jobs.update(event)
	case *JobUntracked:
		r.Jobs.Untracked++
	default:
		r.InvalidEntries++
	}
}

type RunCommandReport struct {
	// Name of the program of the first stage.
	CommandNames StrCounter `json:"command_names"`
	// Number of stages in each pipeline.
	PipelineLengths StrCounter `json:"pipeline_lengths"`
	Builtins        int        `json:"builtins"`
	Background      int        `json:"background"`
	// Foreground commands that didn't exit successfully.
	Failures *PathCounter `json:"failures"`
}

func (r *RunCommandReport) update(rc *RunCommand) {
	if len(rc.Stages) > 0 && len(rc.Stages[0]) > 0 {
		r.CommandNames.Increment(rc.Stages[0][0])
	}
	r.PipelineLengths.Increment(strconv.Itoa(len(rc.Stages)))
	if rc.Builtin {
		r.Builtins++
	}
	if rc.Background {
		r.Background++
	}

	if rc.Status != 0 {
		if r.Failures == nil {
			r.Failures = NewPathCounter("line", "status")
		}
		r.Failures.Increment(rc.Line, strconv.Itoa(rc.Status))
	}
}

type ParseErrorReport struct {
	Errors StrCounter `json:"errors"`
}

func (r *ParseErrorReport) update(pe *ParseError) {
	r.Errors.Increment(pe.Error)
}

type JobReport struct {
	Started   int        `json:"started"`
	Exited    int        `json:"exited"`
	Untracked int        `json:"untracked"`
	Statuses  StrCounter `json:"statuses"`
	// Collectors counts which path (reaper or jobs) removed the job.
	Collectors StrCounter `json:"collectors"`

	TotalSeconds float64 `json:"total_seconds"`
	MaxSeconds   float64 `json:"max_seconds"`
}

func (r *JobReport) update(je *JobExited) {
	r.Exited++
	r.Statuses.Increment(fmt.Sprintf("%d", je.Status))
	r.Collectors.Increment(je.Collector)
	r.TotalSeconds += je.ElapsedSeconds
	if je.ElapsedSeconds > r.MaxSeconds {
		r.MaxSeconds = je.ElapsedSeconds
	}
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implemnts custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts the number of tuples seen.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic("wrong number of columns to add")
	}

	ctr.internal[toKey(toAdd...)]++
}

// MarshalJSON implemnts custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	var out []Count
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
