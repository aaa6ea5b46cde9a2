package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJsonLinesRoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	session := NewJsonLinesLogRecorder(buf).NewSession()
	assert.NotEmpty(t, session.SessionID())

	events := []Event{
		&RunCommand{Line: "echo hi | wc -l", Stages: [][]string{{"echo", "hi"}, {"wc", "-l"}}},
		&ParseError{Line: "ls |", Error: "empty command in pipeline"},
		&JobStarted{Pid: 42, Command: "sleep 5 &"},
		&JobExited{Pid: 42, Command: "sleep 5 &", Status: 0, ElapsedSeconds: 5.01, Collector: "reaper"},
		&JobUntracked{Pid: 43, Command: "sleep 6 &", Error: "job table full"},
	}
	for _, event := range events {
		assert.Nil(t, session.Record(event))
	}

	assert.Equal(t, len(events), strings.Count(buf.String(), "\n"))

	var got []Event
	err := ReadJSONLinesLog(buf, func(le *LogEntry) {
		assert.Equal(t, session.SessionID(), le.SessionID)
		assert.NotZero(t, le.TimestampMicros)
		got = append(got, le.GetEvent())
	})
	assert.Nil(t, err)
	assert.Equal(t, events, got)
}

func TestNilSessionLogger(t *testing.T) {
	var session *SessionLogger
	assert.Nil(t, session.Record(&JobStarted{Pid: 1}))
	assert.Nil(t, NewNopLogger().Sessionless().Record(&JobStarted{Pid: 1}))
}

func TestReport(t *testing.T) {
	entries := []*LogEntry{
		{SessionID: "a", RunCommand: &RunCommand{Line: "ls &", Stages: [][]string{{"ls"}}, Background: true}},
		{SessionID: "a", RunCommand: &RunCommand{Line: "jobs", Stages: [][]string{{"jobs"}}, Builtin: true}},
		{SessionID: "a", RunCommand: &RunCommand{Line: "false | true", Stages: [][]string{{"false"}, {"true"}}}},
		{SessionID: "b", RunCommand: &RunCommand{Line: "false", Stages: [][]string{{"false"}}, Status: 1}},
		{SessionID: "b", ParseError: &ParseError{Line: "|", Error: "empty command in pipeline"}},
		{SessionID: "b", JobStarted: &JobStarted{Pid: 1}},
		{SessionID: "b", JobExited: &JobExited{Pid: 1, Status: 0, ElapsedSeconds: 2, Collector: "reaper"}},
		{SessionID: "b", JobExited: &JobExited{Pid: 2, Status: 1, ElapsedSeconds: 5, Collector: "jobs"}},
		{SessionID: "b", JobUntracked: &JobUntracked{Pid: 3}},
		{SessionID: "c"},
	}

	var report Report
	for _, le := range entries {
		report.Update(le)
	}

	assert.Equal(t, 10, report.LogEntries)
	assert.Equal(t, 1, report.InvalidEntries)
	assert.Equal(t, 3, report.Sessions.Get("a"))
	assert.Equal(t, 2, report.RunCommand.CommandNames.Get("false"))
	assert.Equal(t, 1, report.RunCommand.PipelineLengths.Get("2"))
	assert.Equal(t, 1, report.RunCommand.Builtins)
	assert.Equal(t, 1, report.RunCommand.Background)
	assert.Equal(t, 1, report.ParseError.Errors.Get("empty command in pipeline"))
	assert.Equal(t, 1, report.Jobs.Started)
	assert.Equal(t, 2, report.Jobs.Exited)
	assert.Equal(t, 1, report.Jobs.Untracked)
	assert.Equal(t, 1, report.Jobs.Collectors.Get("jobs"))
	assert.Equal(t, 7.0, report.Jobs.TotalSeconds)
	assert.Equal(t, 5.0, report.Jobs.MaxSeconds)

	out, err := json.Marshal(&report)
	assert.Nil(t, err)
	assert.Contains(t, string(out), `"failures":[{"count":1,"event":{"line":"false","status":"1"}}]`)
}
