// Package pipeline describes a parsed command line: the stages of a pipeline,
// its redirections and whether it runs in the background.
package pipeline

import (
	"encoding/json"
	"strings"
)

// Stage is one command of a pipeline, argv style. The first element is the
// program name.
type Stage []string

// Name returns the program name of the stage.
func (s Stage) Name() string {
	if len(s) == 0 {
		return ""
	}
	return s[0]
}

// Spec is the structured form of one input line.
//
// A Spec is either well formed (Err is nil) or a parse error (Err is set), in
// which case none of its stages may be executed.
type Spec struct {
	// Stages holds the commands connected by pipes, in order.
	Stages []Stage `json:"stages"`
	// Input is read by the first stage if non-empty.
	Input string `json:"input,omitempty"`
	// Output is written by the last stage if non-empty.
	Output string `json:"output,omitempty"`
	// Background is set if the line ended with '&'.
	Background bool `json:"background,omitempty"`

	// Err holds the parse diagnostic, if any.
	Err error `json:"-"`
}

// Empty is true for a well formed spec with nothing to run, e.g. a blank line.
func (s *Spec) Empty() bool {
	return s.Err == nil && len(s.Stages) == 0
}

// Program returns the program name of the first stage.
func (s *Spec) Program() string {
	if len(s.Stages) == 0 {
		return ""
	}
	return s.Stages[0].Name()
}

// Tail returns a copy of the spec without its first stage. The input
// redirection belongs to the first stage and is dropped.
func (s *Spec) Tail() *Spec {
	if len(s.Stages) < 2 {
		return &Spec{}
	}
	return &Spec{
		Stages:     append([]Stage(nil), s.Stages[1:]...),
		Output:     s.Output,
		Background: s.Background,
	}
}

// String renders the spec back into shell syntax, quoting as needed.
func (s *Spec) String() string {
	var sb strings.Builder
	for i, stage := range s.Stages {
		if i > 0 {
			sb.WriteString(" | ")
		}
		for j, arg := range stage {
			if j > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(quote(arg))
		}
		if i == 0 && s.Input != "" {
			sb.WriteString(" < ")
			sb.WriteString(quote(s.Input))
		}
	}
	if s.Output != "" {
		sb.WriteString(" > ")
		sb.WriteString(quote(s.Output))
	}
	if s.Background {
		sb.WriteString(" &")
	}
	return sb.String()
}

func quote(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\n'\"\\|<>&") {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
}

// Encode serializes a well formed spec for hand off to another process.
func Encode(s *Spec) (string, error) {
	out, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Decode is the inverse of Encode.
func Decode(data string) (*Spec, error) {
	var out Spec
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, err
	}
	if len(out.Stages) == 0 {
		return nil, ErrEmptyCommand
	}
	for _, stage := range out.Stages {
		if len(stage) == 0 {
			return nil, ErrEmptyCommand
		}
	}
	return &out, nil
}
