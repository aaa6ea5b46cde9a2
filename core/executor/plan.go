package executor

import (
	"fmt"
	"os"

	"github.com/josephlewis42/ensishell/core/pipeline"
)

// stagePlan is the descriptor wiring of one stage, fixed before any stage
// starts.
type stagePlan struct {
	args []string

	// stdin is the read end of the pipe from the previous stage, nil for the
	// first stage.
	stdin *os.File
	// stdout is the write end of the pipe to the next stage, nil for the last
	// stage.
	stdout *os.File

	// inputPath is opened read only as stdin of the first stage.
	inputPath string
	// outputPath is created or truncated as stdout of the last stage.
	outputPath string
}

// closePipes releases the pipe ends assigned to the stage.
func (s *stagePlan) closePipes() {
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}
	if s.stdout != nil {
		s.stdout.Close()
		s.stdout = nil
	}
}

type plan struct {
	stages []*stagePlan
	pipes  int
}

// newPlan allocates one pipe per stage boundary and assigns every pipe end to
// exactly one stage.
func newPlan(spec *pipeline.Spec) (*plan, error) {
	if len(spec.Stages) == 0 {
		return nil, pipeline.ErrEmptyCommand
	}

	p := &plan{}
	for _, stage := range spec.Stages {
		if len(stage) == 0 {
			p.close()
			return nil, pipeline.ErrEmptyCommand
		}
		p.stages = append(p.stages, &stagePlan{args: stage})
	}

	for i := 0; i < len(p.stages)-1; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			p.close()
			return nil, fmt.Errorf("pipe: %w", err)
		}
		p.pipes++
		p.stages[i].stdout = w
		p.stages[i+1].stdin = r
	}

	p.stages[0].inputPath = spec.Input
	p.stages[len(p.stages)-1].outputPath = spec.Output

	return p, nil
}

// close releases every pipe end that hasn't been handed off yet.
func (p *plan) close() {
	for _, stage := range p.stages {
		stage.closePipes()
	}
}
