package executor

import (
	"os"
	"testing"

	"github.com/josephlewis42/ensishell/core/pipeline"
	"github.com/stretchr/testify/assert"
)

func TestNewPlan(t *testing.T) {
	for stages := 1; stages <= 5; stages++ {
		spec := &pipeline.Spec{Input: "in", Output: "out"}
		for i := 0; i < stages; i++ {
			spec.Stages = append(spec.Stages, pipeline.Stage{"cat"})
		}

		p, err := newPlan(spec)
		assert.Nil(t, err)
		assert.Equal(t, stages-1, p.pipes)

		for i, stage := range p.stages {
			first, last := i == 0, i == stages-1
			assert.Equal(t, first, stage.stdin == nil, "stage %d stdin", i)
			assert.Equal(t, last, stage.stdout == nil, "stage %d stdout", i)
			assert.Equal(t, first, stage.inputPath == "in", "stage %d input", i)
			assert.Equal(t, last, stage.outputPath == "out", "stage %d output", i)

			// Adjacent stages share a pipe.
			if !last {
				assert.NotNil(t, p.stages[i+1].stdin)
			}
		}

		p.close()
		for _, stage := range p.stages {
			assert.Nil(t, stage.stdin)
			assert.Nil(t, stage.stdout)
		}
	}
}

func TestNewPlan_empty(t *testing.T) {
	_, err := newPlan(&pipeline.Spec{})
	assert.ErrorIs(t, err, pipeline.ErrEmptyCommand)

	_, err = newPlan(&pipeline.Spec{Stages: []pipeline.Stage{{"ls"}, {}}})
	assert.ErrorIs(t, err, pipeline.ErrEmptyCommand)
}

func openFDs(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Skip("can't inspect descriptors:", err)
	}
	return len(entries)
}

func TestRunPipeline_closesDescriptors(t *testing.T) {
	out := newTestOutput(t, "stdout")
	errOut := newTestOutput(t, "stderr")
	devNull, err := os.Open(os.DevNull)
	if err != nil {
		t.Fatal(err)
	}
	defer devNull.Close()
	std := stdio{in: devNull, out: out.File, err: errOut.File}

	spec := pipeline.Parse("echo a b c | tr ' ' '\\n' | sort -r | head -n 1")

	// The first run initializes runtime descriptors like the poller.
	assert.Equal(t, ExitSuccess, runPipeline(spec, std))

	before := openFDs(t)
	assert.Equal(t, ExitSuccess, runPipeline(spec, std))
	assert.Equal(t, ExitSuccess, runPipeline(pipeline.Parse("echo x | no-such-program-ensishell | cat"), std))
	assert.Equal(t, ExitFailure, runPipeline(pipeline.Parse("cat < /does/not/exist | cat > /not/a/dir/out"), std))
	after := openFDs(t)

	assert.Equal(t, before, after, "orchestrator leaked descriptors")
	assert.Equal(t, "c\nc\n", out.String())
}
