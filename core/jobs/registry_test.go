package jobs

import (
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeProcs is a WaitFunc over a set of pretend processes.
type fakeProcs struct {
	mu     sync.Mutex
	exited map[int]int
	waits  map[int]int
}

func newFakeProcs() *fakeProcs {
	return &fakeProcs{exited: map[int]int{}, waits: map[int]int{}}
}

func (f *fakeProcs) exit(pid, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exited[pid] = status
}

func (f *fakeProcs) wait(pid int) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	status, ok := f.exited[pid]
	if !ok {
		return 0, false, nil
	}
	f.waits[pid]++
	if f.waits[pid] > 1 {
		return 0, false, ErrNotChild
	}
	return status, true, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func TestRegistry_CreateLookupRemove(t *testing.T) {
	r := NewRegistry(WithWaitFunc(newFakeProcs().wait))

	buf := []byte("sleep 5 &")
	job, err := r.Create(100, string(buf))
	assert.Nil(t, err)
	buf[0] = 'X'

	found, ok := r.Lookup(100)
	assert.True(t, ok)
	assert.Equal(t, job, found)
	assert.Equal(t, "sleep 5 &", found.Command)

	_, ok = r.Lookup(101)
	assert.False(t, ok)

	assert.True(t, r.Remove(100))
	assert.False(t, r.Remove(100))
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Capacity(t *testing.T) {
	r := NewRegistry(WithCapacity(2), WithWaitFunc(newFakeProcs().wait))

	_, err := r.Create(1, "a")
	assert.Nil(t, err)
	_, err = r.Create(2, "b")
	assert.Nil(t, err)
	_, err = r.Create(3, "c")
	assert.ErrorIs(t, err, ErrRegistryFull)

	assert.Equal(t, []int{1, 2}, pids(r.List()))
}

func TestRegistry_ListAndReap(t *testing.T) {
	procs := newFakeProcs()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	r := NewRegistry(WithWaitFunc(procs.wait), WithClock(clock.Now))

	r.Create(10, "sleep 100 &")
	r.Create(11, "false &")
	r.Create(12, "sleep 200 &")

	procs.exit(11, 1)
	clock.now = clock.now.Add(3 * time.Second)

	reports := r.ListAndReap()
	assert.Equal(t, []Report{
		{Job: Job{PID: 10, Command: "sleep 100 &", StartedAt: time.Unix(1000, 0)}},
		{Job: Job{PID: 11, Command: "false &", StartedAt: time.Unix(1000, 0)}, Exited: true, Status: 1, Elapsed: 3 * time.Second},
		{Job: Job{PID: 12, Command: "sleep 200 &", StartedAt: time.Unix(1000, 0)}},
	}, reports)

	// Order is preserved for the survivors.
	assert.Equal(t, []int{10, 12}, pids(r.List()))
}

func TestRegistry_Reap(t *testing.T) {
	procs := newFakeProcs()
	r := NewRegistry(WithWaitFunc(procs.wait))

	r.Create(20, "a &")
	r.Create(21, "b &")
	procs.exit(20, 0)
	procs.exit(21, 130)

	reports := r.Reap()
	assert.Len(t, reports, 2)
	for _, report := range reports {
		assert.True(t, report.Exited)
		assert.GreaterOrEqual(t, int64(report.Elapsed), int64(0))
	}
	assert.Equal(t, 130, reports[1].Status)

	assert.Empty(t, r.Reap())
	assert.Empty(t, r.ListAndReap())
}

func TestRegistry_ReapLeavesRunningJobs(t *testing.T) {
	r := NewRegistry(WithWaitFunc(newFakeProcs().wait))
	r.Create(30, "sleep 1000 &")

	assert.Empty(t, r.Reap())
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_CollectedExactlyOnce(t *testing.T) {
	procs := newFakeProcs()
	r := NewRegistry(WithWaitFunc(procs.wait))

	const jobCount = 50
	for pid := 1; pid <= jobCount; pid++ {
		r.Create(pid, "job &")
		procs.exit(pid, 0)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		collected = map[int]int{}
	)
	record := func(reports []Report) {
		mu.Lock()
		defer mu.Unlock()
		for _, report := range reports {
			if report.Exited {
				collected[report.Job.PID]++
			}
		}
	}

	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			record(r.Reap())
		}()
		go func() {
			defer wg.Done()
			record(r.ListAndReap())
		}()
	}
	wg.Wait()

	assert.Len(t, collected, jobCount)
	for pid, count := range collected {
		assert.Equal(t, 1, count, "pid %d", pid)
	}
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_NotChild(t *testing.T) {
	r := NewRegistry(WithWaitFunc(func(int) (int, bool, error) {
		return 0, false, ErrNotChild
	}))
	r.Create(40, "gone &")

	reports := r.ListAndReap()
	assert.Equal(t, []Report{{
		Job:     reports[0].Job,
		Exited:  true,
		Status:  -1,
		Elapsed: reports[0].Elapsed,
	}}, reports)
	assert.Equal(t, 0, r.Len())
}

func TestWaitNoHang(t *testing.T) {
	cmd := exec.Command("sh", "-c", "exit 3")
	if err := cmd.Start(); err != nil {
		t.Skip("sh not available:", err)
	}
	pid := cmd.Process.Pid
	cmd.Process.Release()

	r := NewRegistry()
	r.Create(pid, "sh -c 'exit 3' &")

	var reports []Report
	assert.Eventually(t, func() bool {
		reports = r.Reap()
		return len(reports) > 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 3, reports[0].Status)
	assert.True(t, reports[0].Exited)

	// Collected processes are gone.
	_, _, err := WaitNoHang(pid)
	assert.ErrorIs(t, err, ErrNotChild)
}

func pids(jobs []Job) []int {
	var out []int
	for _, job := range jobs {
		out = append(out, job.PID)
	}
	return out
}
