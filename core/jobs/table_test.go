package jobs

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fakePoller struct {
	mu       sync.Mutex
	statuses map[int]Status
	errs     map[int]error
	calls    map[int]int
}

func newFakePoller() *fakePoller {
	return &fakePoller{
		statuses: make(map[int]Status),
		errs:     make(map[int]error),
		calls:    make(map[int]int),
	}
}

func (f *fakePoller) Poll(pid int) (Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[pid]++
	if err, ok := f.errs[pid]; ok {
		return Status{}, err
	}
	return f.statuses[pid], nil
}

func (f *fakePoller) exit(pid, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[pid] = Status{Exited: true, Code: code}
}

func (f *fakePoller) fail(pid int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[pid] = err
}

func (f *fakePoller) callCount(pid int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[pid]
}

func pids(jobs []Job) []int {
	var out []int
	for _, j := range jobs {
		out = append(out, j.PID)
	}
	return out
}

func TestNewTableDefaults(t *testing.T) {
	table := NewTable(0, nil)
	assert.Equal(t, DefaultCapacity, table.Cap())
	assert.IsType(t, WaitPoller{}, table.poller)
	assert.Equal(t, 0, table.Len())
}

func TestTableAdd(t *testing.T) {
	table := NewTable(4, newFakePoller())

	buf := []byte("sleep 5")
	first, err := table.Add(100, string(buf))
	require.NoError(t, err)
	buf[0] = 'X'

	second, err := table.Add(200, "cat")
	require.NoError(t, err)

	assert.Equal(t, 1, first.ID)
	assert.Equal(t, 2, second.ID)
	assert.Equal(t, Running, first.State)
	assert.Equal(t, "sleep 5", table.List()[0].Label)
	assert.Equal(t, []int{100, 200}, pids(table.List()))
}

func TestTableAddDuplicate(t *testing.T) {
	table := NewTable(4, newFakePoller())

	_, err := table.Add(100, "a")
	require.NoError(t, err)

	_, err = table.Add(100, "b")
	assert.True(t, errors.Is(err, ErrDuplicateJob))
	assert.Equal(t, 1, table.Len())
}

func TestTableCapacity(t *testing.T) {
	table := NewTable(2, newFakePoller())

	for pid := 1; pid <= 2; pid++ {
		_, err := table.Add(pid, "sleep")
		require.NoError(t, err)
	}

	_, err := table.Add(3, "sleep")
	assert.True(t, errors.Is(err, ErrCapacityExceeded))
	assert.Equal(t, 2, table.Len())
	assert.Equal(t, []int{1, 2}, pids(table.List()))
}

func TestTableReap(t *testing.T) {
	poller := newFakePoller()
	table := NewTable(8, poller)
	for _, pid := range []int{10, 11, 12, 13} {
		_, err := table.Add(pid, "job")
		require.NoError(t, err)
	}

	// Two adjacent exits check that a removal doesn't skip the next entry.
	poller.exit(10, 0)
	poller.exit(11, 2)
	poller.fail(13, unix.ECHILD)

	reports := table.ReapAll()
	require.Len(t, reports, 4)

	assert.Equal(t, 10, reports[0].Job.PID)
	assert.Equal(t, Exited, reports[0].Outcome)
	assert.Equal(t, Finished, reports[0].Job.State)
	assert.Equal(t, 0, reports[0].Status)

	assert.Equal(t, 11, reports[1].Job.PID)
	assert.Equal(t, Exited, reports[1].Outcome)
	assert.Equal(t, 2, reports[1].Status)

	assert.Equal(t, 12, reports[2].Job.PID)
	assert.Equal(t, StillRunning, reports[2].Outcome)
	assert.Equal(t, Running, reports[2].Job.State)

	assert.Equal(t, 13, reports[3].Job.PID)
	assert.Equal(t, CheckFailed, reports[3].Outcome)
	assert.True(t, errors.Is(reports[3].Err, unix.ECHILD))

	assert.Equal(t, []int{12}, pids(table.List()))

	second := table.ReapAll()
	require.Len(t, second, 1)
	assert.Equal(t, 12, second[0].Job.PID)
	assert.Equal(t, 1, poller.callCount(10), "finished jobs must not be polled again")
}

func TestTableReapIdempotent(t *testing.T) {
	table := NewTable(8, newFakePoller())
	for _, pid := range []int{1, 2, 3} {
		_, err := table.Add(pid, "job")
		require.NoError(t, err)
	}

	first := table.ReapAll()
	second := table.ReapAll()
	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
}

func TestTableReapStopEarly(t *testing.T) {
	poller := newFakePoller()
	table := NewTable(8, poller)
	for _, pid := range []int{1, 2, 3} {
		_, err := table.Add(pid, "job")
		require.NoError(t, err)
	}
	poller.exit(1, 0)
	poller.exit(2, 0)

	for report := range table.Reap() {
		assert.Equal(t, 1, report.Job.PID)
		break
	}

	assert.Equal(t, []int{2, 3}, pids(table.List()))
	assert.Equal(t, 0, poller.callCount(2))
}

func TestTableAddDuringReap(t *testing.T) {
	table := NewTable(8, newFakePoller())
	_, err := table.Add(1, "job")
	require.NoError(t, err)

	var seen []int
	for report := range table.Reap() {
		seen = append(seen, report.Job.PID)
		_, err := table.Add(2, "late")
		require.NoError(t, err)
	}

	assert.Equal(t, []int{1}, seen)
	assert.Equal(t, []int{1, 2}, pids(table.List()))
}

func TestTableClear(t *testing.T) {
	poller := newFakePoller()
	table := NewTable(8, poller)
	for _, pid := range []int{1, 2} {
		_, err := table.Add(pid, "job")
		require.NoError(t, err)
	}

	assert.Equal(t, 2, table.Clear())
	assert.Equal(t, 0, table.Len())
	assert.Empty(t, table.ReapAll())
	assert.Equal(t, 0, poller.callCount(1))
}

func TestTableMembers(t *testing.T) {
	poller := newFakePoller()
	table := NewTable(8, poller)
	_, err := table.Add(30, "a | b | c", 10, 20)
	require.NoError(t, err)

	poller.exit(10, 0)
	reports := table.ReapAll()
	require.Len(t, reports, 1)
	assert.Equal(t, StillRunning, reports[0].Outcome)
	assert.Equal(t, 1, poller.callCount(10))
	assert.Equal(t, 1, poller.callCount(20))

	// The job finishes while member 20 is still around, it's polled on the
	// following passes until it exits.
	poller.exit(30, 0)
	reports = table.ReapAll()
	require.Len(t, reports, 1)
	assert.Equal(t, Exited, reports[0].Outcome)
	assert.Equal(t, 1, poller.callCount(10))

	assert.Empty(t, table.ReapAll())
	assert.Equal(t, 3, poller.callCount(20))

	poller.exit(20, 0)
	table.ReapAll()
	table.ReapAll()
	assert.Equal(t, 4, poller.callCount(20))
}

func startReleased(t *testing.T, script string) int {
	t.Helper()

	cmd := exec.Command("sh", "-c", script)
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Process.Release())
	return pid
}

func TestWaitPoller(t *testing.T) {
	cases := map[string]struct {
		script string
		code   int
	}{
		"success": {"exit 0", 0},
		"failure": {"exit 3", 3},
		"signal":  {"kill -9 $$", 128 + 9},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			pid := startReleased(t, tc.script)

			var status Status
			require.Eventually(t, func() bool {
				var err error
				status, err = WaitPoller{}.Poll(pid)
				require.NoError(t, err)
				return status.Exited
			}, 5*time.Second, 10*time.Millisecond)
			assert.Equal(t, tc.code, status.Code)

			_, err := WaitPoller{}.Poll(pid)
			assert.True(t, errors.Is(err, unix.ECHILD), "reaped process polled twice: %v", err)
		})
	}
}

func TestWaitPollerRunning(t *testing.T) {
	pid := startReleased(t, "sleep 2")
	t.Cleanup(func() {
		var ws unix.WaitStatus
		unix.Kill(pid, unix.SIGKILL)
		unix.Wait4(pid, &ws, 0, nil)
	})

	status, err := WaitPoller{}.Poll(pid)
	require.NoError(t, err)
	assert.False(t, status.Exited)
}

func TestWaitPollerNotAChild(t *testing.T) {
	_, err := WaitPoller{}.Poll(os.Getpid())
	assert.True(t, errors.Is(err, unix.ECHILD))
}
