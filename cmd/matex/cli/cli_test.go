package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lastdino/matex-sub001/jobs"
)

type stubMigrator struct {
	version uint
	dirty   bool
	calls   []string
	err     error
}

func (s *stubMigrator) Up() error {
	s.calls = append(s.calls, "up")
	s.version = 3
	return s.err
}

func (s *stubMigrator) Down() error {
	s.calls = append(s.calls, "down")
	s.version = 0
	return s.err
}

func (s *stubMigrator) Version() (uint, bool, error) {
	return s.version, s.dirty, nil
}

func TestRunMigrate(t *testing.T) {
	m := &stubMigrator{}
	var out bytes.Buffer
	require.NoError(t, RunMigrate(&out, m, []string{"up"}))
	require.Equal(t, "schema version 3 dirty=false\n", out.String())

	out.Reset()
	require.NoError(t, RunMigrate(&out, m, []string{"version"}))
	require.Equal(t, []string{"up"}, m.calls)

	require.ErrorIs(t, RunMigrate(&out, m, nil), ErrUsage)
	require.ErrorIs(t, RunMigrate(&out, m, []string{"sideways"}), ErrUsage)

	m.err = errors.New("dirty database")
	require.ErrorContains(t, RunMigrate(&out, m, []string{"down"}), "migrate down: dirty database")
}

func TestBuildTask(t *testing.T) {
	task, err := BuildTask(jobs.TaskReceivingCascade, "17")
	require.NoError(t, err)
	require.Equal(t, jobs.TaskReceivingCascade, task.Type())
	var payload jobs.CascadePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, int64(17), payload.OrderID)

	_, err = BuildTask(jobs.TaskReceivingCascade)
	require.Error(t, err)
	_, err = BuildTask(jobs.TaskReceivingCascade, "x")
	require.Error(t, err)

	task, err = BuildTask(jobs.TaskReceivingReconcile)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskReceivingReconcile, task.Type())

	_, err = BuildTask("mail:send")
	require.Error(t, err)
}
