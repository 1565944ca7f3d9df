package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeClient) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "x", Queue: ExpiryQueue}, nil
}

func optionValues(opts []asynq.Option) map[asynq.OptionType]interface{} {
	out := make(map[asynq.OptionType]interface{}, len(opts))
	for _, o := range opts {
		out[o.Type()] = o.Value()
	}
	return out
}

func TestScheduleEnqueuesFireOnceTask(t *testing.T) {
	fake := &fakeClient{}
	s := &Scheduler{client: fake}
	at := time.Unix(1_700_000_300, 0)

	require.NoError(t, s.Schedule(context.Background(), "converted_1.pdf", at))
	require.Len(t, fake.tasks, 1)
	assert.Equal(t, ExpireArtifactTask, fake.tasks[0].Type())

	var payload ExpirePayload
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &payload))
	assert.Equal(t, "converted_1.pdf", payload.ArtifactID)

	vals := optionValues(fake.opts[0])
	assert.Equal(t, at, vals[asynq.ProcessAtOpt])
	assert.Equal(t, 0, vals[asynq.MaxRetryOpt])
	assert.Equal(t, "expire:converted_1.pdf", vals[asynq.TaskIDOpt])
	assert.Equal(t, ExpiryQueue, vals[asynq.QueueOpt])
}

func TestScheduleSurfacesEnqueueErrors(t *testing.T) {
	s := &Scheduler{client: &fakeClient{err: errors.New("redis down")}}
	assert.Error(t, s.Schedule(context.Background(), "a.pdf", time.Now()))
}
