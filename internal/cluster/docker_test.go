package cluster

import (
	"context"
	"sync"
	"testing"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/s3harness/pkg/errors"
)

type fakeContainer struct {
	id      string
	name    string
	image   string
	running bool
}

// fakeDocker is an in-memory dockerAPI honoring the ancestor filter.
type fakeDocker struct {
	mu         sync.Mutex
	containers []*fakeContainer
	removed    []container.RemoveOptions
	closed     bool
}

func (f *fakeDocker) ContainerList(_ context.Context, options container.ListOptions) ([]container.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ancestors := options.Filters.Get("ancestor")
	var out []container.Summary
	for _, c := range f.containers {
		if len(ancestors) > 0 && c.image != ancestors[0] {
			continue
		}
		if !options.All && !c.running {
			continue
		}
		state := "exited"
		if c.running {
			state = "running"
		}
		out = append(out, container.Summary{
			ID:     c.id,
			Names:  []string{"/" + c.name},
			Image:  c.image,
			State:  state,
			Status: state,
		})
	}
	return out, nil
}

func (f *fakeDocker) find(name string) (*fakeContainer, error) {
	for _, c := range f.containers {
		if c.name == name {
			return c, nil
		}
	}
	return nil, cerrdefs.ErrNotFound
}

func (f *fakeDocker) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.find(id)
	if err != nil {
		return err
	}
	c.running = true
	return nil
}

func (f *fakeDocker) ContainerStop(_ context.Context, id string, options container.StopOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.find(id)
	if err != nil {
		return err
	}
	c.running = false
	return nil
}

func (f *fakeDocker) ContainerRemove(_ context.Context, id string, options container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.containers {
		if c.name == id || c.id == id {
			f.containers = append(f.containers[:i], f.containers[i+1:]...)
			f.removed = append(f.removed, options)
			return nil
		}
	}
	return cerrdefs.ErrNotFound
}

func (f *fakeDocker) Close() error {
	f.closed = true
	return nil
}

const nodeImage = "hectcastro/riak-cs"

func newFakeCluster() *fakeDocker {
	return &fakeDocker{containers: []*fakeContainer{
		{id: "a1", name: "riak-cs1", image: nodeImage, running: true},
		{id: "a2", name: "riak-cs2", image: nodeImage, running: true},
		{id: "a3", name: "riak-cs3", image: nodeImage, running: false},
		{id: "x1", name: "registry", image: "registry:2", running: true},
	}}
}

func TestDockerNodes_RunningNodes(t *testing.T) {
	t.Parallel()

	nodes := newDockerNodes(newFakeCluster(), nodeImage, "riak-cs", nil)
	n, err := nodes.RunningNodes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDockerNodes_List(t *testing.T) {
	t.Parallel()

	nodes := newDockerNodes(newFakeCluster(), nodeImage, "riak-cs", nil)
	list, err := nodes.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, Node{ID: "a1", Name: "riak-cs1", State: "running", Status: "running"}, list[0])
	assert.Equal(t, "exited", list[2].State)
}

func TestDockerNodes_Lifecycle(t *testing.T) {
	t.Parallel()

	fake := newFakeCluster()
	nodes := newDockerNodes(fake, nodeImage, "riak-cs", nil)
	nodes.SettleDelay = 0
	ctx := context.Background()

	require.NoError(t, nodes.Start(ctx, 3))
	n, err := nodes.RunningNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, nodes.Stop(ctx, 1))
	n, err = nodes.RunningNodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, nodes.Remove(ctx, 1))
	require.Len(t, fake.removed, 1)
	assert.True(t, fake.removed[0].Force)
	assert.True(t, fake.removed[0].RemoveVolumes)

	err = nodes.Start(ctx, 9)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNodeNotFound))

	require.NoError(t, nodes.Close())
	assert.True(t, fake.closed)
}

func TestDockerNodes_RemoveAll(t *testing.T) {
	t.Parallel()

	fake := newFakeCluster()
	nodes := newDockerNodes(fake, nodeImage, "riak-cs", nil)

	n, err := nodes.RemoveAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.Len(t, fake.containers, 1, "containers of other images survive")
	assert.Equal(t, "registry", fake.containers[0].name)
}

func TestDockerNodes_SettleDelayHonorsContext(t *testing.T) {
	t.Parallel()

	nodes := newDockerNodes(newFakeCluster(), nodeImage, "riak-cs", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := nodes.Stop(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
