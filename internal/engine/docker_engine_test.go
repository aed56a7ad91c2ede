package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocker struct {
	mu sync.Mutex

	images     map[string]bool
	containers map[string]string // name -> id
	calls      []string

	createCfg  *container.Config
	hostCfg    *container.HostConfig
	stopOpts   container.StopOptions
	startErr   error
	stopErr    error
	removeErr  error
	listResult []container.Summary

	eventCh chan events.Message
	errCh   chan error
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{
		images:     map[string]bool{},
		containers: map[string]string{},
		eventCh:    make(chan events.Message),
		errCh:      make(chan error, 1),
	}
}

func (f *fakeDocker) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeDocker) ContainerCreate(_ context.Context, cfg *container.Config, hostCfg *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create " + name)
	f.createCfg = cfg
	f.hostCfg = hostCfg
	if !f.images[cfg.Image] {
		return container.CreateResponse{}, errdefs.NotFound(errors.New("no such image"))
	}
	if _, ok := f.containers[name]; ok {
		return container.CreateResponse{}, errdefs.Conflict(errors.New("name in use"))
	}
	id := strings.Repeat(name[:1], 64)
	f.containers[name] = id
	return container.CreateResponse{ID: id}, nil
}

func (f *fakeDocker) ContainerStart(_ context.Context, id string, _ container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start " + id[:4])
	return f.startErr
}

func (f *fakeDocker) ContainerStop(_ context.Context, id string, opts container.StopOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop " + id[:4])
	f.stopOpts = opts
	return f.stopErr
}

func (f *fakeDocker) ContainerRemove(_ context.Context, id string, _ container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove " + id[:4])
	if f.removeErr != nil {
		return f.removeErr
	}
	for name, cid := range f.containers {
		if cid == id {
			delete(f.containers, name)
		}
	}
	return nil
}

func (f *fakeDocker) ContainerList(_ context.Context, _ container.ListOptions) ([]container.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list")
	return f.listResult, nil
}

func (f *fakeDocker) ImagePull(_ context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("pull " + ref)
	f.images[ref] = true
	return io.NopCloser(strings.NewReader(`{"status":"Downloaded"}`)), nil
}

func (f *fakeDocker) Events(_ context.Context, _ events.ListOptions) (<-chan events.Message, <-chan error) {
	return f.eventCh, f.errCh
}

func (f *fakeDocker) Close() error { return nil }

func newTestEngine(cli *fakeDocker) *DockerEngine {
	return NewDockerEngine(cli, zerolog.Nop(), 10*time.Second)
}

func TestDockerEngine_StartCreatesWithRestartPolicyAndLabels(t *testing.T) {
	cli := newFakeDocker()
	cli.images["nginx:1.25"] = true
	e := newTestEngine(cli)

	id, err := e.Start(context.Background(), "web", "nginx:1.25", nil)
	require.NoError(t, err)
	assert.Len(t, id, 64)

	assert.Equal(t, []string{"create web", "start wwww"}, cli.calls)
	assert.Equal(t, container.RestartPolicyUnlessStopped, cli.hostCfg.RestartPolicy.Name)
	assert.Equal(t, "tyed", cli.createCfg.Labels[LabelManagedBy])
	assert.Equal(t, "web", cli.createCfg.Labels[LabelResourceName])
}

func TestDockerEngine_StartMergesUserLabelsUnderOwnershipLabels(t *testing.T) {
	cli := newFakeDocker()
	cli.images["nginx"] = true
	e := newTestEngine(cli)

	labels := map[string]string{
		"tier":         "frontend",
		LabelManagedBy: "someone-else",
	}
	_, err := e.Start(context.Background(), "web", "nginx", labels)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"tier":            "frontend",
		LabelManagedBy:    "tyed",
		LabelResourceName: "web",
	}, cli.createCfg.Labels)
	assert.Equal(t, "someone-else", labels[LabelManagedBy], "caller's map is not modified")
}

func TestDockerEngine_StartPullsPinnedDigest(t *testing.T) {
	cli := newFakeDocker()
	e := newTestEngine(cli)
	ref := "nginx:1.25@sha256:" + strings.Repeat("a", 64)

	_, err := e.Start(context.Background(), "web", ref, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"create web", "pull " + ref, "create web", "start wwww"}, cli.calls)
	assert.Equal(t, ref, cli.createCfg.Image)
}

func TestDockerEngine_StartPullsMissingImage(t *testing.T) {
	cli := newFakeDocker()
	e := newTestEngine(cli)

	_, err := e.Start(context.Background(), "web", "nginx:1.25", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"create web", "pull nginx:1.25", "create web", "start wwww"}, cli.calls)
}

func TestDockerEngine_StartReplacesStaleManagedContainer(t *testing.T) {
	cli := newFakeDocker()
	cli.images["nginx"] = true
	stale := strings.Repeat("s", 64)
	cli.containers["web"] = stale
	cli.listResult = []container.Summary{{ID: stale}}
	e := newTestEngine(cli)

	_, err := e.Start(context.Background(), "web", "nginx", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"create web", "list", "remove ssss", "create web", "start wwww"}, cli.calls)
}

func TestDockerEngine_StartLeavesForeignContainerAlone(t *testing.T) {
	cli := newFakeDocker()
	cli.images["nginx"] = true
	cli.containers["web"] = strings.Repeat("f", 64)
	e := newTestEngine(cli)

	_, err := e.Start(context.Background(), "web", "nginx", nil)
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "create", cmdErr.Op)
	assert.True(t, errdefs.IsConflict(cmdErr.Err))
	assert.Equal(t, []string{"create web", "list"}, cli.calls)
}

func TestDockerEngine_StartFailureRemovesCreatedContainer(t *testing.T) {
	cli := newFakeDocker()
	cli.images["nginx"] = true
	cli.startErr = errors.New("port is already allocated")
	e := newTestEngine(cli)

	_, err := e.Start(context.Background(), "web", "nginx", nil)
	require.Error(t, err)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "start", cmdErr.Op)
	assert.Equal(t, []string{"create web", "start wwww", "remove wwww"}, cli.calls)
	assert.Empty(t, cli.containers)
}

func TestDockerEngine_StartRejectsInvalidImage(t *testing.T) {
	cli := newFakeDocker()
	e := newTestEngine(cli)

	_, err := e.Start(context.Background(), "web", "UPPER CASE", nil)
	require.Error(t, err)
	assert.Empty(t, cli.calls)
}

func TestDockerEngine_StopUsesGracePeriod(t *testing.T) {
	cli := newFakeDocker()
	e := newTestEngine(cli)

	require.NoError(t, e.Stop(context.Background(), strings.Repeat("a", 64)))
	require.NotNil(t, cli.stopOpts.Timeout)
	assert.Equal(t, 10, *cli.stopOpts.Timeout)
}

func TestDockerEngine_StopAndRemoveIgnoreMissingContainers(t *testing.T) {
	cli := newFakeDocker()
	cli.stopErr = errdefs.NotFound(errors.New("gone"))
	cli.removeErr = errdefs.NotFound(errors.New("gone"))
	e := newTestEngine(cli)

	id := strings.Repeat("a", 64)
	assert.NoError(t, e.Stop(context.Background(), id))
	assert.NoError(t, e.Remove(context.Background(), id))
}

func TestDockerEngine_StopReportsOtherErrors(t *testing.T) {
	cli := newFakeDocker()
	cli.stopErr = errors.New("daemon wedged")
	e := newTestEngine(cli)

	err := e.Stop(context.Background(), strings.Repeat("a", 64))
	require.Error(t, err)
	assert.ErrorIs(t, err, cli.stopErr)
}

func TestDockerEngine_WatchEmitsManagedExits(t *testing.T) {
	cli := newFakeDocker()
	e := newTestEngine(cli)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exits := e.Watch(ctx)

	cli.eventCh <- events.Message{
		Type:   events.ContainerEventType,
		Action: events.ActionDie,
		Actor: events.Actor{ID: "abc", Attributes: map[string]string{
			"name": "other", "exitCode": "0",
		}},
	}
	cli.eventCh <- events.Message{
		Type:     events.ContainerEventType,
		Action:   events.ActionDie,
		TimeNano: 42,
		Actor: events.Actor{ID: "def", Attributes: map[string]string{
			"name": "web", "exitCode": "137", LabelManagedBy: "tyed", LabelResourceName: "web",
		}},
	}

	select {
	case exit := <-exits:
		assert.Equal(t, "def", exit.ContainerID)
		assert.Equal(t, "web", exit.ResourceName)
		assert.Equal(t, 137, exit.ExitCode)
		assert.Equal(t, time.Unix(0, 42), exit.Time)
	case <-time.After(time.Second):
		t.Fatal("expected an exit")
	}

	cancel()
	for range exits {
	}
}

func TestDockerEngine_WatchClosesOnStreamError(t *testing.T) {
	cli := newFakeDocker()
	e := newTestEngine(cli)

	exits := e.Watch(context.Background())
	cli.errCh <- errors.New("connection reset")

	select {
	case _, ok := <-exits:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("expected the channel to close")
	}
}
