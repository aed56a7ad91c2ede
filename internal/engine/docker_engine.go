package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/errdefs"
	gcrname "github.com/google/go-containerregistry/pkg/name"
	"github.com/rs/zerolog"
)

const (
	LabelManagedBy    = "tye.managed-by"
	LabelResourceName = "tye.resource-name"
	managedByValue    = "tyed"
)

// DockerEngine runs containers on the local Docker daemon.
type DockerEngine struct {
	logger      zerolog.Logger
	cli         dockerClient
	gracePeriod time.Duration
}

func NewDockerEngine(cli dockerClient, logger zerolog.Logger, gracePeriod time.Duration) *DockerEngine {
	return &DockerEngine{
		logger:      logger.With().Str("component", "docker_engine").Logger(),
		cli:         cli,
		gracePeriod: gracePeriod,
	}
}

// Start creates and starts a detached container named name from image,
// carrying labels alongside the ownership labels, which always win. The
// image is pulled when it is not present locally. A stopped container left
// behind by an earlier run of the daemon under the same name is replaced.
// The returned id is the full container id.
func (e *DockerEngine) Start(ctx context.Context, name, img string, labels map[string]string) (string, error) {
	if _, err := gcrname.ParseReference(img); err != nil {
		return "", NewCommandError("start", name, fmt.Errorf("parsing image reference: %w", err))
	}

	id, err := e.create(ctx, name, img, labels)
	if errdefs.IsNotFound(err) {
		e.logger.Info().Str("container", name).Str("image", img).Msg("Image not found locally, pulling")
		if pullErr := e.pull(ctx, img); pullErr != nil {
			return "", NewCommandError("pull", name, pullErr)
		}
		id, err = e.create(ctx, name, img, labels)
	}
	if errdefs.IsConflict(err) {
		if removed, removeErr := e.removeStale(ctx, name); removeErr != nil {
			e.logger.Warn().Err(removeErr).Str("container", name).Msg("Failed to remove stale container")
		} else if removed {
			id, err = e.create(ctx, name, img, labels)
		}
	}
	if err != nil {
		return "", NewCommandError("create", name, err)
	}

	if err := e.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		// The created container would block the next create under this name.
		if rmErr := e.cli.ContainerRemove(context.WithoutCancel(ctx), id, container.RemoveOptions{Force: true}); rmErr != nil {
			e.logger.Warn().Err(rmErr).Str("container", name).Msg("Failed to remove container after start failure")
		}
		return "", NewCommandError("start", name, err)
	}

	e.logger.Debug().Str("container", name).Str("id", id).Str("image", img).Msg("Container started")
	return id, nil
}

// Stop stops the container, waiting up to the configured grace period before
// the daemon kills it. A container that no longer exists is treated as stopped.
func (e *DockerEngine) Stop(ctx context.Context, id string) error {
	timeout := int(e.gracePeriod / time.Second)
	err := e.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
	if err != nil && !errdefs.IsNotFound(err) {
		return NewCommandError("stop", id, err)
	}
	return nil
}

// Remove force-removes the container. A container that no longer exists is
// treated as removed.
func (e *DockerEngine) Remove(ctx context.Context, id string) error {
	err := e.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return NewCommandError("remove", id, err)
	}
	return nil
}

func (e *DockerEngine) Close() error {
	return e.cli.Close()
}

func (e *DockerEngine) create(ctx context.Context, name, img string, labels map[string]string) (string, error) {
	merged := make(map[string]string, len(labels)+2)
	maps.Copy(merged, labels)
	merged[LabelManagedBy] = managedByValue
	merged[LabelResourceName] = name

	cfg := &container.Config{
		Image:  img,
		Labels: merged,
	}
	hostCfg := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyUnlessStopped,
		},
	}
	resp, err := e.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", err
	}
	for _, w := range resp.Warnings {
		e.logger.Warn().Str("container", name).Msg(w)
	}
	return resp.ID, nil
}

func (e *DockerEngine) pull(ctx context.Context, ref string) error {
	rc, err := e.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer rc.Close()
	// The pull is only complete once the progress stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("reading pull progress: %w", err)
	}
	return nil
}

// removeStale removes a container holding name if this daemon created it.
// Containers owned by anyone else are left alone.
func (e *DockerEngine) removeStale(ctx context.Context, name string) (bool, error) {
	containers, err := e.cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("name", "^/"+name+"$"),
			filters.Arg("label", LabelManagedBy+"="+managedByValue),
		),
	})
	if err != nil {
		return false, err
	}
	if len(containers) == 0 {
		return false, nil
	}
	var errs []error
	for _, c := range containers {
		e.logger.Info().Str("container", name).Str("id", c.ID).Msg("Removing stale container")
		if err := e.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
			errs = append(errs, err)
		}
	}
	return len(errs) == 0, errors.Join(errs...)
}
