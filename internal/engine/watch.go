package engine

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
)

// Exit describes a managed container that terminated on its own or was
// killed outside this daemon.
type Exit struct {
	ContainerID   string
	ContainerName string
	ResourceName  string
	ExitCode      int
	Time          time.Time
}

// Watch streams die events of containers this daemon created. The channel is
// closed when ctx is cancelled or the daemon closes the event stream.
func (e *DockerEngine) Watch(ctx context.Context) <-chan Exit {
	const bufferSize = 64
	out := make(chan Exit, bufferSize)

	filterArgs := filters.NewArgs()
	filterArgs.Add("type", string(events.ContainerEventType))
	filterArgs.Add("event", string(events.ActionDie))
	filterArgs.Add("label", LabelManagedBy+"="+managedByValue)

	eventCh, errCh := e.cli.Events(ctx, events.ListOptions{
		Filters: filterArgs,
		Since:   time.Now().Format(time.RFC3339Nano),
	})

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				e.logger.Debug().Msg("Docker event watch cancelled")
				return
			case err, ok := <-errCh:
				if !ok {
					errCh = nil
					continue
				}
				if err != nil && ctx.Err() == nil {
					e.logger.Error().Err(err).Msg("Error from Docker events stream")
				}
				// The client closes the event channel after reporting an error.
				return
			case msg, ok := <-eventCh:
				if !ok {
					e.logger.Info().Msg("Docker events channel closed")
					return
				}
				exit, ok := toExit(msg)
				if !ok {
					continue
				}
				select {
				case out <- exit:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

func toExit(msg events.Message) (Exit, bool) {
	if msg.Type != events.ContainerEventType || msg.Action != events.ActionDie {
		return Exit{}, false
	}
	attrs := msg.Actor.Attributes
	if attrs[LabelManagedBy] != managedByValue {
		return Exit{}, false
	}
	code, err := strconv.Atoi(attrs["exitCode"])
	if err != nil {
		code = -1
	}
	return Exit{
		ContainerID:   msg.Actor.ID,
		ContainerName: strings.TrimPrefix(attrs["name"], "/"),
		ResourceName:  attrs[LabelResourceName],
		ExitCode:      code,
		Time:          time.Unix(0, msg.TimeNano),
	}, true
}
