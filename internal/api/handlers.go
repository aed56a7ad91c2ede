package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rynowak/tye/internal/core"
	"github.com/rynowak/tye/internal/domain"
	"github.com/rynowak/tye/internal/registry"
	"github.com/rynowak/tye/internal/util"
)

type containerResponse struct {
	*domain.Container
	Status *domain.ContainerStatus `json:"status,omitempty"`
}

type listResponse struct {
	Value []containerResponse `json:"value"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func routeID(c echo.Context) domain.ResourceID {
	return domain.NewContainerID(c.Param("subscriptionId"), c.Param("resourceGroup"), c.Param("name"))
}

func HealthHandler(rt runtime) echo.HandlerFunc {
	return func(c echo.Context) error {
		state := rt.State()
		status := http.StatusOK
		if state != core.StateStarted {
			status = http.StatusServiceUnavailable
		}
		return c.JSON(status, healthResponse{Status: state.String()})
	}
}

func ViewHandler(views viewSource) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, views.Current())
	}
}

func ListContainersHandler(repo registry.Repository) echo.HandlerFunc {
	return func(c echo.Context) error {
		containers, err := repo.List(
			c.Request().Context(),
			c.Param("subscriptionId"), c.Param("resourceGroup"), domain.ContainerResourceType,
		)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, listResponse{
			Value: util.Map(containers, func(ct *domain.Container) containerResponse {
				return containerResponse{Container: ct}
			}),
		})
	}
}

func GetContainerHandler(repo registry.Repository) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := routeID(c)
		ct, err := repo.Get(c.Request().Context(), id)
		if errors.Is(err, registry.ErrNotFound) {
			return notFound(id)
		}
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, containerResponse{Container: ct})
	}
}

// PutContainerHandler converges the runtime to the submitted document and
// then records it. The route decides the id, name and type; a body that
// names a different resource is rejected.
func PutContainerHandler(rt runtime, repo registry.Repository) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := routeID(c)

		var spec domain.Container
		if err := c.Bind(&spec); err != nil {
			return newAPIError(http.StatusBadRequest, "InvalidRequestContent", "request body is not a valid container document")
		}
		if spec.ID != "" && domain.NewIdentity(spec.ID) != id.Identity() {
			return domain.NewValidationError("id", "does not match the request path")
		}
		if spec.Name != "" && !strings.EqualFold(spec.Name, id.Name()) {
			return domain.NewValidationError("name", "does not match the request path")
		}
		spec.ID = id.String()
		spec.Name = id.Name()
		spec.Type = domain.ContainerResourceType
		if err := spec.Validate(); err != nil {
			return err
		}

		ctx := c.Request().Context()
		status, err := rt.Put(ctx, &spec)
		if err != nil {
			return err
		}
		if err := repo.Upsert(ctx, &spec); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, containerResponse{Container: &spec, Status: &status})
	}
}

// DeleteContainerHandler answers 200 when a document existed and 204 when
// there was nothing to delete. The runtime is asked to stop the resource
// either way.
func DeleteContainerHandler(rt runtime, repo registry.Repository) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := routeID(c)
		ctx := c.Request().Context()

		existed := true
		if _, err := repo.Get(ctx, id); errors.Is(err, registry.ErrNotFound) {
			existed = false
		} else if err != nil {
			return err
		}

		if err := rt.Delete(ctx, id.Identity()); err != nil {
			return err
		}
		if existed {
			if err := repo.Delete(ctx, id); err != nil {
				return err
			}
			return c.NoContent(http.StatusOK)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
