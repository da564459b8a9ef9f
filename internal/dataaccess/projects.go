package dataaccess

import (
	"appshell/internal/models"
	"appshell/internal/querycache"
)

const ProjectsResource = "projects"

// Projects is the data-access surface for the projects entity.
type Projects = Resource[models.Project, models.CreateProjectRequest, models.UpdateProjectRequest]

// ProjectBackend is satisfied by *store.ProjectStore.
type ProjectBackend = Backend[models.Project, models.CreateProjectRequest, models.UpdateProjectRequest]

func NewProjects(backend ProjectBackend, cache querycache.Cache, opts ...Option) *Projects {
	return New[models.Project, models.CreateProjectRequest, models.UpdateProjectRequest](ProjectsResource, backend, cache, opts...)
}
