// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"os"
	"strings"

	"github.com/nestnet/nestnet/internal/channel"
	"github.com/nestnet/nestnet/internal/container"
	"github.com/nestnet/nestnet/internal/custom"
	"github.com/nestnet/nestnet/internal/dispatch"
	"github.com/nestnet/nestnet/internal/issue"
	"github.com/nestnet/nestnet/internal/session"
	"github.com/nestnet/nestnet/pkg/registry"
)

type runErrorClass struct {
	sentinel    error
	id          issue.Id
	suggestions []string
}

var runErrorClasses = []runErrorClass{
	{registry.ErrUnknownComponent, issue.UnknownComponentId, []string{"Run 'nestnet list' to see the registered components"}},
	{registry.ErrInvalidSpec, issue.UnknownComponentId, []string{"Component specs look like name[,arg...][,key=value...]"}},
	{custom.ErrCustomFileNotFound, issue.CustomFileNotFoundId, []string{"Check the paths passed to --custom"}},
	{custom.ErrCustomFileInvalid, issue.CustomFileInvalidId, nil},
	{custom.ErrValidationFailed, issue.CustomFileInvalidId, nil},
	{session.ErrNoControllerAvailable, issue.NoControllerAvailableId, []string{"Install a controller or pick a bridge switch with --switch ovsbr"}},
	{session.ErrConflictingMode, issue.ConflictingModeId, nil},
	{dispatch.ErrUnknownTest, issue.UnknownTestId, []string{"Run 'nestnet list' to see the available tests"}},
	{channel.ErrChannelStart, issue.ChannelStartFailedId, nil},
	{container.ErrEngineNotAvailable, issue.ContainerEngineNotFoundId, []string{"Install docker or podman, or set container.engine in the config"}},
	{os.ErrPermission, issue.PermissionDeniedId, []string{"Network emulation needs root: try sudo"}},
}

// explainRunError wraps a failed run in an ActionableError pointing at the
// matching help entry. Errors already explained are returned unchanged.
func explainRunError(err error) error {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return err
	}
	ec := issue.NewErrorContext().WithOperation("run network").Wrap(err)
	for _, c := range runErrorClasses {
		if errors.Is(err, c.sentinel) {
			return ec.WithIssue(c.id).WithSuggestions(c.suggestions...).BuildError()
		}
	}
	if strings.Contains(err.Error(), "File exists") {
		return ec.WithIssue(issue.StaleNetworkId).
			WithSuggestion("Run 'nestnet clean' to remove leftovers of an earlier run").
			BuildError()
	}
	return ec.BuildError()
}
