//go:build darwin

package windows

import (
	"github.com/progrium/darwinkit/macos/appkit"
)

// darwinReader enumerates running applications through the shared AppKit
// workspace. macOS only exposes true window titles through the accessibility
// APIs; without that grant the localized application name is the best signal
// available, so it is reported as both title and owner. The frontmost
// application is listed first.
type darwinReader struct {
	workspace appkit.Workspace
}

func newReader() Reader {
	return &darwinReader{workspace: appkit.Workspace_SharedWorkspace()}
}

func (r *darwinReader) List() ([]WindowDescriptor, error) {
	apps := r.workspace.RunningApplications()

	var front string
	if fa := r.workspace.FrontmostApplication(); fa.Ptr() != nil {
		front = fa.LocalizedName()
	}

	descs := make([]WindowDescriptor, 0, len(apps))
	if front != "" {
		descs = append(descs, WindowDescriptor{Title: front, OwnerName: front})
	}
	for _, app := range apps {
		if app.Ptr() == nil {
			continue
		}
		name := app.LocalizedName()
		if name == "" || name == front {
			continue
		}
		descs = append(descs, WindowDescriptor{Title: name, OwnerName: name})
	}
	return descs, nil
}
