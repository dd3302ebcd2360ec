// Package ids generates the opaque, process-unique identifiers used for
// sessions and panes.
package ids

import "github.com/google/uuid"

// NewSessionID returns a fresh, process-unique session identifier.
func NewSessionID() string { return "ses_" + uuid.NewString() }

// NewPaneID returns a fresh, process-unique pane identifier.
func NewPaneID() string { return "pane_" + uuid.NewString() }
