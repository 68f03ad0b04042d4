package wayland

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/panicsave/panicsave/pkg/window"
)

// ErrNoFocusedWindow is returned when the tree has no focused view
var ErrNoFocusedWindow = errors.New("no focused window in sway tree")

type windowProperties struct {
	Class    string `json:"class"`
	Instance string `json:"instance"`
	Title    string `json:"title"`
}

// node is the subset of a sway container used here
type node struct {
	ID               int64             `json:"id"`
	Name             string            `json:"name"`
	Type             string            `json:"type"`
	Focused          bool              `json:"focused"`
	PID              uint32            `json:"pid"`
	AppID            string            `json:"app_id"`
	WindowProperties *windowProperties `json:"window_properties"`
	Nodes            []node            `json:"nodes"`
	FloatingNodes    []node            `json:"floating_nodes"`
}

// windowEvent is one message of `swaymsg -t subscribe '["window"]'`
type windowEvent struct {
	Change    string `json:"change"`
	Container node   `json:"container"`
}

// appName prefers the Wayland app_id and falls back to the X11 class of
// XWayland clients.
func (n *node) appName() string {
	if n.AppID != "" {
		return n.AppID
	}
	if n.WindowProperties != nil {
		if n.WindowProperties.Class != "" {
			return n.WindowProperties.Class
		}
		return n.WindowProperties.Instance
	}
	return ""
}

func (n *node) info() *window.WindowInfo {
	return &window.WindowInfo{
		ID:            uintptr(n.ID),
		PID:           n.PID,
		AppName:       n.appName(),
		WindowTitle:   n.Name,
		DisplayServer: "wayland",
	}
}

// findFocused walks the tree depth first
func findFocused(n *node) *node {
	if n.Focused && (n.Type == "con" || n.Type == "floating_con") {
		return n
	}
	for i := range n.Nodes {
		if f := findFocused(&n.Nodes[i]); f != nil {
			return f
		}
	}
	for i := range n.FloatingNodes {
		if f := findFocused(&n.FloatingNodes[i]); f != nil {
			return f
		}
	}
	return nil
}

// parseTree decodes `swaymsg -t get_tree` output and returns the focused view
func parseTree(r io.Reader) (*window.WindowInfo, error) {
	var root node
	if err := json.NewDecoder(r).Decode(&root); err != nil {
		return nil, errors.Wrap(err, "failed to decode sway tree")
	}

	focused := findFocused(&root)
	if focused == nil {
		return nil, ErrNoFocusedWindow
	}
	return focused.info(), nil
}
