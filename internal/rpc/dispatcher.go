package rpc

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spaceterm/muxd/internal/metadata"
	"github.com/spaceterm/muxd/internal/muxerr"
	"github.com/spaceterm/muxd/internal/pane"
	"github.com/spaceterm/muxd/internal/session"
)

// Sender delivers one outbound frame (a response or a notification) to the
// connection's output queue. Implementations must be safe to call from
// multiple goroutines: notifications are posted spontaneously while
// responses are posted from request handling.
type Sender interface {
	Send(frame []byte) error
}

// handlerFunc implements one JSON-RPC method. Returning a *muxerr.Error is
// translated to -32603 plus its taxonomy code; a malformed-params error
// becomes -32602; any other error becomes a bare -32603 with no daemon code
// attached.
type handlerFunc func(d *Dispatcher, params json.RawMessage) (interface{}, error)

// Dispatcher is the per-connection method router. One is
// constructed per accepted WebSocket connection and also doubles as that
// connection's pane.Sink, so panes created over this connection post
// output/exit notifications back onto the same queue their owner reads
// responses from.
type Dispatcher struct {
	manager   *session.Manager
	metaStore *metadata.Store
	templates *metadata.TemplateStore
	bookmarks *metadata.BookmarkStore
	logger    *log.Logger

	sender    Sender
	version   string
	startedAt time.Time
	shutdown  func()
}

// Deps bundles the daemon-wide dependencies every connection's Dispatcher
// shares.
type Deps struct {
	Manager   *session.Manager
	MetaStore *metadata.Store
	Templates *metadata.TemplateStore
	Bookmarks *metadata.BookmarkStore
	Logger    *log.Logger
	Version   string
	StartedAt time.Time
	Shutdown  func()
}

func New(deps Deps, sender Sender) *Dispatcher {
	return &Dispatcher{
		manager:   deps.Manager,
		metaStore: deps.MetaStore,
		templates: deps.Templates,
		bookmarks: deps.Bookmarks,
		logger:    deps.Logger,
		sender:    sender,
		version:   deps.Version,
		startedAt: deps.StartedAt,
		shutdown:  deps.Shutdown,
	}
}

var methodTable = map[string]handlerFunc{
	"session.create":           handleSessionCreate,
	"session.list":             handleSessionList,
	"session.delete":           handleSessionDelete,
	"pane.create":              handlePaneCreate,
	"pane.write":               handlePaneWrite,
	"pane.resize":              handlePaneResize,
	"pane.read":                handlePaneRead,
	"pane.kill":                handlePaneKill,
	"pane.info":                handlePaneInfo,
	"pane.list":                handlePaneList,
	"pane.update_title":        handlePaneUpdateTitle,
	"pane.update_working_dir":  handlePaneUpdateWorkingDir,
	"pane.search":              handlePaneSearch,
	"state.save":               handleStateSave,
	"state.restore":            handleStateRestore,
	"server_status":            handleServerStatus,
	"server_shutdown":          handleServerShutdown,
	"session.metadata.get":     handleMetadataGet,
	"session.metadata.update":  handleMetadataUpdate,
	"session.metadata.search":  handleMetadataSearch,
	"template.create_from_session": handleTemplateCreateFromSession,
	"template.get":             handleTemplateGet,
	"template.list":            handleTemplateList,
	"template.instantiate":     handleTemplateInstantiate,
	"bookmark.create":          handleBookmarkCreate,
	"bookmark.get":             handleBookmarkGet,
	"bookmark.list":            handleBookmarkList,
	"bookmark.delete":          handleBookmarkDelete,
	"bookmark.toggle_favorite": handleBookmarkToggleFavorite,
}

// HandleFrame parses one inbound text frame and dispatches it, writing a
// response through d.sender unless the request was a notification (no id).
func (d *Dispatcher) HandleFrame(raw []byte) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		nullID := json.RawMessage("null")
		d.reply(nullID, errorResponse(nullID, CodeParseError, "parse error", nil))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		d.reply(req.ID, errorResponse(req.ID, CodeInvalidRequest, "Invalid Request", nil))
		return
	}

	handler, ok := methodTable[req.Method]
	if !ok {
		d.reply(req.ID, errorResponse(req.ID, CodeMethodNotFound, "Method not found: "+req.Method, nil))
		return
	}

	result, err := handler(d, req.Params)
	if err != nil {
		d.reply(req.ID, d.toErrorResponse(req.ID, err))
		return
	}
	d.reply(req.ID, resultResponse(req.ID, result))
}

func (d *Dispatcher) toErrorResponse(id json.RawMessage, err error) Response {
	if me, ok := muxerr.As(err); ok {
		return errorResponse(id, CodeInternalError, me.Error(), me.JSONRPCCode())
	}
	if ie, ok := err.(*invalidParamsError); ok {
		return errorResponse(id, CodeInvalidParams, ie.Error(), nil)
	}
	return errorResponse(id, CodeInternalError, err.Error(), nil)
}

// reply sends resp unless id is nil (notification semantics).
func (d *Dispatcher) reply(id json.RawMessage, resp Response) {
	if id == nil {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		d.logger.Printf("rpc: failed to marshal response: %v", err)
		return
	}
	if err := d.sender.Send(data); err != nil {
		d.logger.Printf("rpc: send failed: %v", err)
	}
}

// notify emits a spontaneous server->client message.
func (d *Dispatcher) notify(method string, params interface{}) {
	data, err := json.Marshal(newNotification(method, params))
	if err != nil {
		d.logger.Printf("rpc: failed to marshal notification %s: %v", method, err)
		return
	}
	if err := d.sender.Send(data); err != nil {
		d.logger.Printf("rpc: notify send failed: %v", err)
	}
}

// Output implements pane.Sink: every ring append on a pane created over
// this connection becomes a pane.output notification.
func (d *Dispatcher) Output(ev pane.OutputEvent) {
	d.notify("pane.output", map[string]interface{}{
		"pane_id":   ev.PaneID,
		"data":      string(ev.Data),
		"timestamp": ev.Timestamp,
	})
}

// Exit implements pane.Sink: emitted exactly once per pane.
func (d *Dispatcher) Exit(ev pane.ExitEvent) {
	d.notify("pane.exited", map[string]interface{}{
		"pane_id":     ev.PaneID,
		"exit_status": ev.ExitCode,
		"timestamp":   ev.Timestamp,
	})
}

type invalidParamsError struct{ msg string }

func (e *invalidParamsError) Error() string { return e.msg }

func invalidParams(format string, args ...interface{}) error {
	return &invalidParamsError{msg: fmt.Sprintf(format, args...)}
}

func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return invalidParams("malformed params: %v", err)
	}
	return nil
}
