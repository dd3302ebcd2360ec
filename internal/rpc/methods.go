package rpc

import (
	"encoding/json"
	"time"

	"github.com/spaceterm/muxd/internal/metadata"
	"github.com/spaceterm/muxd/internal/pane"
	"github.com/spaceterm/muxd/internal/session"
)

type successResult struct {
	Success bool `json:"success"`
}

func ok() (interface{}, error) { return successResult{Success: true}, nil }

// --- session.* ---

func handleSessionCreate(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		Name string `json:"name"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	sess, err := d.manager.CreateSession(p.Name)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"session_id": sess.ID,
		"name":       sess.Name(),
		"created_at": sess.CreatedAt(),
	}, nil
}

func handleSessionList(d *Dispatcher, _ json.RawMessage) (interface{}, error) {
	summaries := d.manager.ListSessions()
	sessions := make([]map[string]interface{}, 0, len(summaries))
	for _, s := range summaries {
		sessions = append(sessions, map[string]interface{}{
			"session_id": s.ID,
			"name":       s.Name,
			"pane_count": s.PaneCount,
			"created_at": s.CreatedAt,
			"updated_at": s.UpdatedAt,
		})
	}
	return map[string]interface{}{"sessions": sessions}, nil
}

func handleSessionDelete(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := d.manager.DeleteSession(p.SessionID); err != nil {
		return nil, err
	}
	return ok()
}

// --- pane.* ---

func handlePaneCreate(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		SessionID  string            `json:"session_id"`
		PaneType   string            `json:"pane_type"`
		Command    string            `json:"command"`
		WorkingDir string            `json:"working_dir"`
		Env        map[string]string `json:"env"`
		Size       *struct {
			Rows int `json:"rows"`
			Cols int `json:"cols"`
		} `json:"size"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	kind := pane.TerminalKind()
	if p.PaneType != "" && p.PaneType != "terminal" {
		kind = pane.CustomKind(p.PaneType)
	}

	rows, cols := 24, 80
	if p.Size != nil {
		rows, cols = p.Size.Rows, p.Size.Cols
	}

	command := p.Command
	if command == "" {
		command = "/bin/sh"
	}

	newPane, err := d.manager.CreatePane(p.SessionID, kind, d)
	if err != nil {
		return nil, err
	}

	clientEnv := make([]string, 0, len(p.Env))
	for k, v := range p.Env {
		clientEnv = append(clientEnv, k+"="+v)
	}

	pid, err := newPane.Start(pane.StartRequest{
		Command: command,
		Cwd:     p.WorkingDir,
		Env:     session.AugmentEnv(clientEnv),
		Size:    pane.Size{Rows: rows, Cols: cols},
	})
	if err != nil {
		d.manager.DiscardPane(p.SessionID, newPane.ID)
		return nil, err
	}

	return map[string]interface{}{
		"pane_id":    newPane.ID,
		"session_id": p.SessionID,
		"pane_type":  kind.String(),
		"pid":        pid,
	}, nil
}

func handlePaneWrite(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		PaneID string `json:"pane_id"`
		Data   string `json:"data"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	_, target, err := d.manager.FindPane(p.PaneID)
	if err != nil {
		return nil, err
	}
	if err := target.Write([]byte(p.Data)); err != nil {
		return nil, err
	}
	return ok()
}

func handlePaneResize(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		PaneID string `json:"pane_id"`
		Size   struct {
			Rows int `json:"rows"`
			Cols int `json:"cols"`
		} `json:"size"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	_, target, err := d.manager.FindPane(p.PaneID)
	if err != nil {
		return nil, err
	}
	if err := target.Resize(p.Size.Rows, p.Size.Cols); err != nil {
		return nil, err
	}
	d.notify("pane.resized", map[string]interface{}{
		"pane_id":   p.PaneID,
		"rows":      p.Size.Rows,
		"cols":      p.Size.Cols,
		"timestamp": time.Now(),
	})
	return ok()
}

func handlePaneRead(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		PaneID string `json:"pane_id"`
		Lines  *int   `json:"lines"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	_, target, err := d.manager.FindPane(p.PaneID)
	if err != nil {
		return nil, err
	}
	lines := 1 << 30
	if p.Lines != nil {
		lines = *p.Lines
	}
	return map[string]interface{}{"data": target.ReadTail(lines)}, nil
}

func handlePaneKill(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		PaneID string `json:"pane_id"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := d.manager.KillPane(p.PaneID); err != nil {
		return nil, err
	}
	return ok()
}

func paneInfoPayload(snap pane.Snapshot) map[string]interface{} {
	m := map[string]interface{}{
		"pane_id":    snap.ID,
		"session_id": snap.SessionID,
		"pane_type":  snap.Kind.String(),
		"rows":       snap.Rows,
		"cols":       snap.Cols,
	}
	if snap.HasPid {
		m["pid"] = snap.Pid
	}
	if snap.Title != "" {
		m["title"] = snap.Title
	}
	if snap.WorkingDir != "" {
		m["working_dir"] = snap.WorkingDir
	}
	return m
}

func handlePaneInfo(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		PaneID string `json:"pane_id"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	_, target, err := d.manager.FindPane(p.PaneID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"pane": paneInfoPayload(target.Snapshot())}, nil
}

func handlePaneList(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	panes, err := d.manager.ListPanes(p.SessionID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(panes))
	for _, pn := range panes {
		out = append(out, paneInfoPayload(pn.Snapshot()))
	}
	return map[string]interface{}{"panes": out}, nil
}

func handlePaneUpdateTitle(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		PaneID string `json:"pane_id"`
		Title  string `json:"title"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	_, target, err := d.manager.FindPane(p.PaneID)
	if err != nil {
		return nil, err
	}
	target.SetTitle(p.Title)
	return ok()
}

func handlePaneUpdateWorkingDir(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		PaneID     string `json:"pane_id"`
		WorkingDir string `json:"working_dir"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	_, target, err := d.manager.FindPane(p.PaneID)
	if err != nil {
		return nil, err
	}
	target.SetWorkingDir(p.WorkingDir)
	return ok()
}

func handlePaneSearch(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		PaneID        string `json:"pane_id"`
		Query         string `json:"query"`
		CaseSensitive bool   `json:"case_sensitive"`
		Regex         bool   `json:"regex"`
		MaxResults    int    `json:"max_results"`
		StartLine     int    `json:"start_line"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	_, target, err := d.manager.FindPane(p.PaneID)
	if err != nil {
		return nil, err
	}
	hits, total, truncated, err := target.Search(p.Query, p.CaseSensitive, p.Regex, p.MaxResults, p.StartLine)
	if err != nil {
		return nil, err
	}
	matches := make([]map[string]interface{}, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, map[string]interface{}{
			"line_number":  h.LineNumber,
			"line_content": h.LineText,
			"match_start":  h.MatchStart,
			"match_end":    h.MatchEnd,
		})
	}
	return map[string]interface{}{
		"matches":       matches,
		"total_matches": total,
		"truncated":     truncated,
	}, nil
}

// --- state.* ---

func handleStateSave(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		SessionIDs []string `json:"session_ids"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	saved, err := d.manager.SaveState(p.SessionIDs)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"saved_sessions": saved, "state_file": "state"}, nil
}

func handleStateRestore(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		SessionIDs      []string `json:"session_ids"`
		RestartCommands bool     `json:"restart_commands"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	results := d.manager.RestoreState(p.SessionIDs, p.RestartCommands, d)

	var restored []map[string]interface{}
	var failed []map[string]interface{}
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, map[string]interface{}{
				"session_id": r.SessionID,
				"reason":     r.Err.Error(),
			})
			continue
		}
		restored = append(restored, map[string]interface{}{
			"session_id": r.SessionID,
			"name":       r.Name,
			"pane_count": r.PaneCount,
		})
	}
	return map[string]interface{}{"restored_sessions": restored, "failed_sessions": failed}, nil
}

// --- server_status / server_shutdown ---

func handleServerStatus(d *Dispatcher, _ json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"running":         true,
		"version":         d.version,
		"sessions":        len(d.manager.ListSessions()),
		"total_panes":     d.manager.TotalPaneCount(),
		"uptime_seconds":  int(time.Since(d.startedAt).Seconds()),
		"config": map[string]interface{}{
			"max_sessions":           d.manager.MaxSessions(),
			"max_panes_per_session":  d.manager.MaxPanesPerSession(),
		},
	}, nil
}

func handleServerShutdown(d *Dispatcher, _ json.RawMessage) (interface{}, error) {
	if d.shutdown != nil {
		go d.shutdown()
	}
	return map[string]interface{}{"status": "shutting_down"}, nil
}

// --- session.metadata.* ---

func handleMetadataGet(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		SessionID string `json:"session_id"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return d.metaStore.Get(p.SessionID)
}

func handleMetadataUpdate(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		SessionID   string                    `json:"session_id"`
		Description *string                   `json:"description"`
		Tags        []string                  `json:"tags"`
		Attributes  map[string]string         `json:"attributes"`
		Recovery    *metadata.SessionRecovery `json:"recovery"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	result, err := d.metaStore.Update(p.SessionID, func(m *metadata.SessionMetadata) {
		if p.Description != nil {
			m.Description = *p.Description
		}
		if p.Tags != nil {
			m.Tags = p.Tags
		}
		if p.Attributes != nil {
			if m.Attributes == nil {
				m.Attributes = map[string]string{}
			}
			for k, v := range p.Attributes {
				m.Attributes[k] = v
			}
		}
		if p.Recovery != nil {
			m.Recovery = *p.Recovery
		}
	})
	if err != nil {
		return nil, err
	}
	if p.Recovery != nil {
		d.manager.RefreshHealthMonitor(p.SessionID)
	}
	return result, nil
}

func handleMetadataSearch(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var q metadata.SearchQuery
	var p struct {
		Name      string   `json:"name"`
		AllTags   []string `json:"all_tags"`
		AnyTags   []string `json:"any_tags"`
		EnvType   string   `json:"environment_type"`
		Attribute *struct {
			K string `json:"k"`
			V string `json:"v"`
		} `json:"attribute"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	q.NameContains = p.Name
	q.AllTags = p.AllTags
	q.AnyTags = p.AnyTags
	q.EnvironmentType = metadata.EnvironmentType(p.EnvType)
	if p.Attribute != nil {
		q.AttributeKey = p.Attribute.K
		q.AttributeValue = p.Attribute.V
	}
	sessions, err := d.metaStore.Search(q)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"sessions": sessions}, nil
}

// --- template.* ---

func handleTemplateCreateFromSession(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		SessionID string `json:"session_id"`
		Name      string `json:"name"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	panes, err := d.manager.ListPanes(p.SessionID)
	if err != nil {
		return nil, err
	}
	blueprints := make([]metadata.PaneTemplate, 0, len(panes))
	for _, pn := range panes {
		snap := pn.Snapshot()
		blueprints = append(blueprints, metadata.PaneTemplate{
			Kind:    snap.Kind.String(),
			Command: snap.Command,
			Args:    snap.Args,
			Title:   snap.Title,
			Rows:    snap.Rows,
			Cols:    snap.Cols,
		})
	}
	return d.templates.CreateFromSession(p.Name, "", blueprints)
}

func handleTemplateGet(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		Name string `json:"name"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return d.templates.Get(p.Name)
}

func handleTemplateList(d *Dispatcher, _ json.RawMessage) (interface{}, error) {
	templates, err := d.templates.List()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"templates": templates}, nil
}

func handleTemplateInstantiate(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		Name        string `json:"name"`
		SessionName string `json:"session_name"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	tmpl, err := d.templates.Get(p.Name)
	if err != nil {
		return nil, err
	}
	sessName := p.SessionName
	if sessName == "" {
		sessName = tmpl.Name
	}
	sess, err := d.manager.CreateSession(sessName)
	if err != nil {
		return nil, err
	}
	for _, bp := range tmpl.Panes {
		kind := pane.TerminalKind()
		if bp.Kind != "" && bp.Kind != "terminal" {
			kind = pane.CustomKind(bp.Kind)
		}
		rows, cols := bp.Rows, bp.Cols
		if rows < 1 {
			rows = 24
		}
		if cols < 1 {
			cols = 80
		}
		newPane, err := d.manager.CreatePane(sess.ID, kind, d)
		if err != nil {
			continue
		}
		if _, err := newPane.Start(pane.StartRequest{
			Command: bp.Command,
			Args:    bp.Args,
			Size:    pane.Size{Rows: rows, Cols: cols},
		}); err != nil {
			d.manager.DiscardPane(sess.ID, newPane.ID)
			continue
		}
		if bp.Title != "" {
			newPane.SetTitle(bp.Title)
		}
	}
	_ = d.templates.MarkUsed(p.Name)
	return map[string]interface{}{
		"session_id": sess.ID,
		"name":       sess.Name(),
		"created_at": sess.CreatedAt(),
	}, nil
}

// --- bookmark.* ---

func handleBookmarkCreate(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		SessionID   string   `json:"session_id"`
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return d.bookmarks.Create(p.Name, p.SessionID, p.Description, p.Tags)
}

func handleBookmarkGet(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		Name string `json:"name"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return d.bookmarks.Get(p.Name)
}

func handleBookmarkList(d *Dispatcher, _ json.RawMessage) (interface{}, error) {
	bookmarks, err := d.bookmarks.List()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"bookmarks": bookmarks}, nil
}

func handleBookmarkDelete(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		Name string `json:"name"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := d.bookmarks.Delete(p.Name); err != nil {
		return nil, err
	}
	return ok()
}

func handleBookmarkToggleFavorite(d *Dispatcher, params json.RawMessage) (interface{}, error) {
	var p struct {
		Name string `json:"name"`
	}
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return d.bookmarks.ToggleFavorite(p.Name)
}
