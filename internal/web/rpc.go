package web

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dshills/notepad/internal/editor"
	"github.com/dshills/notepad/internal/history"
	"github.com/dshills/notepad/internal/workspace"
)

// JSON-RPC error codes.
const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeApplication    = -32000
)

type rpcRequest struct {
	ID     any             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     any       `json:"id"`
	Result any       `json:"result,omitempty"`
	Error  *rpcError `json:"error,omitempty"`
}

type rpcNotification struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// docState is what the frontend renders for one document.
type docState struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Text    string `json:"text"`
	CanUndo bool   `json:"canUndo"`
	CanRedo bool   `json:"canRedo"`
}

func newDocState(id string, c history.Change) docState {
	return docState{
		ID:      id,
		Title:   workspace.Title(c.Value),
		Text:    c.Value,
		CanUndo: c.CanUndo,
		CanRedo: c.CanRedo,
	}
}

func stateOf(doc *workspace.Document) docState {
	return newDocState(doc.ID, doc.History.Snapshot())
}

type tabInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type tabsResult struct {
	Tabs   []tabInfo `json:"tabs"`
	Active string    `json:"active"`
}

type settingsResult struct {
	Settings editor.Settings   `json:"settings"`
	CSS      map[string]string `json:"css"`
}

func newSettingsResult(s editor.Settings) settingsResult {
	return settingsResult{Settings: s, CSS: s.CSS()}
}

// docParams addresses a document; an empty id means the active one.
type docParams struct {
	ID string `json:"id"`
}

type selectionParams struct {
	docParams
	Start int `json:"start"`
	End   int `json:"end"`
}

func (p selectionParams) selection() editor.Selection {
	return editor.Selection{Start: p.Start, End: p.End}
}

func (s *Server) handleRPC(ctx context.Context, req rpcRequest) rpcResponse {
	switch req.Method {
	case "tabs.list":
		return s.rpcTabsList(req)
	case "tabs.new":
		return s.rpcTabsNew(ctx, req)
	case "tabs.close":
		return s.rpcTabsClose(ctx, req)
	case "tabs.activate":
		return s.rpcTabsActivate(ctx, req)
	case "doc.get":
		return s.rpcDocGet(req)
	case "doc.input":
		return s.rpcDocInput(req)
	case "doc.paste":
		return s.rpcDocPaste(req)
	case "doc.cut":
		return s.rpcDocCut(req)
	case "doc.copy":
		return s.rpcDocCopy(req)
	case "doc.deleteAll":
		return s.rpcDocDeleteAll(req)
	case "doc.undo":
		return s.rpcDocMove(req, (*history.Manager).Undo)
	case "doc.redo":
		return s.rpcDocMove(req, (*history.Manager).Redo)
	case "doc.search":
		return s.rpcDocSearch(req)
	case "doc.stats":
		return s.rpcDocStats(req)
	case "settings.get":
		return rpcResponse{ID: req.ID, Result: newSettingsResult(s.Settings())}
	case "settings.set":
		return s.rpcSettingsSet(ctx, req)
	default:
		return errorResponse(req.ID, codeMethodNotFound, fmt.Errorf("unknown method: %s", req.Method))
	}
}

func errorResponse(id any, code int, err error) rpcResponse {
	return rpcResponse{ID: id, Error: &rpcError{Code: code, Message: err.Error()}}
}

// decodeParams unmarshals params into v. Absent params leave v zeroed.
func decodeParams(req rpcRequest, v any) *rpcResponse {
	if len(req.Params) == 0 || string(req.Params) == "null" {
		return nil
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		resp := errorResponse(req.ID, codeInvalidParams, err)
		return &resp
	}
	return nil
}

// document resolves id, falling back to the active document.
func (s *Server) document(req rpcRequest, id string) (*workspace.Document, *rpcResponse) {
	if id == "" {
		if doc := s.reg.Active(); doc != nil {
			return doc, nil
		}
		resp := errorResponse(req.ID, codeApplication, workspace.ErrDocumentNotFound)
		return nil, &resp
	}
	doc, err := s.reg.Get(id)
	if err != nil {
		resp := errorResponse(req.ID, codeApplication, err)
		return nil, &resp
	}
	return doc, nil
}

func (s *Server) tabs() tabsResult {
	docs := s.reg.All()
	res := tabsResult{Tabs: make([]tabInfo, 0, len(docs))}
	for _, doc := range docs {
		res.Tabs = append(res.Tabs, tabInfo{ID: doc.ID, Title: doc.Title()})
	}
	if active := s.reg.Active(); active != nil {
		res.Active = active.ID
	}
	return res
}

func (s *Server) rpcTabsList(req rpcRequest) rpcResponse {
	return rpcResponse{ID: req.ID, Result: s.tabs()}
}

func (s *Server) rpcTabsNew(ctx context.Context, req rpcRequest) rpcResponse {
	var p struct {
		Text string `json:"text"`
	}
	if resp := decodeParams(req, &p); resp != nil {
		return *resp
	}
	doc, err := s.reg.Create(ctx, p.Text)
	if err != nil {
		return errorResponse(req.ID, codeApplication, err)
	}
	s.Broadcast("tabs.changed", s.tabs())
	return rpcResponse{ID: req.ID, Result: stateOf(doc)}
}

func (s *Server) rpcTabsClose(ctx context.Context, req rpcRequest) rpcResponse {
	var p docParams
	if resp := decodeParams(req, &p); resp != nil {
		return *resp
	}
	if p.ID == "" {
		return errorResponse(req.ID, codeInvalidParams, fmt.Errorf("id is required"))
	}
	if err := s.reg.Close(ctx, p.ID); err != nil {
		return errorResponse(req.ID, codeApplication, err)
	}
	tabs := s.tabs()
	s.Broadcast("tabs.changed", tabs)
	return rpcResponse{ID: req.ID, Result: tabs}
}

func (s *Server) rpcTabsActivate(ctx context.Context, req rpcRequest) rpcResponse {
	var p docParams
	if resp := decodeParams(req, &p); resp != nil {
		return *resp
	}
	doc, err := s.reg.SetActive(ctx, p.ID)
	if err != nil {
		return errorResponse(req.ID, codeApplication, err)
	}
	return rpcResponse{ID: req.ID, Result: stateOf(doc)}
}

func (s *Server) rpcDocGet(req rpcRequest) rpcResponse {
	var p docParams
	if resp := decodeParams(req, &p); resp != nil {
		return *resp
	}
	doc, resp := s.document(req, p.ID)
	if resp != nil {
		return *resp
	}
	return rpcResponse{ID: req.ID, Result: stateOf(doc)}
}

func (s *Server) rpcDocInput(req rpcRequest) rpcResponse {
	var p struct {
		docParams
		Text string `json:"text"`
	}
	if resp := decodeParams(req, &p); resp != nil {
		return *resp
	}
	doc, resp := s.document(req, p.ID)
	if resp != nil {
		return *resp
	}
	editor.Type(doc.History, p.Text)
	return rpcResponse{ID: req.ID, Result: stateOf(doc)}
}

func (s *Server) rpcDocPaste(req rpcRequest) rpcResponse {
	var p struct {
		selectionParams
		Clip string `json:"clip"`
	}
	if resp := decodeParams(req, &p); resp != nil {
		return *resp
	}
	doc, resp := s.document(req, p.ID)
	if resp != nil {
		return *resp
	}
	caret := editor.Paste(doc.History, p.selection(), p.Clip)
	return rpcResponse{ID: req.ID, Result: struct {
		docState
		Caret int `json:"caret"`
	}{stateOf(doc), caret}}
}

func (s *Server) rpcDocCut(req rpcRequest) rpcResponse {
	var p selectionParams
	if resp := decodeParams(req, &p); resp != nil {
		return *resp
	}
	doc, resp := s.document(req, p.ID)
	if resp != nil {
		return *resp
	}
	removed, caret := editor.Cut(doc.History, p.selection())
	return rpcResponse{ID: req.ID, Result: struct {
		docState
		Cut   string `json:"cut"`
		Caret int    `json:"caret"`
	}{stateOf(doc), removed, caret}}
}

func (s *Server) rpcDocCopy(req rpcRequest) rpcResponse {
	var p selectionParams
	if resp := decodeParams(req, &p); resp != nil {
		return *resp
	}
	doc, resp := s.document(req, p.ID)
	if resp != nil {
		return *resp
	}
	return rpcResponse{ID: req.ID, Result: map[string]string{"text": editor.Copy(doc.History, p.selection())}}
}

func (s *Server) rpcDocDeleteAll(req rpcRequest) rpcResponse {
	var p docParams
	if resp := decodeParams(req, &p); resp != nil {
		return *resp
	}
	doc, resp := s.document(req, p.ID)
	if resp != nil {
		return *resp
	}
	changed := editor.DeleteAll(doc.History)
	return rpcResponse{ID: req.ID, Result: struct {
		docState
		Changed bool `json:"changed"`
	}{stateOf(doc), changed}}
}

func (s *Server) rpcDocMove(req rpcRequest, move func(*history.Manager) bool) rpcResponse {
	var p docParams
	if resp := decodeParams(req, &p); resp != nil {
		return *resp
	}
	doc, resp := s.document(req, p.ID)
	if resp != nil {
		return *resp
	}
	changed := move(doc.History)
	return rpcResponse{ID: req.ID, Result: struct {
		docState
		Changed bool `json:"changed"`
	}{stateOf(doc), changed}}
}

func (s *Server) rpcDocSearch(req rpcRequest) rpcResponse {
	var p struct {
		docParams
		Term string `json:"term"`
	}
	if resp := decodeParams(req, &p); resp != nil {
		return *resp
	}
	doc, resp := s.document(req, p.ID)
	if resp != nil {
		return *resp
	}
	matches := editor.Search(doc.Text(), p.Term)
	if matches == nil {
		matches = []editor.Match{}
	}
	return rpcResponse{ID: req.ID, Result: map[string]any{"matches": matches, "count": len(matches)}}
}

func (s *Server) rpcDocStats(req rpcRequest) rpcResponse {
	var p struct {
		docParams
		Caret int `json:"caret"`
	}
	if resp := decodeParams(req, &p); resp != nil {
		return *resp
	}
	doc, resp := s.document(req, p.ID)
	if resp != nil {
		return *resp
	}
	return rpcResponse{ID: req.ID, Result: editor.ComputeStats(doc.Text(), p.Caret)}
}

func (s *Server) rpcSettingsSet(ctx context.Context, req rpcRequest) rpcResponse {
	var p editor.Settings
	if resp := decodeParams(req, &p); resp != nil {
		return *resp
	}
	merged := s.Settings().Merge(p)
	if err := merged.Validate(); err != nil {
		return errorResponse(req.ID, codeInvalidParams, err)
	}
	if err := s.SetSettings(merged); err != nil {
		return errorResponse(req.ID, codeApplication, err)
	}
	s.saveSettings(ctx, merged)
	return rpcResponse{ID: req.ID, Result: newSettingsResult(merged)}
}
