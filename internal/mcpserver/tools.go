package mcpserver

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	"github.com/daikw/keyvox/internal/credential"
	"github.com/daikw/keyvox/internal/job"
)

type synthesizeResult struct {
	Path   string `json:"path"`
	Format string `json:"format"`
	Size   string `json:"size"`
	Chars  int    `json:"chars"`
	Played bool   `json:"played,omitempty"`
}

func (s *Server) handleSynthesize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return errorResult(err), nil
	}

	single := s.deps.Session.Single
	h, err := single.Generate(ctx, text)
	if err != nil {
		return errorResult(err), nil
	}
	path, err := s.deps.Artifacts.Path(h)
	if err != nil {
		return errorResult(err), nil
	}

	result := synthesizeResult{
		Path:   path,
		Format: string(h.Format),
		Size:   humanize.Bytes(uint64(h.Size)),
		Chars:  single.CharCount(text),
	}
	if req.GetBool("play", false) && s.deps.Play != nil {
		if err := s.deps.Play(ctx, path); err != nil {
			log.Warn().Err(err).Msg("Playback failed")
		} else {
			result.Played = true
		}
	}
	return jsonResult(result)
}

type settingsResult struct {
	job.Settings
	BannedTerms []string `json:"bannedTerms"`
}

func (s *Server) handleSettings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	has := func(name string) bool {
		_, ok := args[name]
		return ok
	}

	if has("speed") {
		if v := req.GetFloat("speed", 1.0); v < 0.25 || v > 4.0 {
			return mcp.NewToolResultError("speed must be between 0.25 and 4.0"), nil
		}
	}
	if has("pitch") {
		if v := req.GetFloat("pitch", 0); v < -20 || v > 20 {
			return mcp.NewToolResultError("pitch must be between -20.0 and 20.0"), nil
		}
	}

	controls := s.deps.Session.Controls
	settings := controls.Update(func(st *job.Settings) {
		if has("voice") {
			st.Voice = req.GetString("voice", st.Voice)
		}
		if has("language") {
			st.Language = req.GetString("language", st.Language)
		}
		if has("speed") {
			st.Speed = req.GetFloat("speed", st.Speed)
		}
		if has("pitch") {
			st.Pitch = req.GetFloat("pitch", st.Pitch)
		}
		if has("markup") {
			st.IsMarkup = req.GetBool("markup", st.IsMarkup)
		}
	})
	if has("banned_terms") {
		controls.SetBannedTerms(splitList(req.GetString("banned_terms", "")))
	}

	return jsonResult(settingsResult{Settings: settings, BannedTerms: controls.BannedTerms()})
}

func (s *Server) handleVoices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	voices, err := s.deps.Voices.Voices(ctx, req.GetString("language", ""))
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(voices)
}

type batchStatus struct {
	Items     []job.Item         `json:"items"`
	Selection job.SelectionState `json:"selection"`
	Armed     bool               `json:"clearArmed"`
}

func (s *Server) status() batchStatus {
	b := s.deps.Session.Batch
	items := b.Items()
	if items == nil {
		items = []job.Item{}
	}
	return batchStatus{Items: items, Selection: b.SelectionState(), Armed: b.Armed()}
}

func (s *Server) handleBatchLoad(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	csv, err := req.RequireString("csv")
	if err != nil {
		return errorResult(err), nil
	}
	rows, err := job.ParseTaskList(strings.NewReader(csv))
	if err != nil {
		return errorResult(err), nil
	}
	if len(rows) == 0 {
		return mcp.NewToolResultError("task list has no rows with content"), nil
	}
	s.deps.Session.Batch.Load(rows)
	return jsonResult(s.status())
}

func (s *Server) handleBatchStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.status())
}

func (s *Server) handleBatchSelect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := req.RequireString("ids")
	if err != nil {
		return errorResult(err), nil
	}
	b := s.deps.Session.Batch
	if req.GetBool("selected", true) {
		err = b.Select(splitList(ids)...)
	} else {
		err = b.Deselect(splitList(ids)...)
	}
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(s.status())
}

func (s *Server) handleBatchToggleAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.deps.Session.Batch.ToggleAll()
	return jsonResult(s.status())
}

func (s *Server) handleBatchRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summary, err := s.deps.Session.Batch.RunSelected(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(struct {
		Summary job.RunSummary `json:"summary"`
		batchStatus
	}{summary, s.status()})
}

func (s *Server) handleBatchRetry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return errorResult(err), nil
	}
	item, err := s.deps.Session.Batch.RetryItem(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(item)
}

func (s *Server) handleBatchClear(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Session.Batch.Clear() {
		return mcp.NewToolResultText("Batch cleared"), nil
	}
	return mcp.NewToolResultText("Clear armed: call batch_clear again to remove every item"), nil
}

func (s *Server) handleBatchExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return errorResult(err), nil
	}
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		return mcp.NewToolResultError("export path must end in .zip"), nil
	}

	n, err := s.deps.Session.Batch.ExportFile(ctx, path)
	if err != nil {
		return errorResult(err), nil
	}
	if n == 0 {
		return mcp.NewToolResultText("No successful items to export"), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Exported %d files to %s", n, path)), nil
}

type keyView struct {
	Index        int               `json:"index"`
	Key          string            `json:"key"`
	Status       credential.Status `json:"status"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	UsageCount   int               `json:"usageCount"`
	Added        string            `json:"added"`
}

func newKeyView(i int, c credential.Credential) keyView {
	return keyView{
		Index:        i + 1,
		Key:          credential.Mask(c.Secret),
		Status:       c.Status,
		ErrorMessage: c.ErrorMessage,
		UsageCount:   c.UsageCount,
		Added:        humanize.RelTime(c.AddedAt, time.Now(), "ago", "from now"),
	}
}

func (s *Server) handleKeyAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	secret, err := req.RequireString("key")
	if err != nil {
		return errorResult(err), nil
	}
	secret = strings.TrimSpace(secret)
	if _, err := s.deps.Keys.Add(ctx, secret); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Registered key %s", credential.Mask(secret))), nil
}

func (s *Server) handleKeyList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	creds := s.deps.Keys.List()
	views := make([]keyView, len(creds))
	for i, c := range creds {
		views[i] = newKeyView(i, c)
	}
	return jsonResult(views)
}

func (s *Server) handleKeyReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := s.keyAt(req)
	if err != nil {
		return errorResult(err), nil
	}
	if _, err := s.deps.Keys.Reset(ctx, c.Secret); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Key %s is active again", credential.Mask(c.Secret))), nil
}

func (s *Server) handleKeyRemove(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := s.keyAt(req)
	if err != nil {
		return errorResult(err), nil
	}
	if err := s.deps.Keys.Remove(ctx, c.Secret); err != nil {
		return errorResult(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Removed key %s", credential.Mask(c.Secret))), nil
}

// keyAt resolves the 1-based index argument against the current key list
func (s *Server) keyAt(req mcp.CallToolRequest) (credential.Credential, error) {
	index, err := req.RequireInt("index")
	if err != nil {
		return credential.Credential{}, err
	}
	creds := s.deps.Keys.List()
	if index < 1 || index > len(creds) {
		return credential.Credential{}, fmt.Errorf("%w: index %d is out of range (1-%d)",
			credential.ErrCredentialNotFound, index, len(creds))
	}
	return creds[index-1], nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
