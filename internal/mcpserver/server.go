// Package mcpserver exposes a keyvox session as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/daikw/keyvox/internal/audio"
	"github.com/daikw/keyvox/internal/credential"
	"github.com/daikw/keyvox/internal/job"
	"github.com/daikw/keyvox/internal/speech"
)

const serverName = "keyvox"

// KeyPool manages the registered API keys
type KeyPool interface {
	List() []credential.Credential
	Add(ctx context.Context, secret string) (credential.Credential, error)
	Reset(ctx context.Context, secret string) (credential.Credential, error)
	Remove(ctx context.Context, secret string) error
}

// VoiceLister lists the voices of the configured backend
type VoiceLister interface {
	Voices(ctx context.Context, language string) ([]speech.Voice, error)
}

// ArtifactPaths resolves generated audio to files on disk
type ArtifactPaths interface {
	Path(h audio.Handle) (string, error)
}

// Deps are the collaborators the tools operate on
type Deps struct {
	Session   *job.Session
	Keys      KeyPool
	Voices    VoiceLister
	Artifacts ArtifactPaths
	// Play plays a file; nil disables playback
	Play func(ctx context.Context, path string) error
}

// Server registers the keyvox tools on an MCP server
type Server struct {
	deps Deps
	mcp  *server.MCPServer
}

// New creates a server with every tool registered
func New(deps Deps, version string) *Server {
	s := &Server{
		deps: deps,
		mcp: server.NewMCPServer(serverName, version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}
	s.registerSpeechTools()
	s.registerBatchTools()
	s.registerKeyTools()
	return s
}

// MCP returns the underlying MCP server
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Serve speaks the MCP stdio protocol on in and out until ctx is done.
// Logs must not go to out.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	log.Info().Str("server", serverName).Msg("Serving MCP over stdio")
	err := server.NewStdioServer(s.mcp).Listen(ctx, in, out)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) registerSpeechTools() {
	s.mcp.AddTool(mcp.NewTool("synthesize",
		mcp.WithDescription("Generate speech for one text with the current settings. Returns the audio file path."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text or SSML to speak")),
		mcp.WithBoolean("play", mcp.Description("Play the audio after generating it")),
	), s.handleSynthesize)

	s.mcp.AddTool(mcp.NewTool("settings",
		mcp.WithDescription("Show the voice settings, changing any that are given"),
		mcp.WithString("voice", mcp.Description("Voice ID")),
		mcp.WithString("language", mcp.Description("Language code, e.g. en-US")),
		mcp.WithNumber("speed", mcp.Description("Speaking rate, 0.25 to 4.0")),
		mcp.WithNumber("pitch", mcp.Description("Pitch in semitones, -20 to 20")),
		mcp.WithBoolean("markup", mcp.Description("Treat single-text input as SSML")),
		mcp.WithString("banned_terms", mcp.Description("Comma separated terms that block generation")),
	), s.handleSettings)

	s.mcp.AddTool(mcp.NewTool("voices",
		mcp.WithDescription("List the voices of the configured speech backend"),
		mcp.WithString("language", mcp.Description("Only voices for this language")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleVoices)
}

func (s *Server) registerBatchTools() {
	s.mcp.AddTool(mcp.NewTool("batch_load",
		mcp.WithDescription("Append items from a CSV task list. The first line is a header; each row is label,content."),
		mcp.WithString("csv", mcp.Required(), mcp.Description("Task list contents")),
	), s.handleBatchLoad)

	s.mcp.AddTool(mcp.NewTool("batch_status",
		mcp.WithDescription("Show batch items, their states and the selection"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleBatchStatus)

	s.mcp.AddTool(mcp.NewTool("batch_select",
		mcp.WithDescription("Select or deselect batch items"),
		mcp.WithString("ids", mcp.Required(), mcp.Description("Comma separated item IDs")),
		mcp.WithBoolean("selected", mcp.Description("false to deselect"), mcp.DefaultBool(true)),
	), s.handleBatchSelect)

	s.mcp.AddTool(mcp.NewTool("batch_toggle_all",
		mcp.WithDescription("Select every item, or deselect all when every item is selected"),
	), s.handleBatchToggleAll)

	s.mcp.AddTool(mcp.NewTool("batch_run",
		mcp.WithDescription("Generate every selected item that is idle or failed, one at a time"),
	), s.handleBatchRun)

	s.mcp.AddTool(mcp.NewTool("batch_retry",
		mcp.WithDescription("Generate one batch item again"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item ID")),
	), s.handleBatchRetry)

	s.mcp.AddTool(mcp.NewTool("batch_clear",
		mcp.WithDescription("Empty the batch. The first call arms the clear and a second call within the confirmation window performs it."),
		mcp.WithDestructiveHintAnnotation(true),
	), s.handleBatchClear)

	s.mcp.AddTool(mcp.NewTool("batch_export",
		mcp.WithDescription("Write every successful item into a zip archive"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Destination .zip file")),
	), s.handleBatchExport)
}

func (s *Server) registerKeyTools() {
	s.mcp.AddTool(mcp.NewTool("key_add",
		mcp.WithDescription("Register an API key"),
		mcp.WithString("key", mcp.Required(), mcp.Description("API key")),
	), s.handleKeyAdd)

	s.mcp.AddTool(mcp.NewTool("key_list",
		mcp.WithDescription("List the registered API keys, masked, with status and usage"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleKeyList)

	s.mcp.AddTool(mcp.NewTool("key_reset",
		mcp.WithDescription("Return a failed key to active"),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Key number from key_list")),
	), s.handleKeyReset)

	s.mcp.AddTool(mcp.NewTool("key_remove",
		mcp.WithDescription("Remove a registered key"),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Key number from key_list")),
		mcp.WithDestructiveHintAnnotation(true),
	), s.handleKeyRemove)
}

// jsonResult returns v as indented JSON text
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}
