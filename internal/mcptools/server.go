package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"mailroom/internal/document"
	"mailroom/internal/intake"
	"mailroom/internal/invoice"
	"mailroom/internal/logging"
	"mailroom/internal/services"
)

// IntakeSource hands out the next unprocessed file of a folder.
type IntakeSource interface {
	NextUnprocessed(ctx context.Context, dir string, extensions []string) intake.Outcome
}

// Comparer compares two invoice files.
type Comparer interface {
	Compare(ctx context.Context, leftPath, rightPath string) (invoice.Comparison, error)
}

// Options configures the tool server.
type Options struct {
	Name       string
	Version    string
	Dir        string
	Extensions []string
	Intake     IntakeSource
	Comparer   Comparer
	Logger     *slog.Logger
	// Extract defaults to document.Extract.
	Extract func(path string) (document.Document, error)
}

// Server exposes intake, document reading and invoice comparison as MCP tools.
type Server struct {
	mcp        *server.MCPServer
	dir        string
	extensions []string
	intake     IntakeSource
	comparer   Comparer
	extract    func(path string) (document.Document, error)
	logger     *slog.Logger
}

// ReadResult is the pdf_reader tool payload.
type ReadResult struct {
	Status   string `json:"status"`
	FileName string `json:"filename,omitempty"`
	Path     string `json:"path,omitempty"`
	Format   string `json:"format,omitempty"`
	Pages    int    `json:"pages,omitempty"`
	Content  string `json:"content,omitempty"`
	Message  string `json:"message,omitempty"`
}

// New registers the file_intake, pdf_reader and compare_invoices tools.
func New(opts Options) *Server {
	s := &Server{
		dir:        opts.Dir,
		extensions: append([]string(nil), opts.Extensions...),
		intake:     opts.Intake,
		comparer:   opts.Comparer,
		extract:    opts.Extract,
		logger:     logging.NewComponentLogger(opts.Logger, "mcp"),
	}
	if s.extract == nil {
		s.extract = document.Extract
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = "mailroom"
	}
	version := strings.TrimSpace(opts.Version)
	if version == "" {
		version = "0.1.0"
	}

	s.mcp = server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.mcp.AddTool(mcp.NewTool("file_intake",
		mcp.WithDescription("Find the next unprocessed attachment, record it as processed and return the intake outcome as JSON. "+
			"Call repeatedly until status is no_files or all_processed."),
	), s.handleFileIntake)
	s.mcp.AddTool(mcp.NewTool("pdf_reader",
		mcp.WithDescription("Extract the text of a PDF or XLSX attachment with page or sheet markers. "+
			"When path is omitted the next unprocessed attachment is taken from intake."),
		mcp.WithString("path", mcp.Description("Absolute path of the document to read")),
	), s.handleRead)
	s.mcp.AddTool(mcp.NewTool("compare_invoices",
		mcp.WithDescription("Extract invoice fields from two documents and describe their differences."),
		mcp.WithString("invoice1", mcp.Required(), mcp.Description("Path of the first invoice")),
		mcp.WithString("invoice2", mcp.Required(), mcp.Description("Path of the second invoice")),
	), s.handleCompare)
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcp }

// ServeStdio serves JSON-RPC over the given streams until ctx ends or in
// reaches EOF.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	s.logger.Info("mcp tool server listening on stdio")
	err := stdio.Listen(ctx, in, out)
	if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) handleFileIntake(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.intake == nil {
		return mcp.NewToolResultError("intake is not configured"), nil
	}
	outcome := s.intake.NextUnprocessed(services.WithStage(ctx, "mcp"), s.dir, s.extensions)
	return jsonResult(outcome, outcome.Status == intake.StatusError)
}

func (s *Server) handleRead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := strings.TrimSpace(request.GetString("path", ""))
	if path == "" {
		if s.intake == nil {
			return mcp.NewToolResultError("no path given and intake is not configured"), nil
		}
		outcome := s.intake.NextUnprocessed(services.WithStage(ctx, "mcp"), s.dir, s.extensions)
		if outcome.Status != intake.StatusFound {
			return jsonResult(ReadResult{Status: string(outcome.Status), Message: outcome.Message}, outcome.Status == intake.StatusError)
		}
		path = outcome.FilePath
	}

	doc, err := s.extract(path)
	if err != nil {
		logging.WithContext(ctx, s.logger).Debug("pdf_reader extraction failed",
			logging.FileName(filepath.Base(path)),
			logging.Error(err))
		return jsonResult(ReadResult{
			Status:   "error",
			FileName: filepath.Base(path),
			Path:     path,
			Message:  err.Error(),
		}, true)
	}
	return jsonResult(ReadResult{
		Status:   "success",
		FileName: doc.Name,
		Path:     doc.Path,
		Format:   string(doc.Format),
		Pages:    doc.Pages,
		Content:  doc.Text,
	}, false)
}

func (s *Server) handleCompare(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.comparer == nil {
		return mcp.NewToolResultError("invoice comparison is not configured"), nil
	}
	left, err := request.RequireString("invoice1")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	right, err := request.RequireString("invoice2")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result, err := s.comparer.Compare(ctx, left, right)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("compare failed (%s): %v", services.ErrorKind(err), err)), nil
	}
	return jsonResult(result, false)
}

func jsonResult(payload any, isError bool) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	result := mcp.NewToolResultText(string(data))
	result.IsError = isError
	return result, nil
}
