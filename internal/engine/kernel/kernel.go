// Package kernel executes notebooks on a kernel managed by a Jupyter Server,
// speaking the Jupyter messaging protocol over the server's kernel channels
// websocket.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/vk/regimerun/internal/ctxlog"
	"github.com/vk/regimerun/internal/engine"
	"github.com/vk/regimerun/internal/notebook"
)

// shutdownTimeout bounds the kernel cleanup calls made after a run.
const shutdownTimeout = 10 * time.Second

// Engine runs notebooks on a remote kernel.
type Engine struct {
	cfg     engine.Config
	client  *Client
	rootDir string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRootDir sets the local directory the Jupyter Server serves. Work
// directories are then sent to the server relative to it.
func WithRootDir(dir string) Option {
	return func(e *Engine) {
		e.rootDir = dir
	}
}

// New creates a kernel engine for the server at serverURL.
func New(cfg engine.Config, serverURL, token string, opts ...Option) (*Engine, error) {
	client, err := NewClient(serverURL, token)
	if err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg.WithDefaults(), client: client}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// kernelPath maps a local work directory onto the server's path space.
func (e *Engine) kernelPath(workDir string) string {
	if workDir == "" || e.rootDir == "" {
		return workDir
	}
	rel, err := filepath.Rel(e.rootDir, workDir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return workDir
	}
	if rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

// Execute implements engine.Engine.
func (e *Engine) Execute(ctx context.Context, nb *notebook.Notebook, res engine.Resources) error {
	logger := ctxlog.FromContext(ctx).With("engine", "kernel")

	k, err := e.client.StartKernel(ctx, e.cfg.KernelName, e.kernelPath(res.WorkDir))
	if err != nil {
		return err
	}
	logger = logger.With("kernel_id", k.ID)
	logger.Debug("Kernel started.", "kernel_name", k.Name)
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := e.client.ShutdownKernel(cleanupCtx, k.ID); err != nil {
			logger.Warn("Failed to shut down kernel.", "error", err)
			return
		}
		logger.Debug("Kernel shut down.")
	}()

	sess, err := e.client.Connect(ctx, k.ID)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := e.kernelInfo(ctx, sess, nb); err != nil {
		return err
	}

	for i, cell := range nb.Cells {
		if !cell.IsCode() || strings.TrimSpace(cell.Source.String()) == "" {
			continue
		}
		logger.Debug("Executing cell.", "cell", i)
		if err := e.executeCell(ctx, sess, k.ID, i, cell); err != nil {
			return err
		}
	}
	return nil
}

// kernelInfo waits for the kernel to answer and records its language info
// in the notebook metadata.
func (e *Engine) kernelInfo(ctx context.Context, sess *Session, nb *notebook.Notebook) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	msgID, err := sess.send(channelShell, "kernel_info_request", map[string]any{})
	if err != nil {
		return err
	}
	for {
		msg, err := sess.recv(ctx)
		if err != nil {
			return fmt.Errorf("kernel did not answer kernel_info_request: %w", err)
		}
		if msg.ParentHeader.MsgID != msgID || msg.Header.MsgType != "kernel_info_reply" {
			continue
		}
		var reply kernelInfoReply
		if err := msg.decodeContent(&reply); err != nil {
			return fmt.Errorf("failed to decode kernel_info_reply: %w", err)
		}
		if reply.LanguageInfo != nil {
			if nb.Metadata == nil {
				nb.Metadata = make(map[string]any)
			}
			nb.Metadata["language_info"] = reply.LanguageInfo
		}
		return nil
	}
}

// cellRun accumulates the state of one execute_request.
type cellRun struct {
	cell         *notebook.Cell
	reply        *executeReply
	idle         bool
	clearPending bool
	timing       map[string]any
}

func (e *Engine) executeCell(ctx context.Context, sess *Session, kernelID string, index int, cell *notebook.Cell) error {
	cell.ClearOutputs()
	run := &cellRun{cell: cell, timing: make(map[string]any)}

	cellCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	msgID, err := sess.send(channelShell, "execute_request", executeRequest{
		Code:            cell.Source.String(),
		StoreHistory:    true,
		UserExpressions: map[string]any{},
		StopOnError:     true,
	})
	if err != nil {
		return err
	}

	for run.reply == nil || !run.idle {
		msg, err := sess.recv(cellCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				interruptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				_ = e.client.InterruptKernel(interruptCtx, kernelID)
				cancel()
				return &engine.TimeoutError{CellIndex: index, Timeout: e.cfg.Timeout}
			}
			return err
		}
		if msg.ParentHeader.MsgID != msgID {
			continue
		}
		if err := run.handle(msg); err != nil {
			return err
		}
	}

	if cell.Metadata == nil {
		cell.Metadata = make(map[string]any)
	}
	cell.Metadata["execution"] = run.timing

	switch run.reply.Status {
	case "ok":
		if run.reply.ExecutionCount != nil {
			cell.ExecutionCount = run.reply.ExecutionCount
		}
		return nil
	case "error":
		return &engine.CellExecutionError{
			CellIndex: index,
			EName:     run.reply.EName,
			EValue:    run.reply.EValue,
			Traceback: run.reply.Traceback,
		}
	default:
		return &engine.CellExecutionError{CellIndex: index, EName: "ExecutionAborted", EValue: run.reply.Status}
	}
}

func (r *cellRun) handle(msg *Message) error {
	if msg.Channel == channelShell {
		if msg.Header.MsgType != "execute_reply" {
			return nil
		}
		var reply executeReply
		if err := msg.decodeContent(&reply); err != nil {
			return fmt.Errorf("failed to decode execute_reply: %w", err)
		}
		r.reply = &reply
		r.timing["shell.execute_reply"] = msg.Header.Date
		return nil
	}
	if msg.Channel != channelIOPub {
		return nil
	}

	switch msg.Header.MsgType {
	case "status":
		var c statusContent
		if err := msg.decodeContent(&c); err != nil {
			return err
		}
		switch c.ExecutionState {
		case "busy":
			r.timing["iopub.status.busy"] = msg.Header.Date
		case "idle":
			r.timing["iopub.status.idle"] = msg.Header.Date
			r.idle = true
		}
	case "execute_input":
		var c executeInputContent
		if err := msg.decodeContent(&c); err != nil {
			return err
		}
		r.timing["iopub.execute_input"] = msg.Header.Date
		if c.ExecutionCount != nil {
			r.cell.ExecutionCount = c.ExecutionCount
		}
	case "clear_output":
		var c clearOutputContent
		if err := msg.decodeContent(&c); err != nil {
			return err
		}
		if c.Wait {
			r.clearPending = true
		} else {
			r.cell.Outputs = nil
		}
	case "stream":
		var c streamContent
		if err := msg.decodeContent(&c); err != nil {
			return err
		}
		r.appendStream(c.Name, c.Text)
	case "display_data", "execute_result":
		var c displayContent
		if err := msg.decodeContent(&c); err != nil {
			return err
		}
		out := &notebook.Output{OutputType: msg.Header.MsgType, Data: c.Data, Metadata: c.Metadata}
		if msg.Header.MsgType == notebook.OutputExecuteResult {
			out.ExecutionCount = c.ExecutionCount
		}
		r.appendOutput(out)
	case "error":
		var c errorContent
		if err := msg.decodeContent(&c); err != nil {
			return err
		}
		r.appendOutput(notebook.NewError(c.EName, c.EValue, c.Traceback))
	}
	return nil
}

func (r *cellRun) appendOutput(out *notebook.Output) {
	if r.clearPending {
		r.cell.Outputs = nil
		r.clearPending = false
	}
	r.cell.Outputs = append(r.cell.Outputs, out)
}

// appendStream merges consecutive chunks written to the same stream.
func (r *cellRun) appendStream(name, text string) {
	if !r.clearPending && len(r.cell.Outputs) > 0 {
		last := r.cell.Outputs[len(r.cell.Outputs)-1]
		if last.OutputType == notebook.OutputStream && last.Name == name {
			last.Text += notebook.MultilineString(text)
			return
		}
	}
	r.appendOutput(notebook.NewStream(name, text))
}
