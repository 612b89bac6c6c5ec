// Package pipeline applies a normalized operation list to a document.
//
// An Executor loads the input once, folds the operations over a single
// working document from left to right and serializes the result. There is
// no rollback: the first failing operation aborts the run and no output is
// produced.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wudi/pdfops/document"
	"github.com/wudi/pdfops/observability"
	"github.com/wudi/pdfops/ops"
	"github.com/wudi/pdfops/recovery"
	"github.com/wudi/pdfops/security"
)

// DefaultMaxImageDimension caps the longer side of embedded watermark
// images, in pixels.
const DefaultMaxImageDimension = 2048

// Config controls an Executor. The zero value is usable.
type Config struct {
	// Compress deduplicates objects and flate-compresses streams on save.
	Compress bool
	Logger   observability.Logger
	// MaxImageDimension bounds embedded images; zero means
	// DefaultMaxImageDimension and a negative value disables downscaling.
	MaxImageDimension int
	// Strict rejects damaged input instead of repairing the cross-reference
	// data and skipping unparsable objects.
	Strict bool
}

// State is what a Handler sees. Handlers may replace Doc.
type State struct {
	Doc    *document.Handle
	Logger observability.Logger

	maxImageDimension int
}

// Handler applies one operation kind.
type Handler interface {
	Apply(ctx context.Context, st *State, op ops.Operation) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, st *State, op ops.Operation) error

func (f HandlerFunc) Apply(ctx context.Context, st *State, op ops.Operation) error {
	return f(ctx, st, op)
}

// Request is one editing run.
type Request struct {
	Document   []byte
	Operations []ops.Operation
	// Image is used by image watermarks that carry no buffer of their own.
	Image []byte
	// Password opens an encrypted Document. When it is empty and the input
	// needs one, the password of the first removepassword operation is
	// tried. An input opened this way is decrypted for every operation.
	Password string
}

// Executor runs operation lists. Register handlers before sharing an
// Executor between goroutines; Apply itself only reads the registry.
type Executor struct {
	cfg      Config
	logger   observability.Logger
	handlers map[string]Handler
}

// NewExecutor returns an Executor with handlers for every built-in kind.
func NewExecutor(cfg Config) *Executor {
	if cfg.MaxImageDimension == 0 {
		cfg.MaxImageDimension = DefaultMaxImageDimension
	}
	e := &Executor{
		cfg:      cfg,
		logger:   observability.OrNop(cfg.Logger),
		handlers: make(map[string]Handler),
	}
	for kind, h := range builtinHandlers() {
		e.handlers[kind] = h
	}
	return e
}

// Register installs or replaces the handler for kind.
func (e *Executor) Register(kind string, h Handler) error {
	if kind == "" {
		return errors.New("pipeline: empty operation kind")
	}
	if h == nil {
		return fmt.Errorf("pipeline: nil handler for %q", kind)
	}
	e.handlers[kind] = h
	return nil
}

// Apply loads req.Document, runs every operation in order and returns the
// serialized result. Failures are *ops.Error values.
func (e *Executor) Apply(ctx context.Context, req Request) ([]byte, error) {
	doc, err := e.load(ctx, req)
	if err != nil {
		return nil, err
	}
	st := &State{Doc: doc, Logger: e.logger, maxImageDimension: e.cfg.MaxImageDimension}

	start := time.Now()
	for i, op := range req.Operations {
		if op == nil {
			return nil, ops.Errorf(ops.InvalidOperationFormat, "", i, "nil operation")
		}
		kind := op.Kind()
		if err := ctx.Err(); err != nil {
			return nil, ops.Wrap(ops.OperationFailed, kind, i, err)
		}
		h, ok := e.handlers[kind]
		if !ok {
			return nil, ops.Errorf(ops.UnsupportedOperation, kind, i, "unsupported operation %q", kind)
		}
		if iw, ok := op.(ops.ImageWatermark); ok && len(iw.ImageBuffer) == 0 {
			iw.ImageBuffer = req.Image
			op = iw
		}

		opStart := time.Now()
		if err := h.Apply(ctx, st, op); err != nil {
			e.logger.Warn("operation failed",
				observability.String("op", kind),
				observability.Int("position", i),
				observability.Error("error", err),
			)
			var oe *ops.Error
			if errors.As(err, &oe) {
				return nil, err
			}
			return nil, ops.Wrap(ops.OperationFailed, kind, i, err)
		}
		e.logger.Info("operation applied",
			observability.String("op", kind),
			observability.Int("position", i),
			observability.Int("pages", st.Doc.PageCount()),
			observability.Duration("duration", time.Since(opStart)),
		)
	}

	out, err := st.Doc.Bytes(ctx, document.SaveOptions{Compress: e.cfg.Compress})
	if err != nil {
		return nil, &ops.Error{Kind: ops.OperationFailed, Position: ops.NoPosition, Message: "save document", Err: err}
	}
	e.logger.Debug("pipeline finished",
		observability.Int("operations", len(req.Operations)),
		observability.Int("pages", st.Doc.PageCount()),
		observability.Int("bytes", len(out)),
		observability.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// load opens req.Document. An input rejected for lack of a password is
// retried with the first removepassword password; a wrong one fails that
// operation rather than the document.
func (e *Executor) load(ctx context.Context, req Request) (*document.Handle, error) {
	opts := []document.LoadOption{document.WithLogger(e.logger)}
	if e.cfg.Strict {
		opts = append(opts, document.WithRecovery(recovery.NewStrictStrategy()))
	}
	doc, err := document.Load(ctx, req.Document, append(opts, document.WithPassword(req.Password))...)
	if err == nil {
		return doc, nil
	}
	if req.Password != "" || !errors.Is(err, security.ErrInvalidPassword) {
		return nil, ops.Wrap(ops.InvalidDocument, "", ops.NoPosition, err)
	}
	for i, op := range req.Operations {
		rp, ok := op.(ops.RemovePassword)
		if !ok {
			continue
		}
		e.logger.Debug("input is encrypted, opening with removepassword password",
			observability.Int("position", i))
		doc, err := document.Load(ctx, req.Document, append(opts, document.WithPassword(rp.Password))...)
		if err != nil {
			if errors.Is(err, security.ErrInvalidPassword) {
				return nil, ops.Wrap(ops.OperationFailed, ops.KindRemovePassword, i, err)
			}
			return nil, ops.Wrap(ops.InvalidDocument, "", ops.NoPosition, err)
		}
		return doc, nil
	}
	return nil, ops.Wrap(ops.InvalidDocument, "", ops.NoPosition, err)
}
