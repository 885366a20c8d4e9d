package flash

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KevoDB/flashkv/pkg/common/log"
)

type opKind int

const (
	opErase opKind = iota
	opProgram
)

func (k opKind) String() string {
	if k == opErase {
		return "erase"
	}
	return "program"
}

// operation is a single outstanding erase or program
type operation struct {
	kind opKind
	page int
	addr uint32
	data []byte
	done chan struct{}
	err  error
}

// Controller implements Device over a Medium with NOR semantics. Each
// operation is accepted immediately and completed later by a timer event,
// the way a flash controller shared with a radio stack signals completion.
type Controller struct {
	geom    Geometry
	medium  Medium
	latency time.Duration
	strict  bool
	logger  log.Logger

	mu      sync.Mutex
	pending *operation
	last    *operation
	closed  bool
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithLatency sets the delay between accepting an operation and its completion
func WithLatency(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.latency = d
	}
}

// WithStrictProgram makes programs that need a 0->1 transition fail instead
// of silently ANDing into the medium
func WithStrictProgram(strict bool) ControllerOption {
	return func(c *Controller) {
		c.strict = strict
	}
}

// WithLogger sets the logger used for operation tracing
func WithLogger(logger log.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController creates a controller for medium laid out as geom.
func NewController(medium Medium, geom Geometry, options ...ControllerOption) (*Controller, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if medium.Size() != geom.Size() {
		return nil, fmt.Errorf("%w: medium is %d bytes, geometry needs %d", ErrGeometryMismatch, medium.Size(), geom.Size())
	}

	c := &Controller{
		geom:   geom,
		medium: medium,
		strict: true,
		logger: log.GetDefaultLogger().WithField("component", "flash"),
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

// NewMemoryController is a convenience for an erased in-memory region.
func NewMemoryController(geom Geometry, options ...ControllerOption) (*Controller, error) {
	return NewController(NewMemoryMedium(geom.Size()), geom, options...)
}

func (c *Controller) Geometry() Geometry {
	return c.geom
}

func (c *Controller) ReadAt(p []byte, addr uint32) error {
	if int64(addr)+int64(len(p)) > c.geom.Size() {
		return fmt.Errorf("%w: read %d bytes at 0x%X", ErrOutOfRange, len(p), addr)
	}
	if _, err := c.medium.ReadAt(p, int64(addr)); err != nil {
		return fmt.Errorf("failed to read flash: %w", err)
	}
	return nil
}

func (c *Controller) Erase(page int) error {
	if page < 0 || page >= c.geom.PageCount {
		return fmt.Errorf("%w: page %d", ErrOutOfRange, page)
	}
	return c.start(&operation{kind: opErase, page: page, addr: c.geom.PageBase(page)})
}

func (c *Controller) Program(addr uint32, data []byte) error {
	if addr%WordSize != 0 || len(data)%WordSize != 0 {
		return fmt.Errorf("%w: %d bytes at 0x%X", ErrUnaligned, len(data), addr)
	}
	if len(data) == 0 {
		return nil
	}

	end := int64(addr) + int64(len(data))
	if end > c.geom.Size() {
		return fmt.Errorf("%w: program %d bytes at 0x%X", ErrOutOfRange, len(data), addr)
	}
	if addr/c.geom.PageSize != uint32((end-1)/int64(c.geom.PageSize)) {
		return fmt.Errorf("%w: program at 0x%X crosses a page boundary", ErrOutOfRange, addr)
	}

	return c.start(&operation{
		kind: opProgram,
		page: int(addr / c.geom.PageSize),
		addr: addr,
		data: append([]byte(nil), data...),
	})
}

func (c *Controller) start(op *operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.pending != nil {
		return ErrBusy
	}

	op.done = make(chan struct{})
	c.pending = op
	c.last = op

	c.logger.Debug("%s started at 0x%X (%d bytes)", op.kind, op.addr, len(op.data))
	time.AfterFunc(c.latency, func() { c.complete(op) })
	return nil
}

// complete applies op to the medium and signals its waiters
func (c *Controller) complete(op *operation) {
	op.err = c.apply(op)

	c.mu.Lock()
	if c.pending == op {
		c.pending = nil
	}
	c.mu.Unlock()

	if op.err != nil {
		c.logger.Error("%s at 0x%X failed: %v", op.kind, op.addr, op.err)
	}
	close(op.done)
}

func (c *Controller) apply(op *operation) error {
	switch op.kind {
	case opErase:
		erased := make([]byte, c.geom.PageSize)
		for i := range erased {
			erased[i] = ErasedByte
		}
		if _, err := c.medium.WriteAt(erased, int64(op.addr)); err != nil {
			return fmt.Errorf("failed to erase page %d: %w", op.page, err)
		}

	case opProgram:
		current := make([]byte, len(op.data))
		if _, err := c.medium.ReadAt(current, int64(op.addr)); err != nil {
			return fmt.Errorf("failed to read before program: %w", err)
		}
		for i, b := range op.data {
			if c.strict && ^current[i]&b != 0 {
				return fmt.Errorf("%w: byte at 0x%X is 0x%02X, program wants 0x%02X",
					ErrProgramConflict, op.addr+uint32(i), current[i], b)
			}
			current[i] &= b
		}
		if _, err := c.medium.WriteAt(current, int64(op.addr)); err != nil {
			return fmt.Errorf("failed to program: %w", err)
		}
	}

	return c.medium.Sync()
}

func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	op := c.last
	c.mu.Unlock()

	if op == nil {
		return nil
	}

	select {
	case <-op.done:
		return op.err
	case <-ctx.Done():
		return fmt.Errorf("%w: %s at 0x%X: %v", ErrTimeout, op.kind, op.addr, ctx.Err())
	}
}

// Snapshot returns a copy of the whole region as currently stored.
func (c *Controller) Snapshot() ([]byte, error) {
	image := make([]byte, c.geom.Size())
	if _, err := c.medium.ReadAt(image, 0); err != nil {
		return nil, fmt.Errorf("failed to snapshot flash: %w", err)
	}
	return image, nil
}

// Close waits for an outstanding operation and releases the medium.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	op := c.pending
	c.mu.Unlock()

	if op != nil {
		<-op.done
	}
	return c.medium.Close()
}
