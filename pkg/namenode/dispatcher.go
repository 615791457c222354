package namenode

import (
	"errors"
	"fmt"
	"time"

	"minidfs/pkg/catalog"
	"minidfs/pkg/membership"
	"minidfs/pkg/metrics"
	"minidfs/pkg/placement"
	"minidfs/pkg/protocol"
	"minidfs/pkg/types"

	"go.uber.org/zap"
)

type ResultKind int

const (
	// ResultDrop means the connection is closed without a reply.
	ResultDrop ResultKind = iota
	ResultFile
	ResultSystem
	ResultNotFound
	ResultError
)

func (k ResultKind) String() string {
	switch k {
	case ResultDrop:
		return "dropped"
	case ResultFile, ResultSystem:
		return "ok"
	case ResultNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// Result is the outcome of one dispatched request. The transport decides how
// each kind is put on the wire.
type Result struct {
	Kind    ResultKind
	File    types.FileRecord
	Cluster types.ClusterSnapshot
	Err     error
}

// Status maps the result onto a response status byte.
func (r Result) Status() protocol.Status {
	switch r.Kind {
	case ResultFile, ResultSystem:
		return protocol.StatusOK
	case ResultNotFound:
		return protocol.StatusNotFound
	}

	switch {
	case errors.Is(r.Err, catalog.ErrCatalogFull):
		return protocol.StatusCatalogFull
	case errors.Is(r.Err, catalog.ErrFileTooLarge):
		return protocol.StatusFileTooLarge
	case errors.Is(r.Err, placement.ErrNoNodesAvailable):
		return protocol.StatusNoNodesAvailable
	default:
		return protocol.StatusBadRequest
	}
}

// Dispatcher routes decoded requests to the four client operations.
type Dispatcher struct {
	catalog *catalog.Catalog
	members *membership.Table
	engine  *placement.Engine
	metrics *metrics.NamenodeMetrics
	logger  *zap.Logger
}

func NewDispatcher(files *catalog.Catalog, members *membership.Table, engine *placement.Engine, m *metrics.NamenodeMetrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		catalog: files,
		members: members,
		engine:  engine,
		metrics: m,
		logger:  logger,
	}
}

func (d *Dispatcher) Dispatch(req protocol.Request) Result {
	d.logger.Debug("Request received",
		zap.Stringer("op", req.Op),
		zap.String("file", req.FileName),
		zap.Uint64("size", req.FileSize))

	switch req.Op {
	case protocol.OpRead:
		return d.GetFileLocation(req.FileName)
	case protocol.OpWrite:
		return d.GetFileReceivers(req.FileName, req.FileSize)
	case protocol.OpStatus:
		return d.GetSystemInformation()
	case protocol.OpModify:
		return d.GetFileUpdatePoint(req.FileName, req.FileSize)
	default:
		err := fmt.Errorf("%w: %d", protocol.ErrUnknownOperation, int32(req.Op))
		d.logger.Debug("Dropping request", zap.Error(err))
		return Result{Kind: ResultDrop, Err: err}
	}
}

// GetFileLocation returns the full block list of an existing file.
func (d *Dispatcher) GetFileLocation(name string) Result {
	file, ok := d.catalog.FindByName(name)
	if !ok {
		return Result{Kind: ResultNotFound, Err: catalog.ErrNotFound}
	}
	return Result{Kind: ResultFile, File: file}
}

// GetFileReceivers assigns datanodes to the blocks of a file about to be
// written, creating the file if needed. On an existing file only blocks past
// the current block count are assigned; blocks already placed never move.
func (d *Dispatcher) GetFileReceivers(name string, size uint64) Result {
	file, err := d.catalog.Upsert(name, size, func(rec *types.FileRecord, created bool) error {
		if !created {
			d.logger.Warn("Write request for existing file, extending block list only",
				zap.String("file", name),
				zap.Uint64("stored_size", rec.Size),
				zap.Uint64("requested_size", size))
		}
		from := rec.BlockCount
		added, err := d.catalog.GrowIfLarger(rec, size)
		if err != nil {
			return err
		}
		return d.place(rec, from, added)
	})
	d.metrics.Files.Set(float64(d.catalog.Len()))
	if err != nil {
		d.logger.Warn("Block assignment failed", zap.String("file", name), zap.Error(err))
		return Result{Kind: ResultError, Err: err}
	}

	d.logger.Info("Assigned blocks for write",
		zap.String("file", name),
		zap.Uint64("size", file.Size),
		zap.Int("blocks", file.BlockCount))
	return Result{Kind: ResultFile, File: file}
}

func (d *Dispatcher) GetSystemInformation() Result {
	return Result{Kind: ResultSystem, Cluster: d.members.Snapshot()}
}

// GetFileUpdatePoint grows a file ahead of an append. A size that does not
// exceed the stored size returns the record unchanged.
func (d *Dispatcher) GetFileUpdatePoint(name string, size uint64) Result {
	file, err := d.catalog.Mutate(name, func(rec *types.FileRecord) error {
		if size <= rec.Size {
			return nil
		}
		from := rec.BlockCount
		added, err := d.catalog.GrowIfLarger(rec, size)
		if err != nil {
			return err
		}
		for i := from; i < from+added; i++ {
			d.logger.Debug("Modify: assigning block", zap.String("file", name), zap.Int("block", i))
		}
		return d.place(rec, from, added)
	})
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return Result{Kind: ResultNotFound, Err: err}
	case err != nil:
		d.logger.Warn("Block assignment failed", zap.String("file", name), zap.Error(err))
		return Result{Kind: ResultError, Err: err}
	}
	return Result{Kind: ResultFile, File: file}
}

func (d *Dispatcher) place(rec *types.FileRecord, from, count int) error {
	if count == 0 {
		return nil
	}

	start := time.Now()
	err := d.engine.Assign(rec, from, count)
	d.metrics.PlacementLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		d.metrics.FailedPlacements.Inc()
		return err
	}
	d.metrics.BlocksAssigned.Add(float64(count))
	return nil
}
