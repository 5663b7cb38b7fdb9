// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package relay drives signed operations through the Load, Sign and Execute
// calls of a destination endpoint.
package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	lru "github.com/hashicorp/golang-lru"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/photon/utils/timer/mockable"
	"github.com/luxfi/photon/vms/photonvm/endpoint"
	"github.com/luxfi/photon/vms/photonvm/opdata"
	"github.com/luxfi/photon/vms/photonvm/signature"
	"github.com/luxfi/photon/vms/photonvm/state"
)

var (
	ErrQueueFull         = errors.New("relay queue is full")
	ErrInFlight          = errors.New("operation is already in flight")
	ErrExtensionExists   = errors.New("extension already registered")
	ErrExtensionNotFound = errors.New("extension not found")

	errAlreadyStarted   = errors.New("relayer already started")
	errInvalidConfig    = errors.New("invalid relay config")
	errUnknownStep      = errors.New("unknown step")
	errUnexpectedStatus = errors.New("unexpected operation status")
)

// AckStatus is reported for every operation the relayer accepts.
type AckStatus uint8

const (
	AckNew AckStatus = iota
	AckExecuted
	AckFailed
)

func (s AckStatus) String() string {
	switch s {
	case AckNew:
		return "new"
	case AckExecuted:
		return "executed"
	case AckFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

type Ack struct {
	OpHash      common.Hash
	BlockNumber uint64
	Status      AckStatus
}

// SignedOperation is an operation together with the transmitter signatures
// collected for it on the source chain.
type SignedOperation struct {
	Operation   opdata.Operation      `json:"operation"`
	Signatures  []signature.Signature `json:"signatures"`
	BlockNumber uint64                `json:"eobBlockNumber"`
}

type Config struct {
	Workers     int `json:"workers"`
	QueueSize   int `json:"queueSize"`
	MaxAttempts int `json:"maxAttempts"`
	// FinalizationTimeout bounds how long a submitted step may take to show
	// up in the operation status before it is submitted again.
	FinalizationTimeout time.Duration `json:"finalizationTimeout"`
	PollInterval        time.Duration `json:"pollInterval"`
	RetryDelay          time.Duration `json:"retryDelay"`
	CompletedCacheSize  int           `json:"completedCacheSize"`
}

func DefaultConfig() Config {
	return Config{
		Workers:             16,
		QueueSize:           1024,
		MaxAttempts:         5,
		FinalizationTimeout: 30 * time.Second,
		PollInterval:        500 * time.Millisecond,
		RetryDelay:          time.Second,
		CompletedCacheSize:  4096,
	}
}

func (c *Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive", errInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue size must be positive", errInvalidConfig)
	case c.MaxAttempts <= 0:
		return fmt.Errorf("%w: max attempts must be positive", errInvalidConfig)
	case c.FinalizationTimeout <= 0 || c.PollInterval <= 0:
		return fmt.Errorf("%w: finalization timeout and poll interval must be positive", errInvalidConfig)
	case c.RetryDelay < 0:
		return fmt.Errorf("%w: retry delay is negative", errInvalidConfig)
	case c.CompletedCacheSize <= 0:
		return fmt.Errorf("%w: completed cache size must be positive", errInvalidConfig)
	}
	return nil
}

type job struct {
	op     *SignedOperation
	opHash common.Hash
}

// Relayer processes submitted operations concurrently. Each operation's
// steps are submitted strictly in order, the next step always chosen from
// the status the destination reports.
type Relayer struct {
	config     Config
	log        log.Logger
	encoding   opdata.Encoding
	transactor Transactor
	extensions *Extensions
	metrics    *relayerMetrics
	clock      mockable.Clock

	queue chan *job
	acks  chan Ack

	lock     sync.Mutex
	inFlight map[common.Hash]struct{}
	// executed operation hashes
	completed *lru.Cache
	cancel    context.CancelFunc
	done      chan struct{}
}

func New(
	config Config,
	encoding opdata.Encoding,
	transactor Transactor,
	extensions *Extensions,
	logger log.Logger,
	registerer metric.Registerer,
) (*Relayer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	completed, err := lru.New(config.CompletedCacheSize)
	if err != nil {
		return nil, err
	}
	m, err := newRelayerMetrics(registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register relay metrics: %w", err)
	}
	if extensions == nil {
		extensions = NewExtensions()
	}
	return &Relayer{
		config:     config,
		log:        logger,
		encoding:   encoding,
		transactor: transactor,
		extensions: extensions,
		metrics:    m,
		queue:      make(chan *job, config.QueueSize),
		acks:       make(chan Ack, config.QueueSize),
		inFlight:   make(map[common.Hash]struct{}),
		completed:  completed,
	}, nil
}

// Acks must be drained while the relayer runs.
func (r *Relayer) Acks() <-chan Ack {
	return r.acks
}

func (r *Relayer) Start(ctx context.Context) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	if r.done != nil {
		return errAlreadyStarted
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.run(ctx, r.done)

	r.log.Info("relayer started",
		log.Int("workers", r.config.Workers),
		log.Int("queueSize", r.config.QueueSize),
	)
	return nil
}

// Stop cancels in-flight operations and waits for the workers to exit.
func (r *Relayer) Stop() {
	r.lock.Lock()
	cancel, done := r.cancel, r.done
	r.lock.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	r.log.Info("relayer stopped")
}

// Submit queues op. An operation the relayer already executed is
// acknowledged again without being resubmitted.
func (r *Relayer) Submit(ctx context.Context, op *SignedOperation) error {
	if err := op.Operation.Validate(); err != nil {
		return fmt.Errorf("%w: %w", endpoint.ErrInvalidOpData, err)
	}
	opHash, err := op.Operation.MessageHash(r.encoding)
	if err != nil {
		return fmt.Errorf("%w: %w", endpoint.ErrInvalidOpData, err)
	}

	r.lock.Lock()
	if r.completed.Contains(opHash) {
		r.lock.Unlock()
		r.log.Debug("operation already executed",
			log.Stringer("opHash", opHash),
		)
		return r.ack(ctx, Ack{
			OpHash:      opHash,
			BlockNumber: op.BlockNumber,
			Status:      AckExecuted,
		})
	}
	if _, ok := r.inFlight[opHash]; ok {
		r.lock.Unlock()
		return fmt.Errorf("%w: %s", ErrInFlight, opHash)
	}
	select {
	case r.queue <- &job{op: op, opHash: opHash}:
	default:
		r.lock.Unlock()
		return ErrQueueFull
	}
	r.inFlight[opHash] = struct{}{}
	r.lock.Unlock()

	r.metrics.inFlight.Inc()
	return nil
}

func (r *Relayer) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	var g errgroup.Group
	g.SetLimit(r.config.Workers)
	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return
		case j := <-r.queue:
			g.Go(func() error {
				r.process(ctx, j)
				return nil
			})
		}
	}
}

func (r *Relayer) ack(ctx context.Context, a Ack) error {
	select {
	case r.acks <- a:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relayer) process(ctx context.Context, j *job) {
	defer r.metrics.inFlight.Dec()

	if err := r.ack(ctx, Ack{OpHash: j.opHash, BlockNumber: j.op.BlockNumber, Status: AckNew}); err != nil {
		r.release(j.opHash, false)
		return
	}

	start := r.clock.Time()
	status, err := r.drive(ctx, j)
	r.metrics.duration.Observe(float64(r.clock.Since(start)))
	r.release(j.opHash, err == nil && status == AckExecuted)
	if err != nil {
		r.log.Debug("operation abandoned",
			log.Stringer("opHash", j.opHash),
			log.Err(err),
		)
		return
	}

	switch status {
	case AckExecuted:
		r.metrics.executed.Inc()
		r.log.Info("operation executed",
			log.Stringer("opHash", j.opHash),
			log.Uint64("blockNumber", j.op.BlockNumber),
		)
	case AckFailed:
		r.metrics.failed.Inc()
		r.log.Warn("operation failed",
			log.Stringer("opHash", j.opHash),
			log.Uint64("blockNumber", j.op.BlockNumber),
		)
	}
	_ = r.ack(ctx, Ack{OpHash: j.opHash, BlockNumber: j.op.BlockNumber, Status: status})
}

func (r *Relayer) release(opHash common.Hash, executed bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.inFlight, opHash)
	if executed {
		r.completed.Add(opHash, struct{}{})
	}
}

// drive submits the steps of j until the operation is executed or the
// same status was observed MaxAttempts times in a row. The error is only
// set when ctx is done.
func (r *Relayer) drive(ctx context.Context, j *job) (AckStatus, error) {
	var (
		last     state.Status
		seen     bool
		attempts int
	)
	for {
		if err := ctx.Err(); err != nil {
			return AckNew, err
		}

		status, err := r.transactor.Status(ctx, j.opHash)
		if err != nil {
			r.log.Warn("failed to fetch operation status",
				log.Stringer("opHash", j.opHash),
				log.Err(err),
			)
			attempts++
			if attempts >= r.config.MaxAttempts {
				return AckFailed, nil
			}
			if err := r.sleep(ctx, r.config.RetryDelay); err != nil {
				return AckNew, err
			}
			continue
		}

		if seen && status == last {
			attempts++
		} else {
			last, seen, attempts = status, true, 0
		}
		if status == state.StatusExecuted {
			return AckExecuted, nil
		}
		if attempts >= r.config.MaxAttempts {
			r.log.Warn("operation status did not advance",
				log.Stringer("opHash", j.opHash),
				log.Stringer("status", status),
				log.Int("attempts", attempts),
			)
			return AckFailed, nil
		}

		tx, err := r.build(j, status)
		if err != nil {
			r.log.Error("failed to build transaction",
				log.Stringer("opHash", j.opHash),
				log.Stringer("status", status),
				log.Err(err),
			)
			return AckFailed, nil
		}

		r.metrics.submissions.WithLabelValues(tx.Step.String()).Inc()
		err = r.transactor.Submit(ctx, tx)
		switch {
		case err == nil:
			if err := r.await(ctx, j.opHash, status); err != nil {
				return AckNew, err
			}
		case errors.Is(err, endpoint.ErrOpStateInvalid):
			// the status moved since it was read
			r.log.Debug("stale operation status",
				log.Stringer("opHash", j.opHash),
				log.Stringer("step", tx.Step),
			)
		case !endpoint.IsRetryable(err):
			r.log.Warn("operation rejected",
				log.Stringer("opHash", j.opHash),
				log.Stringer("step", tx.Step),
				log.Err(err),
			)
			return AckFailed, nil
		default:
			r.log.Warn("submission failed",
				log.Stringer("opHash", j.opHash),
				log.Stringer("step", tx.Step),
				log.Err(err),
			)
			if err := r.sleep(ctx, r.config.RetryDelay); err != nil {
				return AckNew, err
			}
		}
	}
}

// build returns the transaction that advances an operation out of status.
func (r *Relayer) build(j *job, status state.Status) (*Transaction, error) {
	op := &j.op.Operation
	tx := &Transaction{OpHash: j.opHash}
	switch status {
	case state.StatusNone:
		tx.Step = StepLoad
		tx.Operation = op
	case state.StatusInit:
		tx.Step = StepSign
		tx.Signatures = j.op.Signatures
	case state.StatusSigned:
		ext, ok := r.extensions.Get(op.Protocol())
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrExtensionNotFound, op.Protocol())
		}
		accounts, err := ext.Accounts(op.FunctionSelector, op.Params)
		if err != nil {
			return nil, err
		}
		tx.Step = StepExecute
		tx.Accounts = append([]ids.ID{op.ProtocolAddr}, accounts...)
		tx.ComputeBudget = defaultComputeBudget
		if budget, ok := ext.ComputeBudget(op.FunctionSelector, op.Params); ok {
			tx.ComputeBudget = budget
		}
		if err := ext.SignTransaction(op.FunctionSelector, op.Params, tx); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %s", errUnexpectedStatus, status)
	}
	return tx, nil
}

// await polls until the status of opHash moves past from or the
// finalization window closes.
func (r *Relayer) await(ctx context.Context, opHash common.Hash, from state.Status) error {
	start := r.clock.Time()
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		status, err := r.transactor.Status(ctx, opHash)
		if err == nil && status != from {
			return nil
		}
		if r.clock.Since(start) >= r.config.FinalizationTimeout {
			r.log.Debug("finalization window elapsed",
				log.Stringer("opHash", opHash),
				log.Stringer("status", from),
			)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (*Relayer) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
