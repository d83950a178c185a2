package api

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/roombook/internal/bus"
	"github.com/matheus3301/roombook/internal/domain"
	"github.com/matheus3301/roombook/internal/status"
	"github.com/matheus3301/roombook/internal/store"
	intsync "github.com/matheus3301/roombook/internal/sync"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// SyncService implements the SyncService gRPC service.
type SyncService struct {
	profile string
	db      *store.DB
	engine  *intsync.Engine
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	started time.Time
}

// NewSyncService creates a new sync service. engine may be nil, in which
// case Sync reports Unavailable.
func NewSyncService(profile string, db *store.DB, engine *intsync.Engine, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncService{
		profile: profile,
		db:      db,
		engine:  engine,
		bus:     b,
		machine: machine,
		logger:  logger,
		started: time.Now(),
	}
}

func (s *SyncService) GetStatus(_ context.Context, _ *GetStatusRequest) (*GetStatusResponse, error) {
	resp := &GetStatusResponse{
		Profile:  s.profile,
		State:    string(s.machine.Current()),
		Online:   s.machine.IsOnline(),
		UptimeMs: time.Since(s.started).Milliseconds(),
	}
	if s.db != nil {
		counts, err := s.db.PendingCount()
		if err != nil {
			return nil, toStatus(err)
		}
		resp.Pending = counts[domain.OpPending]
		resp.Quarantined = counts[domain.OpQuarantined]
		resp.Processed = counts[domain.OpProcessed]
	}
	return resp, nil
}

func (s *SyncService) Sync(ctx context.Context, req *SyncRequest) (*SyncResponse, error) {
	if s.engine == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "sync engine not initialized")
	}
	if !s.machine.IsOnline() {
		return nil, grpcstatus.Errorf(codes.Unavailable, "remote unreachable (state %s)", s.machine.Current())
	}

	if req.SkipPull {
		res, err := s.engine.Sync(ctx)
		if err != nil {
			return nil, toStatus(err)
		}
		return &SyncResponse{Result: res}, nil
	}

	select {
	case o := <-s.engine.Trigger(ctx):
		if o.Err != nil {
			return nil, toStatus(o.Err)
		}
		return &SyncResponse{Result: o.Result, Pull: o.Pull}, nil
	case <-ctx.Done():
		return nil, toStatus(ctx.Err())
	}
}

func (s *SyncService) ListPending(_ context.Context, _ *ListPendingRequest) (*ListOperationsResponse, error) {
	ops, err := s.db.GetPendingOperations()
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListOperationsResponse{Operations: ops}, nil
}

func (s *SyncService) ListQuarantined(_ context.Context, _ *ListQuarantinedRequest) (*ListOperationsResponse, error) {
	ops, err := s.db.GetQuarantinedOperations()
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListOperationsResponse{Operations: ops}, nil
}

func (s *SyncService) Requeue(_ context.Context, req *RequeueRequest) (*RequeueResponse, error) {
	ids := req.IDs
	if req.All {
		ops, err := s.db.GetQuarantinedOperations()
		if err != nil {
			return nil, toStatus(err)
		}
		ids = ids[:0:0]
		for _, op := range ops {
			ids = append(ids, op.ID)
		}
	}
	if len(ids) == 0 && !req.All {
		return nil, grpcstatus.Error(codes.InvalidArgument, "no operation ids given")
	}

	resp := &RequeueResponse{Requeued: []int64{}}
	for _, id := range ids {
		if err := s.db.RequeueOperation(id); err != nil {
			return resp, toStatus(err)
		}
		resp.Requeued = append(resp.Requeued, id)
	}
	if len(resp.Requeued) > 0 {
		s.logger.Info("operations requeued", zap.Int64s("ids", resp.Requeued))
	}
	return resp, nil
}

func (s *SyncService) WatchEvents(req *WatchEventsRequest, stream grpc.ServerStreamingServer[EventEnvelope]) error {
	ch, unsub := s.bus.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if !matchesPrefix(evt.Kind, req.Prefixes) {
				continue
			}
			if err := stream.Send(s.envelope(evt)); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (s *SyncService) envelope(evt bus.Event) *EventEnvelope {
	env := &EventEnvelope{
		EventID:          uuid.NewString(),
		Profile:          s.profile,
		OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
		Kind:             evt.Kind,
		PayloadVersion:   1,
	}
	payload := evt.Payload
	if err, ok := payload.(error); ok {
		payload = map[string]string{"error": err.Error()}
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			s.logger.Warn("failed to encode event payload", zap.String("kind", evt.Kind), zap.Error(err))
		} else {
			env.Payload = raw
		}
	}
	return env
}

func matchesPrefix(kind string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(kind, p) {
			return true
		}
	}
	return false
}
