// Package host runs the sending side: it pushes every tensor of a model
// container to the peer, then answers the peer's request frames with the
// input tensor.
package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/auth"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/journal"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/link"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/protocol/session"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/server"
	"github.com/ZhenzezZ/FPGA-Speak-recognition-ACC/internal/tensorfile"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoWork         = errors.New("host: nothing to send")
	ErrMissingInput   = errors.New("host: input path required to serve requests")
	ErrInvalidRequest = errors.New("host: invalid request poll interval")
)

// ServiceConfig configures one host run.
type ServiceConfig struct {
	Name           string
	Link           link.Config
	Session        session.Config
	ModelPath      string
	InputPath      string
	InputTensorID  uint32
	ListenRequests bool
	// Resume skips tensors the journal already holds as done.
	Resume      bool
	RequestPoll time.Duration
	StatusAddr  string
	CorsOrigins []string
	// StatusToken, when set, is required as a bearer token on /transfers.
	StatusToken string
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Name:           "tensorctl",
		Link:           link.DefaultConfig(),
		Session:        session.DefaultConfig(),
		InputTensorID:  99,
		ListenRequests: true,
		RequestPoll:    time.Second,
	}
}

type Service struct {
	cfg    ServiceConfig
	link   *link.Link
	sender *session.Sender
	store  journal.Store
	runID  string
	log    zerolog.Logger

	// serializes transfers on the shared link
	sendMu sync.Mutex
}

func NewService(cfg ServiceConfig, l *link.Link, store journal.Store) (*Service, error) {
	if l == nil {
		return nil, errors.New("host: nil link")
	}
	if store == nil {
		store = journal.NewMemory()
	}
	if cfg.RequestPoll <= 0 {
		return nil, ErrInvalidRequest
	}
	sender, err := session.NewSender(l, session.ListenerFor(l), cfg.Session)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	return &Service{
		cfg:    cfg,
		link:   l,
		sender: sender,
		store:  store,
		runID:  runID,
		log:    log.With().Str("node", cfg.Name).Str("run_id", runID).Logger(),
	}, nil
}

func (s *Service) RunID() string {
	return s.runID
}

func (s *Service) Journal() journal.Store {
	return s.store
}

// Run sends the model container, then serves peer requests if enabled. It
// returns nil once ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.ModelPath) == "" && !s.cfg.ListenRequests {
		return ErrNoWork
	}
	if s.cfg.ListenRequests && strings.TrimSpace(s.cfg.InputPath) == "" {
		return ErrMissingInput
	}

	statusErr := make(chan error, 1)
	if strings.TrimSpace(s.cfg.StatusAddr) != "" {
		srv := server.New(s.cfg.Name, s.cfg.StatusAddr, s.cfg.CorsOrigins, s.store)
		if token := strings.TrimSpace(s.cfg.StatusToken); token != "" {
			srv.SetValidator(auth.StaticToken{Token: token})
		}
		go func() {
			statusErr <- srv.Serve(ctx)
		}()
	}

	s.log.Info().
		Str("interface", s.cfg.Link.Interface).
		Str("dst", s.cfg.Link.Dst.String()).
		Int("fragment_size", s.cfg.Session.FragmentSize).
		Msg("host run start")

	if strings.TrimSpace(s.cfg.ModelPath) != "" {
		tensors, err := tensorfile.ReadFile(s.cfg.ModelPath)
		if err != nil {
			return fmt.Errorf("read model %s: %w", s.cfg.ModelPath, err)
		}
		if err := s.SendTensors(ctx, tensors); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	if s.cfg.ListenRequests {
		if err := s.ServeRequests(ctx); err != nil {
			return err
		}
	} else {
		s.log.Info().Msg("model sent, not listening for requests")
	}

	select {
	case err := <-statusErr:
		return err
	default:
		return nil
	}
}

// SendTensors transfers each tensor's raw block in order, journaling every
// outcome. The first failure stops the run.
func (s *Service) SendTensors(ctx context.Context, tensors []tensorfile.Tensor) error {
	s.log.Info().Int("tensors", len(tensors)).Msg("sending model")
	for _, t := range tensors {
		if s.cfg.Resume {
			done, err := journal.Done(ctx, s.store, t.ID)
			if err != nil {
				return fmt.Errorf("journal lookup tensor %d: %w", t.ID, err)
			}
			if done {
				s.log.Info().Uint32("tensor_id", t.ID).Msg("skipping tensor already sent")
				continue
			}
		}
		if _, err := s.SendPayload(ctx, t.ID, t.Raw); err != nil {
			return err
		}
	}
	return nil
}

// SendPayload runs one journaled transfer.
func (s *Service) SendPayload(ctx context.Context, tensorID uint32, payload []byte) (session.Result, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	prev, err := s.store.Get(ctx, tensorID)
	if err != nil && !errors.Is(err, journal.ErrNotFound) {
		return session.Result{}, fmt.Errorf("journal lookup tensor %d: %w", tensorID, err)
	}
	entry := journal.Entry{
		TensorID:    tensorID,
		Status:      journal.StatusSending,
		TotalLength: len(payload),
		Attempts:    prev.Attempts + 1,
		RunID:       s.runID,
		UpdatedAt:   time.Now(),
	}
	if err := s.store.Put(ctx, entry); err != nil {
		return session.Result{}, fmt.Errorf("journal tensor %d: %w", tensorID, err)
	}

	res, sendErr := s.sender.Send(ctx, tensorID, payload)
	entry.TotalFragments = res.TotalFragments
	entry.Transmissions = res.Transmissions
	entry.Timeouts = res.Timeouts
	entry.Nacks = res.Nacks
	entry.Resyncs = res.Resyncs
	entry.UpdatedAt = time.Now()
	entry.Status = journal.StatusDone
	if sendErr != nil {
		entry.Status = journal.StatusFailed
		entry.LastError = sendErr.Error()
	}
	// record the outcome even if ctx was cancelled mid-transfer
	if err := s.store.Put(context.WithoutCancel(ctx), entry); err != nil {
		s.log.Warn().Err(err).Uint32("tensor_id", tensorID).Msg("journal update failed")
	}
	if sendErr != nil {
		return res, fmt.Errorf("tensor %d: %w", tensorID, sendErr)
	}
	return res, nil
}

// ServeRequests answers each request frame from the peer by sending the
// input tensor, re-read from InputPath so a fresh capture is picked up.
func (s *Service) ServeRequests(ctx context.Context) error {
	match := s.link.FromPeer(s.cfg.Link.RequestType)
	s.log.Info().Uint32("tensor_id", s.cfg.InputTensorID).Msg("listening for peer requests")
	for {
		_, ok, err := s.link.AwaitFrame(ctx, match, s.cfg.RequestPoll)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("await request: %w", err)
		}
		if !ok {
			continue
		}
		s.log.Info().Msg("peer requested input")
		payload, err := os.ReadFile(s.cfg.InputPath)
		if err != nil {
			s.log.Error().Err(err).Str("path", s.cfg.InputPath).Msg("read input failed")
			continue
		}
		if _, err := s.SendPayload(ctx, s.cfg.InputTensorID, payload); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, session.ErrRetriesExhausted) {
				s.log.Warn().Err(err).Msg("input transfer gave up")
				continue
			}
			return err
		}
	}
}
