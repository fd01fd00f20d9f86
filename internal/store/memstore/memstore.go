package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"intraday/internal/store"
	"intraday/internal/types"
)

// Store 是进程内实现，供回测与测试使用。读写都返回副本。
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data state
}

type state struct {
	sessions map[string]types.Session
	trades   map[string]types.Trade
	intents  map[string]types.TradeIntent
	errors   []types.ErrorRecord
	runs     map[string]store.BacktestRun
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: state{
		sessions: make(map[string]types.Session),
		trades:   make(map[string]types.Trade),
		intents:  make(map[string]types.TradeIntent),
		runs:     make(map[string]store.BacktestRun),
	}}
}

func (s *Store) Close() error { return nil }

// Tx 串行执行 fn，出错时恢复到调用前的快照。
func (s *Store) Tx(_ context.Context, fn func(tx store.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.RLock()
	snap := s.data.clone()
	s.mu.RUnlock()
	if err := fn(s); err != nil {
		s.mu.Lock()
		s.data = snap
		s.mu.Unlock()
		return err
	}
	return nil
}

func (st state) clone() state {
	out := state{
		sessions: make(map[string]types.Session, len(st.sessions)),
		trades:   make(map[string]types.Trade, len(st.trades)),
		intents:  make(map[string]types.TradeIntent, len(st.intents)),
		errors:   append([]types.ErrorRecord(nil), st.errors...),
		runs:     make(map[string]store.BacktestRun, len(st.runs)),
	}
	for k, v := range st.sessions {
		out.sessions[k] = *v.Clone()
	}
	for k, v := range st.trades {
		out.trades[k] = v
	}
	for k, v := range st.intents {
		out.intents[k] = v
	}
	for k, v := range st.runs {
		out.runs[k] = v
	}
	return out
}

func (s *Store) Load(ctx context.Context) ([]types.Session, error) {
	return s.List(ctx, "")
}

func (s *Store) List(_ context.Context, status types.SessionStatus) ([]types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Session, 0, len(s.data.sessions))
	for _, sess := range s.data.sessions {
		if status != "" && sess.Status != status {
			continue
		}
		out = append(out, *sess.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) Get(_ context.Context, id string) (types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.data.sessions[id]
	if !ok {
		return types.Session{}, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return *sess.Clone(), nil
}

func (s *Store) Save(_ context.Context, sess types.Session) error {
	if sess.ID == "" {
		return fmt.Errorf("session id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.sessions[sess.ID] = *sess.Clone()
	return nil
}

func (s *Store) SaveTrade(_ context.Context, trade types.Trade) error {
	if trade.ID == "" {
		return fmt.Errorf("trade id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.trades[trade.ID] = trade
	return nil
}

func (s *Store) GetTrade(_ context.Context, id string) (types.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.data.trades[id]
	if !ok {
		return types.Trade{}, fmt.Errorf("trade %s: %w", id, store.ErrNotFound)
	}
	return t, nil
}

func (s *Store) ListTrades(_ context.Context, sessionID string) ([]types.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Trade
	for _, t := range s.data.trades {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].EntryTime.Before(out[j].EntryTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) SaveIntent(_ context.Context, intent types.TradeIntent) error {
	if intent.ID == "" {
		return fmt.Errorf("intent id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.intents[intent.ID] = intent
	return nil
}

func (s *Store) PendingIntents(_ context.Context) ([]types.TradeIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.TradeIntent
	for _, in := range s.data.intents {
		if in.Status == types.IntentPending {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Intent 返回指定意图，供测试断言状态流转。
func (s *Store) Intent(id string) (types.TradeIntent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.data.intents[id]
	return in, ok
}

func (s *Store) RecordError(_ context.Context, rec types.ErrorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.errors = append(s.data.errors, rec)
	return nil
}

func (s *Store) ListErrors(_ context.Context, sessionID string, limit int) ([]types.ErrorRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.ErrorRecord
	for i := len(s.data.errors) - 1; i >= 0 && len(out) < limit; i-- {
		rec := s.data.errors[i]
		if sessionID == "" || rec.SessionID == sessionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) SaveBacktestRun(_ context.Context, run store.BacktestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.runs[run.ID] = run
	return nil
}

func (s *Store) ListBacktestRuns(_ context.Context, limit int) ([]store.BacktestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.BacktestRun, 0, len(s.data.runs))
	for _, r := range s.data.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
