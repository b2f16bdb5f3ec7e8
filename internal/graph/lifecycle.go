package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// txState implements Open -> {Committed | Discarded}.
type txState struct {
	mu   sync.Mutex
	done bool
}

func (s *txState) active() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrTransactionClosed
	}
	return nil
}

// finish moves the state to closed. It reports false when it was already closed.
func (s *txState) finish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.done = true
	return true
}

// sessionState implements Open -> Closed and tracks the session's open transactions
// so they can be discarded before the session itself closes.
type sessionState struct {
	mu     sync.Mutex
	closed bool
	open   map[Transaction]struct{}
}

func (s *sessionState) active() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

func (s *sessionState) track(tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.open == nil {
		s.open = make(map[Transaction]struct{})
	}
	s.open[tx] = struct{}{}
	return nil
}

func (s *sessionState) untrack(tx Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.open, tx)
}

// close marks the session closed and discards every transaction still open.
// It reports false when the session was already closed.
func (s *sessionState) close(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, nil
	}
	s.closed = true
	pending := make([]Transaction, 0, len(s.open))
	for tx := range s.open {
		pending = append(pending, tx)
	}
	s.mu.Unlock()

	var errs []error
	for _, tx := range pending {
		if err := tx.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return true, errors.Join(errs...)
}

func checkDefine(session SessionKind, tx TransactionKind) error {
	if session != SessionSchema {
		return fmt.Errorf("%w: define requires a schema session, have %s", ErrWrongSessionKind, session)
	}
	if tx != TxWrite {
		return fmt.Errorf("%w: define", ErrReadOnlyTransaction)
	}
	return nil
}

func checkDataWrite(op string, session SessionKind, tx TransactionKind) error {
	if session != SessionData {
		return fmt.Errorf("%w: %s requires a data session, have %s", ErrWrongSessionKind, op, session)
	}
	if tx != TxWrite {
		return fmt.Errorf("%w: %s", ErrReadOnlyTransaction, op)
	}
	return nil
}

func checkKinds(session SessionKind, tx TransactionKind) error {
	if session != SessionSchema && session != SessionData {
		return fmt.Errorf("unknown session kind %s", session)
	}
	if tx != TxRead && tx != TxWrite {
		return fmt.Errorf("unknown transaction kind %s", tx)
	}
	return nil
}

func firstValue(rows []Row, columns []string) (Value, error) {
	if len(rows) == 0 || len(columns) == 0 {
		return Value{}, ErrNoValue
	}
	v, ok := rows[0][columns[0]]
	if !ok || v.IsNull() {
		return Value{}, ErrNoValue
	}
	return v, nil
}
