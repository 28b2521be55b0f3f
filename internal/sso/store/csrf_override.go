package store

import "context"

// WithCsrf returns a Store whose Csrf repository is replaced by c, both on
// the Store and on any Tx it starts. Writes to c are not part of the
// surrounding transaction.
func WithCsrf(s Store, c Csrf) Store {
	return &csrfStore{Store: s, csrf: c}
}

type csrfStore struct {
	Store
	csrf Csrf
}

func (s *csrfStore) Csrf() Csrf { return s.csrf }

func (s *csrfStore) Tx(ctx context.Context) (Tx, error) {
	tx, err := s.Store.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &csrfTx{baseTx: tx, csrf: s.csrf}, nil
}

func (s *csrfStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return s.Store.WithTx(ctx, func(tx Tx) error {
		return fn(&csrfTx{baseTx: tx, csrf: s.csrf})
	})
}

// baseTx is embedded under another name so the promoted field does not
// shadow the Tx method.
type baseTx = Tx

var _ Tx = (*csrfTx)(nil)

type csrfTx struct {
	baseTx
	csrf Csrf
}

func (t *csrfTx) Csrf() Csrf { return t.csrf }
