// Package redisstore keeps invoice chain heads in Redis so that counters and
// previous hashes survive restarts and are shared between processes.
package redisstore

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/alapierre/go-zatca-client/zatca"
	"github.com/alapierre/go-zatca-client/zatca/hash"
	"github.com/alapierre/go-zatca-client/zatca/model"
)

var logger = logrus.WithField("component", "zatca.redisstore")

const (
	DefaultPrefix     = "zatca:chain:"
	DefaultMaxRetries = 10
)

// Store implements hash.Store. Heads are stored as JSON. Appends use
// optimistic locking (WATCH/MULTI) on the head key and are retried when
// another writer wins.
type Store struct {
	client     *redis.Client
	prefix     string
	maxRetries int
}

var _ hash.Store = (*Store)(nil)

type Option func(*Store)

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultPrefix, maxRetries: DefaultMaxRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the Redis server at url (redis://host:port/db) and checks
// the connection.
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis URL")
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping failed")
	}
	return New(client, opts...), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) redisKey(key string) string {
	return s.prefix + key
}

func (s *Store) Head(ctx context.Context, key string) (model.InvoiceChainLink, bool, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.InvoiceChainLink{}, false, nil
	}
	if err != nil {
		return model.InvoiceChainLink{}, false, errors.Wrapf(err, "read chain head %s", key)
	}
	head, err := decodeLink(data)
	if err != nil {
		return model.InvoiceChainLink{}, false, err
	}
	return head, true, nil
}

func (s *Store) Append(ctx context.Context, key, uuid, invoiceHash string) (model.InvoiceChainLink, error) {
	links, err := s.AppendAll(ctx, key, []hash.Entry{{UUID: uuid, InvoiceHash: invoiceHash}})
	if err != nil {
		return model.InvoiceChainLink{}, err
	}
	return links[0], nil
}

// AppendAll links entries after the stored head and writes only the last
// link, so a failed call leaves the head untouched.
func (s *Store) AppendAll(ctx context.Context, key string, entries []hash.Entry) ([]model.InvoiceChainLink, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	rk := s.redisKey(key)

	var links []model.InvoiceChainLink
	txf := func(tx *redis.Tx) error {
		var prev *model.InvoiceChainLink

		data, err := tx.Get(ctx, rk).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			head, err := decodeLink(data)
			if err != nil {
				return err
			}
			prev = &head
		}

		links = hash.Links(prev, entries)
		encoded := encodeLink(links[len(links)-1])

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, encoded, 0)
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, rk)
		if err == nil {
			return links, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, errors.Wrapf(err, "append to chain %s", key)
		}
		logger.WithField("attempt", attempt).Debugf("chain %s changed concurrently, retrying", key)
	}

	return nil, zatca.ErrChainBroken.Detail("chain %s kept changing, gave up after %d attempts", key, s.maxRetries)
}

func (s *Store) Restore(ctx context.Context, key string, head model.InvoiceChainLink) error {
	if head.CounterValue == 0 || head.InvoiceHash == "" {
		return zatca.ErrChainBroken.Detail("restored head needs a counter and an invoice hash")
	}
	if err := s.client.Set(ctx, s.redisKey(key), encodeLink(head), 0).Err(); err != nil {
		return errors.Wrapf(err, "restore chain head %s", key)
	}
	return nil
}

func encodeLink(link model.InvoiceChainLink) []byte {
	var e jx.Encoder
	link.Encode(&e)
	return e.Bytes()
}

func decodeLink(data []byte) (model.InvoiceChainLink, error) {
	var link model.InvoiceChainLink
	if err := link.Decode(jx.DecodeBytes(data)); err != nil {
		return model.InvoiceChainLink{}, zatca.ErrChainBroken.Detail("stored chain head is not a link").WithCause(err)
	}
	return link, nil
}
