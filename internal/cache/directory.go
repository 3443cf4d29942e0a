package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"go-chat-web/internal/api"
)

const DefaultUsersTTL = 5 * time.Minute

// UserSource is where the directory goes on a miss.
type UserSource interface {
	ListUsers(ctx context.Context) ([]api.User, error)
}

// Directory caches each viewer's user list. Concurrent misses for the same
// viewer share one backend call.
type Directory struct {
	store Store
	ttl   time.Duration
	log   logrus.FieldLogger
	group singleflight.Group
}

func NewDirectory(store Store, ttl time.Duration, log logrus.FieldLogger) *Directory {
	if ttl <= 0 {
		ttl = DefaultUsersTTL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Directory{store: store, ttl: ttl, log: log}
}

func usersKey(viewerID string) string { return "users:" + viewerID }

func (d *Directory) Users(ctx context.Context, viewerID string, src UserSource) ([]api.User, error) {
	key := usersKey(viewerID)
	if b, err := d.store.Get(ctx, key); err == nil {
		var users []api.User
		if err := json.Unmarshal(b, &users); err == nil {
			d.log.WithField("viewer", viewerID).Debug("users cache hit")
			return users, nil
		}
		d.log.WithField("viewer", viewerID).Warn("dropping undecodable users cache entry")
	} else if err != ErrMiss {
		d.log.WithError(err).Warn("users cache unavailable, going to the backend")
	}

	v, err, shared := d.group.Do(key, func() (interface{}, error) {
		users, err := src.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(users)
		if err != nil {
			return nil, errors.Wrap(err, "encode users")
		}
		if err := d.store.Set(ctx, key, b, d.ttl); err != nil {
			d.log.WithError(err).Warn("could not cache users")
		}
		return users, nil
	})
	if err != nil {
		return nil, err
	}
	d.log.WithFields(logrus.Fields{"viewer": viewerID, "shared": shared}).Debug("users cache miss")
	return v.([]api.User), nil
}

func (d *Directory) Invalidate(ctx context.Context, viewerID string) error {
	return d.store.Delete(ctx, usersKey(viewerID))
}

// For binds the directory to one viewer and source, giving something a
// session can list users from.
func (d *Directory) For(viewerID string, src UserSource) UserSource {
	return viewerDirectory{d: d, viewerID: viewerID, src: src}
}

type viewerDirectory struct {
	d        *Directory
	viewerID string
	src      UserSource
}

func (v viewerDirectory) ListUsers(ctx context.Context) ([]api.User, error) {
	return v.d.Users(ctx, v.viewerID, v.src)
}
