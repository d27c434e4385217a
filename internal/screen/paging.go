// internal/screen/paging.go
//
// Collection paging.
//
// Context
// -------
// Every backend collection takes skip/limit and silently truncates at its
// own default (100 for most, 20 for users and announcements).  Screens and
// enrichers want the whole collection, so listAll walks the pages until
// one comes back short.
//
// Notes
// -----
// • maxPages bounds a backend that ignores skip; the partial list is
//   returned with a warning rather than looping forever.
package screen

import (
	"context"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/yanizio/storedash/internal/apiclient"
)

const (
	defaultPageSize = 100
	maxPages        = 50
)

// listAll fetches every page of resource.  base is copied, never modified.
func listAll(ctx context.Context, api Backend, resource string, base url.Values, size int, log *zap.Logger) ([]apiclient.Record, error) {
	if size <= 0 {
		size = defaultPageSize
	}
	var out []apiclient.Record
	for page := 0; page < maxPages; page++ {
		q := url.Values{}
		for k, v := range base {
			q[k] = append([]string(nil), v...)
		}
		q.Set("skip", strconv.Itoa(page*size))
		q.Set("limit", strconv.Itoa(size))

		recs, err := api.List(ctx, resource, q)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
		if len(recs) < size {
			return out, nil
		}
	}
	if log == nil {
		log = zap.L()
	}
	log.Warn("collection truncated",
		zap.String("resource", resource),
		zap.Int("pages", maxPages),
		zap.Int("records", len(out)),
	)
	return out, nil
}
