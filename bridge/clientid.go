package bridge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sharpie78/nova/store"
)

// ClientID returns the device's editor client id, creating and persisting one on
// first use. A random UUID is preferred; the current Unix time in milliseconds is used
// if one cannot be generated.
func ClientID(ctx context.Context, s store.Store) (string, error) {
	id, ok, err := s.Get(ctx, store.KeyClientID)
	if err != nil {
		return "", fmt.Errorf("could not read client id: %w", err)
	}
	if ok && id != "" {
		return id, nil
	}

	if u, err := uuid.NewRandom(); err == nil {
		id = u.String()
	} else {
		id = strconv.FormatInt(time.Now().UnixMilli(), 10)
	}

	if err := s.Set(ctx, store.KeyClientID, id); err != nil {
		return "", fmt.Errorf("could not save client id: %w", err)
	}
	return id, nil
}
