package mongodb

import (
	"context"
	"time"
)

const defaultOperationTimeout = 5 * time.Second

// opTimeout bounds every store call so a stalled primary cannot hang a
// request. The caller's deadline still wins when it is shorter.
type opTimeout time.Duration

func (t opTimeout) with(ctx context.Context) (context.Context, context.CancelFunc) {
	d := time.Duration(t)
	if d <= 0 {
		d = defaultOperationTimeout
	}
	return context.WithTimeout(ctx, d)
}

func setUpdatedAt(updates map[string]interface{}) map[string]interface{} {
	set := make(map[string]interface{}, len(updates)+1)
	for k, v := range updates {
		set[k] = v
	}
	if _, ok := set["updated_at"]; !ok {
		set["updated_at"] = time.Now().UTC()
	}
	return set
}
