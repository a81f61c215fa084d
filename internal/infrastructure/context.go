package infrastructure

import "context"

type jobIDKey struct{}

// WithJobID tags ctx so process logs can be matched to a job
func WithJobID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, jobIDKey{}, id)
}

func jobIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(jobIDKey{}).(string); ok {
		return id
	}
	return "-"
}
