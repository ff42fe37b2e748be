package session

import "context"

type flowKey struct{}

type flowRequest struct {
	attachCredential bool
}

// withFlow marks requests made by Login and Logout. The transport never turns
// an authentication failure on such a request into an invalidation; the flow
// handles the outcome itself.
func withFlow(ctx context.Context, attachCredential bool) context.Context {
	return context.WithValue(ctx, flowKey{}, flowRequest{attachCredential: attachCredential})
}

func flowFromContext(ctx context.Context) (flowRequest, bool) {
	f, ok := ctx.Value(flowKey{}).(flowRequest)
	return f, ok
}
