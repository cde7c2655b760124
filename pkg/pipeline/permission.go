package pipeline

import "context"

// PermissionGate asks the user for camera access before capture starts.
type PermissionGate interface {
	RequestCamera(ctx context.Context) (bool, error)
}

// AutoGrant answers every request with its own value. It is used when
// access was granted up front, e.g. by flag.
type AutoGrant bool

func (g AutoGrant) RequestCamera(context.Context) (bool, error) {
	return bool(g), nil
}

// PermissionFunc adapts a function to PermissionGate.
type PermissionFunc func(ctx context.Context) (bool, error)

func (f PermissionFunc) RequestCamera(ctx context.Context) (bool, error) {
	return f(ctx)
}
