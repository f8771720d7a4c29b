package controller

import "context"

// PermissionGate asks for access to the capture device
type PermissionGate interface {
	Request(ctx context.Context) (bool, error)
}

// PermissionFunc adapts a function to PermissionGate
type PermissionFunc func(ctx context.Context) (bool, error)

// Request implements PermissionGate
func (f PermissionFunc) Request(ctx context.Context) (bool, error) {
	return f(ctx)
}

// AlwaysGranted is a gate for platforms without a permission prompt
var AlwaysGranted PermissionGate = PermissionFunc(func(context.Context) (bool, error) {
	return true, nil
})

// ProbeGate grants permission when probe succeeds, such as opening the
// capture device once
func ProbeGate(probe func() error) PermissionGate {
	return PermissionFunc(func(ctx context.Context) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := probe(); err != nil {
			return false, err
		}
		return true, nil
	})
}
