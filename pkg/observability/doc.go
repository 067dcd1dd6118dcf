/*
Package observability provides tools for monitoring the Parley engine.

It includes Prometheus metrics and structured audit logging, both delivered as
domain.LifecycleHooks so they plug into parley.WithLifecycleHooks, and Combine to
stack several hook sets.
*/
package observability
