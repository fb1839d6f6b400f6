// Package server hosts the Fiber HTTP service, request middleware chain, and
// the shared upstream HTTP client. It bootstraps Fiber with recover/request-id
// middlewares, forwards intercepted traffic to the gateway handler, and keeps
// the origin snapshot fetcher that the lifecycle controller and command
// channel reuse. Diagnostics and command ingress live under the /-/ prefix and
// bypass interception. Keep exports narrow and accept explicit dependencies.
package server
