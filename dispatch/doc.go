// Package dispatch decouples side effects from the request path. Domain
// events fan out synchronously on an in-process Bus; subscribers translate
// them into durable Jobs on named Redis queues, which bounded worker Pools
// drain with per-queue retry, backoff, and dead-lettering. A side-effect
// failure is retried asynchronously and, on terminal failure, only logged;
// it never surfaces to the request that caused it.
package dispatch
