// Package account is the credential store of the engine: account records,
// password hashing at the write boundary, the profile patch allow-list, and
// the explicit state transitions login decisions depend on. Durable
// persistence sits behind the Repository interface.
package account
