// Package password provides argon2id hashing and verification for account
// credentials. Hashes are serialized in PHC string format so cost parameters
// travel with the hash; verification always uses the embedded parameters.
package password
