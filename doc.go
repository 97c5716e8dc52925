// Package authcore is an embeddable account authentication and session
// lifecycle engine for marketplace backends: OTP email verification,
// argon2id credentials, JWT access tokens paired with rotating single-use
// refresh tokens (with reuse detection and revoke-all), a Redis-backed
// idempotency guard, and an event dispatcher with durable email and
// notification queues.
//
// Construct an engine with the builder:
//
//	engine, err := authcore.New().
//		WithRedis(rdb).
//		WithRepository(repo).
//		WithMailer(mailer).
//		WithConfig(cfg).
//		Build()
//	if err != nil {
//		log.Fatal(err)
//	}
//	engine.Start()
//	defer engine.Close()
//
// All engine errors are sentinel values classified by KindOf; transports
// map ErrorKind to their own status codes.
package authcore
