// Package jwt issues and validates the signed access tokens of the engine.
package jwt
