package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// LocalPublisher is a Publisher stand-in that derives a content address
// from a SHA-256 digest of the content and never talks to a network. It
// exists for the same reason llmoracle.Fake does: the decentralized
// publishing layer is explicitly out of core scope (SPEC_FULL.md §1), so
// the core needs something concrete to exercise the publish_learning job
// against without depending on an external service being reachable.
// Production deployments supply a real Publisher that uploads to the
// content-addressed store and anchors the transaction.
type LocalPublisher struct {
	// Calls records every publish invocation's content for assertions in
	// tests.
	Calls []string
}

// Publish implements Publisher.
func (p *LocalPublisher) Publish(_ context.Context, content string) (string, string, error) {
	p.Calls = append(p.Calls, content)
	sum := sha256.Sum256([]byte(content))
	address := "bafy" + hex.EncodeToString(sum[:16])
	anchorTx := "0x" + hex.EncodeToString(sum[16:])
	return address, anchorTx, nil
}
