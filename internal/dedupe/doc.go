// Package dedupe provides a small TTL cache used to replay the response of
// an exactly repeated pipeline request instead of processing it again.
package dedupe
