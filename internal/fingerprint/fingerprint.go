// Package fingerprint derives the semantic hash used to detect duplicate
// ingestion of the same logical record.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"reconledger/internal/domain"
)

// Fingerprinter hashes the canonical form of a JSON object. Top-level keys
// listed in ignore are dropped first so volatile fields such as fetch
// timestamps do not defeat deduplication.
type Fingerprinter struct {
	ignore map[string]struct{}
}

type Result struct {
	Canonical json.RawMessage
	Hash      string
}

func New(ignoreKeys ...string) *Fingerprinter {
	f := &Fingerprinter{ignore: make(map[string]struct{}, len(ignoreKeys))}
	for _, k := range ignoreKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			f.ignore[k] = struct{}{}
		}
	}
	return f
}

// Of canonicalizes payload and returns it alongside its hash. The stored
// payload keeps the ignored keys; only the hash input omits them.
func (f *Fingerprinter) Of(payload []byte) (Result, error) {
	value, err := decode(payload)
	if err != nil {
		return Result{}, fmt.Errorf("%w: payload: %v", domain.ErrValidation, err)
	}
	obj, ok := value.(map[string]any)
	if !ok {
		return Result{}, fmt.Errorf("%w: payload must be a JSON object", domain.ErrValidation)
	}
	if len(obj) == 0 {
		return Result{}, fmt.Errorf("%w: payload must not be empty", domain.ErrValidation)
	}

	var full canonicalWriter
	if err := full.object(obj); err != nil {
		return Result{}, fmt.Errorf("%w: payload: %v", domain.ErrValidation, err)
	}
	hashed := full.buf.Bytes()
	if len(f.ignore) > 0 {
		trimmed := make(map[string]any, len(obj))
		for k, v := range obj {
			if _, skip := f.ignore[k]; !skip {
				trimmed[k] = v
			}
		}
		var w canonicalWriter
		if err := w.object(trimmed); err != nil {
			return Result{}, fmt.Errorf("%w: payload: %v", domain.ErrValidation, err)
		}
		hashed = w.buf.Bytes()
	}
	return Result{
		Canonical: json.RawMessage(append([]byte(nil), full.buf.Bytes()...)),
		Hash:      Hash(hashed),
	}, nil
}

func Hash(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
