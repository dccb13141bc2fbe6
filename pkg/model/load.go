package model

import (
	"fmt"
	"os"
	"strings"

	"github.com/weberc2/halfmarathon/pkg/objectstore"
)

// LoadFile decodes the artifact at `path`.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading model: opening file `%s`: %w", path, err)
	}
	defer f.Close()

	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("loading model from file `%s`: %w", path, err)
	}
	return m, nil
}

// LoadObject decodes the artifact stored at `bucket`/`key`. Keys ending in
// `.gz` are decompressed.
func LoadObject(
	store objectstore.ObjectStore,
	bucket string,
	key string,
) (*Model, error) {
	if strings.HasSuffix(key, ".gz") {
		store = &objectstore.GzipObjectStore{ObjectStore: store}
	}

	body, err := store.GetObject(bucket, key)
	if err != nil {
		return nil, fmt.Errorf("loading model: %w", err)
	}
	defer body.Close()

	m, err := Decode(body)
	if err != nil {
		return nil, fmt.Errorf(
			"loading model from bucket `%s` at key `%s`: %w",
			bucket,
			key,
			err,
		)
	}
	return m, nil
}
